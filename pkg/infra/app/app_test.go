package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testOptions struct {
	Name  string `mapstructure:"name"`
	Store struct {
		TopK int `mapstructure:"top-k"`
	} `mapstructure:"store"`
	completed bool
	validErr  error
}

func (o *testOptions) Flags() (fss NamedFlagSets) {
	fs := fss.FlagSet("test")
	fs.StringVar(&o.Name, "name", o.Name, "name")
	fss.FlagSet("store").IntVar(&o.Store.TopK, "store.top-k", o.Store.TopK, "top k")
	return fss
}

func (o *testOptions) Complete() error {
	o.completed = true
	return nil
}

func (o *testOptions) Validate() error {
	return o.validErr
}

func TestNamedFlagSets_KeepsOrder(t *testing.T) {
	var fss NamedFlagSets
	fss.FlagSet("b")
	fss.FlagSet("a")
	fss.FlagSet("b")

	assert.Equal(t, []string{"b", "a"}, fss.Order)
	assert.Len(t, fss.FlagSets, 2)
}

func TestApp_RunCompletesValidatesAndRuns(t *testing.T) {
	opts := &testOptions{Name: "default"}
	ran := false

	a := NewApp(
		WithName("chainrag-test"),
		WithOptions(opts),
		WithNoConfig(),
		WithEnvFiles(),
		WithRunFunc(func() error {
			ran = true
			return nil
		}),
	)
	a.Command().SetArgs([]string{"--name", "flagged"})

	require.NoError(t, a.Command().Execute())
	assert.True(t, ran)
	assert.True(t, opts.completed)
	assert.Equal(t, "flagged", opts.Name)
}

func TestApp_ValidationErrorStopsRun(t *testing.T) {
	opts := &testOptions{validErr: errors.New("bad")}
	ran := false

	a := NewApp(
		WithName("chainrag-test"),
		WithOptions(opts),
		WithNoConfig(),
		WithEnvFiles(),
		WithSilence(),
		WithRunFunc(func() error {
			ran = true
			return nil
		}),
	)
	a.Command().SetArgs([]string{})

	err := a.Command().Execute()
	require.Error(t, err)
	assert.False(t, ran)
}

func TestApp_LoadEnvFilesDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(f, []byte("CHAINRAG_TEST_A=from-file\nCHAINRAG_TEST_B=from-file\n"), 0o600))

	t.Setenv("CHAINRAG_TEST_A", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("CHAINRAG_TEST_B") })

	a := NewApp(WithName("chainrag-test"), WithEnvFiles(f, filepath.Join(dir, "missing.env")))
	require.NoError(t, a.loadEnvFiles())

	assert.Equal(t, "from-env", os.Getenv("CHAINRAG_TEST_A"))
	assert.Equal(t, "from-file", os.Getenv("CHAINRAG_TEST_B"))
}

func TestApp_Precedence(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "chainrag-test.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("name: from-file\nstore:\n  top-k: 3\n"), 0o600))

	tests := []struct {
		name     string
		env      string
		args     []string
		wantName string
		wantTopK int
	}{
		{name: "config file", args: []string{"--config", cfg}, wantName: "from-file", wantTopK: 3},
		{name: "env over config", env: "7", args: []string{"--config", cfg}, wantName: "from-file", wantTopK: 7},
		{name: "flag over env", env: "7", args: []string{"--config", cfg, "--store.top-k", "9"}, wantName: "from-file", wantTopK: 9},
		{name: "flag over config", args: []string{"--config", cfg, "--name", "cli"}, wantName: "cli", wantTopK: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.env != "" {
				t.Setenv("CHAINRAG_TEST_STORE_TOP_K", tt.env)
			}
			opts := &testOptions{Name: "default", Store: struct {
				TopK int `mapstructure:"top-k"`
			}{TopK: 1}}

			a := NewApp(WithName("chainrag-test"), WithOptions(opts), WithEnvFiles(), WithSilence())
			a.Command().SetArgs(tt.args)
			require.NoError(t, a.Command().Execute())
			assert.Equal(t, tt.wantName, opts.Name)
			assert.Equal(t, tt.wantTopK, opts.Store.TopK)
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("CHAINRAG_TEST_HOST", "db.internal")
	a := NewApp(WithName("chainrag-test"))
	a.v.Set("store.url", "http://${CHAINRAG_TEST_HOST}:6333")
	a.v.Set("store.token", "${CHAINRAG_TEST_UNSET}")

	expandEnvVars(a.v)

	assert.Equal(t, "http://db.internal:6333", a.v.GetString("store.url"))
	assert.Equal(t, "${CHAINRAG_TEST_UNSET}", a.v.GetString("store.token"))
}
