package cache

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_DisabledSkipsValidation(t *testing.T) {
	o := NewOptions()
	o.TTL = 0
	o.Redis.Host = ""
	assert.Empty(t, o.Validate())
}

func TestOptions_Validate(t *testing.T) {
	o := NewOptions()
	o.Enabled = true
	o.TTL = 0
	o.Redis.Port = 70000

	var msgs []string
	for _, err := range o.Validate() {
		msgs = append(msgs, err.Error())
	}
	assert.ElementsMatch(t, []string{
		"cache.ttl must be positive",
		"cache.redis.port 70000 is out of range",
	}, msgs)
}

func TestOptions_RedisURL(t *testing.T) {
	o := NewOptions()
	o.Enabled = true
	o.Redis.URL = "redis://:secret@cache.internal:6380/2"
	o.Redis.Host = ""
	require.Empty(t, o.Validate())
	assert.Equal(t, "cache.internal:6380", o.Redis.Addr())
	assert.Equal(t, "redis://cache.internal:6380", o.Redis.String())

	client, err := o.Redis.NewClient()
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, 2, client.Options().DB)
	assert.Equal(t, "secret", client.Options().Password)
	assert.Equal(t, -1, client.Options().MaxRetries)

	o.Redis.URL = "http://nope"
	assert.Len(t, o.Validate(), 1)
}

func TestOptions_PasswordFromEnv(t *testing.T) {
	t.Setenv("REDIS_PASSWORD", "from-env")
	o := NewOptions()
	require.NoError(t, o.Complete())
	assert.Equal(t, "from-env", o.Redis.Password)
	assert.NotContains(t, o.Redis.String(), "from-env")
}

func TestOptions_Flags(t *testing.T) {
	o := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{"--cache.enabled", "--cache.redis.port", "6390", "--cache.ttl", "1h"}))
	assert.True(t, o.Enabled)
	assert.Equal(t, 6390, o.Redis.Port)
	assert.Equal(t, "1h0m0s", o.TTL.String())
}
