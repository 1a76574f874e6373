package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerOptions_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	o := NewServerOptions()
	require.NoError(t, o.Complete())
	require.NoError(t, o.Validate())
	assert.Equal(t, "sk-test", o.SynthesisOptions.APIKey)

	cfg, err := o.Config()
	require.NoError(t, err)
	assert.Same(t, o.PipelineOptions, cfg.PipelineOptions)
	assert.Equal(t, "deepseek-r1:7b", cfg.ReasoningOptions.Model)
}

func TestServerOptions_ValidateAggregates(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	o := NewServerOptions()
	o.PipelineOptions.Retries = 5
	o.StoreOptions.Backend = "sqlite"
	require.NoError(t, o.Complete())

	err := o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.retries")
	assert.Contains(t, err.Error(), "sqlite")
	assert.Contains(t, err.Error(), "synthesis.api-key")
}

func TestServerOptions_FlagsRegisterSections(t *testing.T) {
	fss := NewServerOptions().Flags()
	assert.Contains(t, fss.Order, "pipeline")
	assert.NotNil(t, fss.FlagSets["pipeline"].Lookup("pipeline.retries"))
	assert.NotNil(t, fss.FlagSets["reasoning"].Lookup("reasoning.model"))
	assert.NotNil(t, fss.FlagSets["store"].Lookup("store.backend"))
	assert.NotNil(t, fss.FlagSets["tracing"].Lookup("tracing.exporter"))
}
