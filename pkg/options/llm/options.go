// Package llm 定义嵌入、推理、合成三类模型供应商的配置。
package llm

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/chainrag/pkg/options"
)

var _ options.IOptions = (*ProviderOptions)(nil)

// ProviderOptions 定义 LLM 供应商配置。
type ProviderOptions struct {
	// Provider 供应商名称（ollama, openai）。
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL API 基础地址。
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey API 密钥（OpenAI 等需要）。未配置时读取 OPENAI_API_KEY。
	APIKey string `json:"-" mapstructure:"api-key"`

	// Model 使用的模型名称。
	Model string `json:"model" mapstructure:"model"`

	// Dimensions 嵌入维度（仅 OpenAI embedding 使用，0 表示模型默认值）。
	Dimensions int `json:"dimensions" mapstructure:"dimensions"`

	// Timeout 单次请求超时时间（传输层上限，阶段超时由流水线控制）。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// Organization 组织 ID（OpenAI 可选）。
	Organization string `json:"organization" mapstructure:"organization"`

	// KeepAlive 模型在 Ollama 中驻留的时长，0 表示使用服务端默认值。
	KeepAlive time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
}

// defaultBaseURLs 各供应商的默认地址。
var defaultBaseURLs = map[string]string{
	"ollama": "http://localhost:11434",
	"openai": "https://api.openai.com/v1",
}

// knownProviders 可选的供应商。
var knownProviders = []string{"ollama", "openai"}

// NewProviderOptions 创建默认 LLM 供应商配置。
func NewProviderOptions() *ProviderOptions {
	return &ProviderOptions{
		Provider: "ollama",
		BaseURL:  defaultBaseURLs["ollama"],
		Timeout:  120 * time.Second,
	}
}

// NewEmbeddingOptions 创建默认 Embedding 供应商配置。
func NewEmbeddingOptions() *ProviderOptions {
	opts := NewProviderOptions()
	opts.Model = "nomic-embed-text"
	return opts
}

// NewReasoningOptions 创建默认推理阶段（本地模型）配置。
func NewReasoningOptions() *ProviderOptions {
	opts := NewProviderOptions()
	opts.Model = "deepseek-r1:7b"
	return opts
}

// NewSynthesisOptions 创建默认合成阶段（远端模型）配置。
func NewSynthesisOptions() *ProviderOptions {
	return &ProviderOptions{
		Provider: "openai",
		BaseURL:  defaultBaseURLs["openai"],
		Model:    "gpt-4o-mini",
		Timeout:  120 * time.Second,
	}
}

// ToConfigMap 转换为配置 map，用于供应商工厂。
func (o *ProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":         o.BaseURL,
		"api_key":          o.APIKey,
		"embed_model":      o.Model,
		"embed_dimensions": o.Dimensions,
		"chat_model":       o.Model,
		"timeout":          o.Timeout,
		"organization":     o.Organization,
		"keep_alive":       o.KeepAlive,
	}
}

// AddFlags adds flags for LLM provider options to the specified FlagSet.
// prefixes 必须非空，例如 "embedding"、"reasoning"、"synthesis"。
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Provider, p+"provider", o.Provider, "LLM provider (ollama, openai).")
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "LLM API base URL.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "LLM API key (prefer OPENAI_API_KEY).")
	fs.StringVar(&o.Model, p+"model", o.Model, "LLM model name.")
	fs.IntVar(&o.Dimensions, p+"dimensions", o.Dimensions, "Requested embedding dimensions (openai only, 0 = model default).")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "LLM transport timeout.")
	fs.StringVar(&o.Organization, p+"organization", o.Organization, "LLM organization ID (optional).")
	fs.DurationVar(&o.KeepAlive, p+"keep-alive", o.KeepAlive, "How long ollama keeps the model loaded after a call (0 = server default).")
}

// Validate validates the LLM provider options.
func (o *ProviderOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if !slices.Contains(knownProviders, o.Provider) {
		errs = append(errs, fmt.Errorf("provider %q is not one of %v", o.Provider, knownProviders))
	}
	if o.BaseURL == "" {
		errs = append(errs, fmt.Errorf("base-url is required"))
	}
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("model is required"))
	}
	// OpenAI 供应商需要 API key
	if o.Provider == "openai" && o.APIKey == "" {
		errs = append(errs, fmt.Errorf("api-key is required for openai provider"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive"))
	}
	if o.KeepAlive < 0 {
		errs = append(errs, fmt.Errorf("keep-alive must not be negative"))
	}
	return errs
}

// Complete 补全默认值。只切换了供应商时，把仍指向另一家默认地址的 base-url 换成当前供应商的。
func (o *ProviderOptions) Complete() error {
	if def, ok := defaultBaseURLs[o.Provider]; ok {
		for name, other := range defaultBaseURLs {
			if name != o.Provider && o.BaseURL == other {
				o.BaseURL = def
			}
		}
		if o.BaseURL == "" {
			o.BaseURL = def
		}
	}
	if o.Provider == "openai" && o.APIKey == "" {
		o.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return nil
}
