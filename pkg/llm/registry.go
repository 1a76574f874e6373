package llm

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ProviderFactory 创建同时支持嵌入与生成的供应商。
type ProviderFactory func(config map[string]any) (Provider, error)

// EmbeddingProviderFactory 创建仅支持嵌入的供应商。
type EmbeddingProviderFactory func(config map[string]any) (EmbeddingProvider, error)

// ChatProviderFactory 创建仅支持生成的供应商。
type ChatProviderFactory func(config map[string]any) (ChatProvider, error)

// factories 同一名称下的工厂。专用工厂优先于完整工厂。
type factories struct {
	full  ProviderFactory
	embed EmbeddingProviderFactory
	chat  ChatProviderFactory
}

var providers = struct {
	sync.RWMutex
	byName map[string]*factories
}{byName: map[string]*factories{}}

func register(name string, set func(*factories)) {
	providers.Lock()
	defer providers.Unlock()
	f, ok := providers.byName[name]
	if !ok {
		f = &factories{}
		providers.byName[name] = f
	}
	set(f)
}

// RegisterProvider 注册完整供应商，通常在供应商包的 init 中调用。
func RegisterProvider(name string, factory ProviderFactory) {
	register(name, func(f *factories) { f.full = factory })
}

// RegisterEmbeddingProvider 注册仅嵌入的供应商。
func RegisterEmbeddingProvider(name string, factory EmbeddingProviderFactory) {
	register(name, func(f *factories) { f.embed = factory })
}

// RegisterChatProvider 注册仅生成的供应商。
func RegisterChatProvider(name string, factory ChatProviderFactory) {
	register(name, func(f *factories) { f.chat = factory })
}

func lookup(name string) factories {
	providers.RLock()
	defer providers.RUnlock()
	if f, ok := providers.byName[name]; ok {
		return *f
	}
	return factories{}
}

// NewEmbeddingProvider 按名称创建嵌入供应商。
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	f := lookup(name)
	switch {
	case f.embed != nil:
		return f.embed(config)
	case f.full != nil:
		return f.full(config)
	}
	return nil, fmt.Errorf("unknown embedding provider %q (registered: %s)", name, strings.Join(ListProviders(), ", "))
}

// NewChatProvider 按名称创建生成供应商。
func NewChatProvider(name string, config map[string]any) (ChatProvider, error) {
	f := lookup(name)
	switch {
	case f.chat != nil:
		return f.chat(config)
	case f.full != nil:
		return f.full(config)
	}
	return nil, fmt.Errorf("unknown chat provider %q (registered: %s)", name, strings.Join(ListProviders(), ", "))
}

// ListProviders 返回已注册的供应商名称，已排序。
func ListProviders() []string {
	providers.RLock()
	defer providers.RUnlock()
	names := make([]string, 0, len(providers.byName))
	for name := range providers.byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ConfigValue 当 config[key] 的类型为 T 且非零值时写入 dst，否则保留 dst 原值。
// 供应商工厂用它把配置 map 叠加到默认配置上。
func ConfigValue[T comparable](config map[string]any, key string, dst *T) {
	var zero T
	if v, ok := config[key].(T); ok && v != zero {
		*dst = v
	}
}
