// Package options 定义各配置段共用的接口与工具。
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// Join 用 "." 连接前缀并保留结尾的 "."，空段会被忽略。
// 例如 Join("store") 得到 "store."，配合子段名组成 "store.milvus.address"。
func Join(prefixes ...string) string {
	var b strings.Builder
	for _, p := range prefixes {
		if p = strings.Trim(p, "."); p != "" {
			b.WriteString(p)
			b.WriteByte('.')
		}
	}
	return b.String()
}

// IOptions 每个配置段都实现的最小接口。
type IOptions interface {
	// Validate 返回全部校验错误，由调用方聚合。
	Validate() []error
	// AddFlags 在 fs 上注册本段参数，prefixes 为上层段名。
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}
