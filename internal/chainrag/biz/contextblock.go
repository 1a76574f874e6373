package biz

import (
	"strings"
	"unicode/utf8"

	"github.com/kart-io/chainrag/internal/chainrag/store"
)

// chunkSeparator 上下文块中相邻文档块之间的分隔符。
const chunkSeparator = "\n\n"

// ContextBlock 送入模型的上下文。
type ContextBlock struct {
	// Text 按检索排名拼接的文本，长度（rune）不超过预算。
	Text string
	// Sources 实际贡献了文本的块，顺序与排名一致。
	Sources []store.Chunk
	// Truncated 是否有块被截断或丢弃。
	Truncated bool
}

// BuildContext 按排名拼接块文本并截断到 budget 个 rune。
// 放不下的第一个块截断到剩余预算，排名更低的块全部丢弃。budget <= 0 表示不限制。
func BuildContext(chunks []store.Chunk, budget int) ContextBlock {
	var (
		sb      strings.Builder
		sources []store.Chunk
		used    int
	)
	sepLen := utf8.RuneCountInString(chunkSeparator)

	for _, c := range chunks {
		cost := utf8.RuneCountInString(c.Text)
		sep := 0
		if len(sources) > 0 {
			sep = sepLen
		}

		if budget <= 0 || used+sep+cost <= budget {
			if sep > 0 {
				sb.WriteString(chunkSeparator)
			}
			sb.WriteString(c.Text)
			used += sep + cost
			sources = append(sources, c)
			continue
		}

		remaining := budget - used - sep
		if remaining > 0 {
			if sep > 0 {
				sb.WriteString(chunkSeparator)
			}
			sb.WriteString(truncateRunes(c.Text, remaining))
			sources = append(sources, c)
		}
		return ContextBlock{Text: sb.String(), Sources: sources, Truncated: true}
	}

	if sources == nil {
		sources = []store.Chunk{}
	}
	return ContextBlock{Text: sb.String(), Sources: sources}
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
