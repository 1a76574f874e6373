package ingest

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/kart-io/chainrag/internal/chainrag/store"
)

// Chunker 按 rune 切分文本，相邻块重叠 Overlap 个 rune。
// 切分点优先落在块后半段的空白处，避免截断单词。
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker 创建分块器。overlap 会被限制在 [0, size) 内。
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	return &Chunker{Size: size, Overlap: overlap}
}

// Split 切分文本，去除首尾空白后为空的块被丢弃。
func (c *Chunker) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var out []string
	for start := 0; start < len(runes); {
		end := min(start+c.Size, len(runes))
		if end < len(runes) {
			end = breakPoint(runes, start, end)
		}
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		if end == len(runes) {
			break
		}
		next := end - c.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// breakPoint moves end back to the last whitespace in the second half of the window.
func breakPoint(runes []rune, start, end int) int {
	half := start + (end-start)/2
	for i := end; i > half; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}

// Chunks 将文档切分为带稳定 ID 的块，ID 为 "<source>#<序号>"。
func (c *Chunker) Chunks(doc *Document) []store.Chunk {
	parts := c.Split(doc.Text)
	chunks := make([]store.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = store.Chunk{
			ID:     doc.Source + "#" + strconv.Itoa(i),
			Source: doc.Source,
			Text:   p,
		}
	}
	return chunks
}
