// Package ingest 实现离线文档摄取：加载、分块、嵌入并写入向量库。
// 查询服务不依赖本包，二者只通过向量库集合约定交互。
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupported 文件类型可以被列出但没有可用的解析器。
var ErrUnsupported = errors.New("unsupported document type")

// Extensions 可摄取的文件扩展名。.docx 会被列出但加载时跳过。
var Extensions = []string{".pdf", ".docx", ".txt", ".md"}

// Document 一个已加载的源文档。
type Document struct {
	// Source 相对数据目录的路径，用作来源标识。
	Source string
	Text   string
}

// Supported 判断文件扩展名是否可摄取。
func Supported(path string) bool {
	return slices.Contains(Extensions, strings.ToLower(filepath.Ext(path)))
}

// ListFiles 返回 root 下可摄取文件的相对路径，按字典序排列。隐藏目录与隐藏文件被忽略。
func ListFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if path != root && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !Supported(name) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	slices.Sort(files)
	return files, nil
}

// Load 读取 root 下的 rel 文件。
func Load(root, rel string) (*Document, error) {
	path := filepath.Join(root, filepath.FromSlash(rel))

	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(rel)) {
	case ".txt", ".md":
		var data []byte
		data, err = os.ReadFile(path)
		text = string(data)
	case ".pdf":
		text, err = readPDF(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, rel)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", rel, err)
	}
	return &Document{Source: rel, Text: text}, nil
}

// readPDF extracts plain text page by page. Pages that fail to parse are skipped.
func readPDF(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}
