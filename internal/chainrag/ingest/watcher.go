package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kart-io/logger"
)

// Watcher 递归监听数据目录（跳过隐藏目录），变化平息 debounce 后重新摄取整个目录。
// 同一时间最多一次摄取在运行，运行期间到达的变化会在结束后再触发一次。
type Watcher struct {
	indexer  *Indexer
	root     string
	debounce time.Duration

	running atomic.Bool
	pending atomic.Bool
	wg      sync.WaitGroup

	// onRun 每次摄取结束后调用，测试使用。
	onRun func(*Report, error)
	// beforeIdle 在摄取协程检查完 pending、清除 running 之前调用，测试使用。
	beforeIdle func()
}

// NewWatcher 创建目录监听器。
func NewWatcher(indexer *Indexer, root string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{indexer: indexer, root: root, debounce: debounce}
}

// Run 阻塞直到 ctx 结束。启动时不做首次摄取，由调用方决定。
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	w.addTree(fw, w.root)
	logger.Infow("Watching data directory", "dir", w.root, "debounce", w.debounce.String())

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer func() {
		timer.Stop()
		w.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(fw, ev) {
				continue
			}
			logger.Debugw("Data directory changed", "file", ev.Name, "op", ev.Op.String())
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("File watcher error", "error", err.Error())

		case <-timer.C:
			w.trigger(ctx)
		}
	}
}

// relevant reports whether ev should schedule an ingestion. New directories
// are watched as they appear. Removals and renames count even without a
// supported extension since the name may have been a directory.
func (w *Watcher) relevant(fw *fsnotify.Watcher, ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod || hidden(w.root, ev.Name) {
		return false
	}
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			w.addTree(fw, ev.Name)
			return true
		}
	}
	return Supported(ev.Name) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}

// addTree watches dir and every non-hidden directory below it.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if path == w.root {
			return nil
		}
		if err := fw.Add(path); err != nil {
			logger.Warnw("Failed to watch directory", "dir", path, "error", err.Error())
		}
		return nil
	})
	if err != nil {
		logger.Warnw("Failed to walk directory", "dir", dir, "error", err.Error())
	}
}

// hidden matches the ListFiles rule: any dot-prefixed element below root.
func hidden(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != ".." {
			return true
		}
	}
	return false
}

// trigger starts an ingestion unless one is already running, in which case
// it asks the running one to go again when it finishes.
func (w *Watcher) trigger(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		w.pending.Store(true)
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		for {
			w.pending.Store(false)
			report, err := w.indexer.IndexDir(ctx, w.root)
			if err != nil {
				logger.Errorw("Re-ingestion failed", "dir", w.root, "error", err.Error())
			}
			if w.onRun != nil {
				w.onRun(report, err)
			}
			if ctx.Err() != nil {
				w.running.Store(false)
				return
			}
			if w.pending.Load() {
				continue
			}
			if w.beforeIdle != nil {
				w.beforeIdle()
			}
			w.running.Store(false)
			// A trigger between the check above and the store saw running and
			// only set pending.
			if !w.pending.Load() || !w.running.CompareAndSwap(false, true) {
				return
			}
		}
	}()
}
