// monitor.go
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileMonitor 监听单个文件的变化。监听的是所在目录，编辑器“写临时文件再改名”的保存方式也能捕获
type FileMonitor struct {
	path    string
	watcher *fsnotify.Watcher
	lastMod time.Time
	mu      sync.Mutex
}

func NewFileMonitor(path string) (*FileMonitor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	m := &FileMonitor{path: abs, watcher: watcher}
	if info, err := os.Stat(abs); err == nil {
		m.lastMod = info.ModTime()
	}
	return m, nil
}

// Watch 阻塞直到 ctx 结束或监听出错；文件内容变化时同步调用 handler
func (m *FileMonitor) Watch(ctx context.Context, handler func(string)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != m.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			info, err := os.Stat(m.path)
			if err != nil {
				// 改名保存时文件可能暂时不存在，等下一个 Create
				continue
			}

			m.mu.Lock()
			changed := !info.ModTime().Equal(m.lastMod)
			if changed {
				m.lastMod = info.ModTime()
			}
			m.mu.Unlock()

			if changed {
				handler(m.path)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

func (m *FileMonitor) Close() error {
	return m.watcher.Close()
}
