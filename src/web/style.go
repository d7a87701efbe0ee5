package web

import (
	"fmt"
	"os"
	"sync"
)

// StyleSheet 页面样式表，文件变化时由监听器调用 Reload
type StyleSheet struct {
	path    string
	mu      sync.RWMutex
	content []byte
}

// LoadStyleSheet 启动时读取样式表，读不到视为启动失败
func LoadStyleSheet(path string) (*StyleSheet, error) {
	s := &StyleSheet{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload 重新读取文件；失败时保留旧内容
func (s *StyleSheet) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read stylesheet %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.content = data
	s.mu.Unlock()
	return nil
}

func (s *StyleSheet) Bytes() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.content
}
