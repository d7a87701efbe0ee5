package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.pid")
	require.NoError(t, writePid(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	// 已存在时覆盖
	require.NoError(t, os.WriteFile(path, []byte("999999"), 0644))
	require.NoError(t, writePid(path))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}
