package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{name: "plain", content: "1234", want: 1234},
		{name: "newline", content: "42\n", want: 42},
		{name: "garbage", content: "abc", wantErr: true},
		{name: "zero", content: "0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".pid")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			got, err := readPid(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := readPid(filepath.Join(dir, "missing.pid"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
