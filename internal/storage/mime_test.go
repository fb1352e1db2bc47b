package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectMIMEType(t *testing.T) {
	dir := t.TempDir()

	write := func(name string, data []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, data, 0o644))
		return p
	}

	assert.Equal(t, "text/plain", DetectMIMEType(write("Program.cs", []byte("class A {}"))))
	assert.Equal(t, "text/plain", DetectMIMEType(write("main.GO", []byte("package main"))))
	assert.Equal(t, "text/plain", DetectMIMEType(write("notes.txt", []byte("hello"))))
	assert.Equal(t, "application/pdf", DetectMIMEType(write("doc.bin", []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n"))))
	assert.Equal(t, "application/octet-stream", DetectMIMEType(filepath.Join(dir, "missing.bin")))
}
