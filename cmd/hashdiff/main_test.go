package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		fullPath := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0755))
		require.NoError(t, os.WriteFile(fullPath, []byte(content), 0644))
	}
	return root
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	// Keep a user config from leaking into the run.
	args = append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_IdenticalDirectories(t *testing.T) {
	files := map[string]string{"a.txt": "hello"}

	code, stdout, _ := execute(t, writeTree(t, files), writeTree(t, files))
	assert.Equal(t, exitOK, code)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Source: "))
	assert.True(t, strings.HasPrefix(lines[1], "Target: "))
	assert.Equal(t, "Directories are identical", lines[2])
}

func TestRun_VerboseDirectoryDrift(t *testing.T) {
	source := writeTree(t, map[string]string{"a.txt": "hello"})
	target := writeTree(t, map[string]string{"a.txt": "hello", "b.txt": "world"})

	code, stdout, _ := execute(t, "-v", source, target)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "Directories have drifted\n")
	assert.Contains(t, stdout, "  + b.txt")
	assert.NotContains(t, stdout, "a.txt")
}

func TestRun_FileDiff(t *testing.T) {
	dir := writeTree(t, map[string]string{"one.txt": "hello\n", "two.txt": "world\n"})

	code, stdout, _ := execute(t, "--diff", "--color", "never",
		filepath.Join(dir, "one.txt"), filepath.Join(dir, "two.txt"))
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "Files have drifted\n")
	assert.Contains(t, stdout, "\n-hello\n+world\n")
	assert.NotContains(t, stdout, "\033[")
}

func TestRun_ColorAlways(t *testing.T) {
	source := writeTree(t, map[string]string{"a.txt": "hello"})
	target := writeTree(t, map[string]string{})

	code, stdout, _ := execute(t, "-v", "--color", "always", source, target)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "\033[31m  - a.txt")
}

func TestRun_ExitCodeOnDrift(t *testing.T) {
	source := writeTree(t, map[string]string{"a.txt": "hello"})
	target := writeTree(t, map[string]string{"a.txt": "world"})

	code, _, stderr := execute(t, "--exit-code", source, target)
	assert.Equal(t, exitFailure, code)
	assert.Empty(t, stderr)
}

func TestRun_UsageErrors(t *testing.T) {
	dir := writeTree(t, map[string]string{"file.txt": "x"})

	tests := []struct {
		name string
		args []string
	}{
		{"missing argument", []string{dir}},
		{"too many arguments", []string{dir, dir, dir}},
		{"unknown flag", []string{"--bogus", dir, dir}},
		{"file and directory", []string{filepath.Join(dir, "file.txt"), dir}},
		{"bad color", []string{"--color", "sometimes", dir, dir}},
		{"bad algorithm", []string{"--algorithm", "crc32", dir, dir}},
		{"bad log level", []string{"--log-level", "loud", dir, dir}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := execute(t, tt.args...)
			assert.Equal(t, exitUsage, code)
			assert.Contains(t, stderr, "Error: ")
		})
	}
}

func TestRun_MissingPathIsRuntimeError(t *testing.T) {
	dir := t.TempDir()

	code, _, stderr := execute(t, dir, filepath.Join(dir, "missing"))
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "failed to stat target")
}

func TestRun_IgnoreFlags(t *testing.T) {
	source := writeTree(t, map[string]string{"a.txt": "1", "build/out.o": "x", "notes.md": "n"})
	target := writeTree(t, map[string]string{"a.txt": "1"})

	code, stdout, _ := execute(t, "--ignore-dir", "build", "--ignore-file", "notes.md", source, target)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "Directories are identical")
}

func TestRun_JSON(t *testing.T) {
	source := writeTree(t, map[string]string{"a.txt": "hello"})
	target := writeTree(t, map[string]string{"a.txt": "world"})

	code, stdout, _ := execute(t, "--json", "-v", "--algorithm", "blake3", "--scheme", "merkle", source, target)
	require.Equal(t, exitOK, code)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &decoded))
	assert.Equal(t, "blake3", decoded["algorithm"])
	assert.Equal(t, "merkle", decoded["scheme"])
	assert.Equal(t, false, decoded["identical"])
	assert.Len(t, decoded["modified"], 1)
}

func TestRun_ConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("ignore:\n  files: [skip.txt]\n"), 0644))

	source := writeTree(t, map[string]string{"a.txt": "1", "skip.txt": "a"})
	target := writeTree(t, map[string]string{"a.txt": "1", "skip.txt": "b"})

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-c", configPath, source, target}, &stdout, &stderr)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout.String(), "Directories are identical")
}

func TestColorMode_Enabled(t *testing.T) {
	var buf bytes.Buffer
	always, never, auto := colorAlways, colorNever, colorAuto

	assert.True(t, always.enabled(&buf))
	assert.False(t, never.enabled(&buf))
	assert.False(t, auto.enabled(&buf))
}
