// Package faultfs wraps a billy filesystem and injects errors into chosen
// operations, so tests can exercise I/O failures without permission tricks.
package faultfs

import (
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
)

type FS struct {
	billy.Filesystem
	open    map[string]error
	read    map[string]error
	readDir map[string]error
}

func New(fsys billy.Filesystem) *FS {
	return &FS{
		Filesystem: fsys,
		open:       make(map[string]error),
		read:       make(map[string]error),
		readDir:    make(map[string]error),
	}
}

// FailOpen makes opening name return err.
func (f *FS) FailOpen(name string, err error) *FS {
	f.open[filepath.Clean(name)] = err
	return f
}

// FailRead lets name open but makes every Read on it return err.
func (f *FS) FailRead(name string, err error) *FS {
	f.read[filepath.Clean(name)] = err
	return f
}

// FailReadDir makes listing the directory path return err.
func (f *FS) FailReadDir(path string, err error) *FS {
	f.readDir[filepath.Clean(path)] = err
	return f
}

func (f *FS) Open(name string) (billy.File, error) {
	return f.OpenFile(name, os.O_RDONLY, 0)
}

func (f *FS) OpenFile(name string, flag int, perm os.FileMode) (billy.File, error) {
	if err, ok := f.open[filepath.Clean(name)]; ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}
	file, err := f.Filesystem.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	if err, ok := f.read[filepath.Clean(name)]; ok {
		return &failingFile{File: file, err: err}, nil
	}
	return file, nil
}

func (f *FS) ReadDir(path string) ([]os.FileInfo, error) {
	if err, ok := f.readDir[filepath.Clean(path)]; ok {
		return nil, &os.PathError{Op: "readdir", Path: path, Err: err}
	}
	return f.Filesystem.ReadDir(path)
}

type failingFile struct {
	billy.File
	err error
}

func (f *failingFile) Read([]byte) (int, error) {
	return 0, f.err
}

func (f *failingFile) ReadAt([]byte, int64) (int, error) {
	return 0, f.err
}
