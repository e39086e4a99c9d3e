package walker

import (
	"sort"
	"strings"
)

// Filter decides which relative paths take part in hashing and comparison.
// Matching is exact on path segments: a segment equal to an ignored directory
// name excludes the path wherever it occurs, and a final segment equal to an
// ignored file name excludes that file.
type Filter struct {
	dirs  map[string]struct{}
	files map[string]struct{}
}

// NewFilter copies the given names; later changes to the slices have no effect.
func NewFilter(ignoreDirs, ignoreFiles []string) *Filter {
	f := &Filter{
		dirs:  make(map[string]struct{}, len(ignoreDirs)),
		files: make(map[string]struct{}, len(ignoreFiles)),
	}
	for _, d := range ignoreDirs {
		if d = strings.Trim(d, "/"); d != "" {
			f.dirs[d] = struct{}{}
		}
	}
	for _, name := range ignoreFiles {
		if name != "" {
			f.files[name] = struct{}{}
		}
	}
	return f
}

// Include reports whether the slash-separated relative path participates.
func (f *Filter) Include(relPath string) bool {
	if f == nil {
		return true
	}
	parts := strings.Split(relPath, "/")
	for _, part := range parts {
		if _, ok := f.dirs[part]; ok {
			return false
		}
	}
	_, ignored := f.files[parts[len(parts)-1]]
	return !ignored
}

// skipDir reports whether a directory can be pruned from the walk.
func (f *Filter) skipDir(name string) bool {
	if f == nil {
		return false
	}
	_, ok := f.dirs[name]
	return ok
}

// IgnoredDirs returns the ignored directory names, sorted.
func (f *Filter) IgnoredDirs() []string {
	if f == nil {
		return nil
	}
	return sortedKeys(f.dirs)
}

// IgnoredFiles returns the ignored file names, sorted.
func (f *Filter) IgnoredFiles() []string {
	if f == nil {
		return nil
	}
	return sortedKeys(f.files)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
