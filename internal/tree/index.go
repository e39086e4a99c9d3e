package tree

import (
	"path/filepath"
	"sort"

	"github.com/go-git/go-billy/v5"

	"hashdiff/internal/walker"
)

// Index maps each included relative path under Root to its absolute location.
type Index struct {
	Root  string
	Files map[string]string
	Sizes map[string]int64
}

// Index enumerates the root of fsys with the same traversal and filter as
// Digest, materialising the file set instead of hashing it.
func (b *Builder) Index(fsys billy.Filesystem) (*Index, error) {
	files, err := walker.Walk(fsys, b.Filter)
	if err != nil {
		return nil, err
	}

	root := fsys.Root()
	idx := &Index{
		Root:  root,
		Files: make(map[string]string, len(files)),
		Sizes: make(map[string]int64, len(files)),
	}
	for _, f := range files {
		idx.Files[f.Path] = filepath.Join(root, filepath.FromSlash(f.Path))
		idx.Sizes[f.Path] = f.Size
	}
	return idx, nil
}

func (idx *Index) Has(relPath string) bool {
	_, ok := idx.Files[relPath]
	return ok
}

func (idx *Index) Len() int {
	return len(idx.Files)
}

// Paths returns the relative paths in canonical order.
func (idx *Index) Paths() []string {
	paths := make([]string, 0, len(idx.Files))
	for p := range idx.Files {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		return walker.ComparePaths(paths[i], paths[j]) < 0
	})
	return paths
}

// Difference returns the paths of idx that other lacks, in canonical order.
func (idx *Index) Difference(other *Index) []string {
	out := make([]string, 0)
	for _, p := range idx.Paths() {
		if !other.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// Intersection returns the paths present in both indexes, in canonical order.
func (idx *Index) Intersection(other *Index) []string {
	out := make([]string, 0)
	for _, p := range idx.Paths() {
		if other.Has(p) {
			out = append(out, p)
		}
	}
	return out
}
