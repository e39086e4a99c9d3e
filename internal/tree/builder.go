package tree

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/txaty/go-merkletree"

	"hashdiff/internal/hash"
	"hashdiff/internal/progress"
	"hashdiff/internal/walker"
)

// Builder digests and indexes trees. Both operations enumerate through
// walker.Walk with the same Filter, so they always agree on the file set.
type Builder struct {
	Algorithm hash.Algorithm
	Scheme    Scheme
	Filter    *walker.Filter
	Workers   int
	Progress  *progress.Bar
}

// Digest computes the tree digest of the root of fsys.
// A single unreadable file aborts the whole digest.
func (b *Builder) Digest(ctx context.Context, fsys billy.Filesystem) (*Tree, error) {
	files, err := walker.Walk(fsys, b.Filter)
	if err != nil {
		return nil, err
	}

	var totalSize int64
	for _, f := range files {
		totalSize += f.Size
	}

	var root hash.Digest
	switch b.Scheme {
	case SchemeStream, "":
		root, err = b.streamDigest(ctx, fsys, files)
	case SchemeMerkle:
		root, err = b.merkleDigest(ctx, fsys, files)
	default:
		err = fmt.Errorf("unknown tree digest scheme %q", b.Scheme)
	}
	if err != nil {
		return nil, err
	}

	return &Tree{
		Root:      root,
		RootPath:  fsys.Root(),
		Algorithm: b.Algorithm,
		Scheme:    b.scheme(),
		Files:     files,
		TotalSize: totalSize,
	}, nil
}

func (b *Builder) scheme() Scheme {
	if b.Scheme == "" {
		return SchemeStream
	}
	return b.Scheme
}

// streamDigest feeds, per file, the relative path bytes and then the contents
// into a single running hash. Files must already be in canonical order.
func (b *Builder) streamDigest(ctx context.Context, fsys billy.Filesystem, files []walker.FileInfo) (hash.Digest, error) {
	h, err := b.Algorithm.New()
	if err != nil {
		return nil, err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		h.Write([]byte(f.Path))
		if _, err := hash.Feed(h, fsys, filepath.FromSlash(f.Path)); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}

		b.Progress.SetDirectory(f.Path)
		b.Progress.Increment()
	}

	return hash.Digest(h.Sum(nil)), nil
}

// merkleDigest hashes leaves in parallel and combines them sequentially.
func (b *Builder) merkleDigest(ctx context.Context, fsys billy.Filesystem, files []walker.FileInfo) (hash.Digest, error) {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}

	leaves, err := walker.HashFiles(ctx, fsys, paths, walker.HashOptions{
		Algorithm:  b.Algorithm,
		Workers:    b.Workers,
		PrefixPath: true,
		Progress:   b.Progress,
	})
	if err != nil {
		return nil, err
	}

	// go-merkletree needs at least two blocks
	switch len(paths) {
	case 0:
		return b.Algorithm.Sum(nil)
	case 1:
		return leaves[paths[0]], nil
	}

	blocks := make([]merkletree.DataBlock, 0, len(paths))
	for _, p := range paths {
		blocks = append(blocks, leaf(leaves[p]))
	}

	hashFunc, err := hash.MerkleFunc(b.Algorithm)
	if err != nil {
		return nil, err
	}

	mt, err := merkletree.New(&merkletree.Config{
		HashFunc:           hashFunc,
		Mode:               merkletree.ModeTreeBuild,
		DisableLeafHashing: true,
	}, blocks)
	if err != nil {
		return nil, fmt.Errorf("failed to build merkle tree: %w", err)
	}

	return hash.Digest(mt.Root), nil
}
