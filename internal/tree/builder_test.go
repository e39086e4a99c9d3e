package tree

import (
	"context"
	"errors"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hashdiff/internal/faultfs"
	"hashdiff/internal/hash"
	"hashdiff/internal/walker"
)

var errInjected = errors.New("injected failure")

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

func defaultFilter() *walker.Filter {
	return walker.NewFilter([]string{".git"}, []string{".gitignore", "lazy-lock.json"})
}

func digest(t *testing.T, b *Builder, root string) string {
	t.Helper()
	tree, err := b.Digest(context.Background(), osfs.New(root))
	require.NoError(t, err)
	return tree.Root.String()
}

func builders() map[string]*Builder {
	return map[string]*Builder{
		"stream": {Algorithm: hash.SHA256, Scheme: SchemeStream, Filter: defaultFilter()},
		"merkle": {Algorithm: hash.SHA256, Scheme: SchemeMerkle, Filter: defaultFilter(), Workers: 4},
	}
}

func TestDigest_StreamFoldsPathThenContents(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt":      "hello",
		"sub/b.txt":  "world",
		".gitignore": "ignored",
	})

	b := &Builder{Algorithm: hash.SHA256, Filter: defaultFilter()}
	tree, err := b.Digest(context.Background(), osfs.New(root))
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("a.txthellosub/b.txtworld"))
	assert.Equal(t, hex.EncodeToString(sum[:]), tree.Root.String())
	assert.Equal(t, SchemeStream, tree.Scheme)
	assert.Len(t, tree.Files, 2)
	assert.Equal(t, int64(10), tree.TotalSize)
}

func TestDigest_EmptyTree(t *testing.T) {
	sum := sha256.Sum256(nil)
	for name, b := range builders() {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, hex.EncodeToString(sum[:]), digest(t, b, t.TempDir()))
		})
	}
}

func TestDigest_OnlyIgnoredEqualsEmpty(t *testing.T) {
	for name, b := range builders() {
		t.Run(name, func(t *testing.T) {
			ignored := writeTree(t, map[string]string{
				".gitignore": "*.o",
				".git/HEAD":  "ref: refs/heads/main",
			})
			assert.Equal(t, digest(t, b, t.TempDir()), digest(t, b, ignored))
		})
	}
}

func TestDigest_Deterministic(t *testing.T) {
	files := map[string]string{
		"file1.txt":        "one",
		"file2.txt":        "two",
		"nested/file3.txt": "three",
	}
	for name, b := range builders() {
		t.Run(name, func(t *testing.T) {
			root := writeTree(t, files)
			assert.Equal(t, digest(t, b, root), digest(t, b, root))
		})
	}
}

func TestDigest_IndependentOfMountPoint(t *testing.T) {
	files := map[string]string{
		"file1.txt":        "one",
		"nested/file3.txt": "three",
	}
	for name, b := range builders() {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, digest(t, b, writeTree(t, files)), digest(t, b, writeTree(t, files)))
		})
	}
}

func TestDigest_IgnoredAdditionsLeaveDigestUnchanged(t *testing.T) {
	base := map[string]string{"a.txt": "hello", "dir/b.txt": "world"}
	withIgnored := map[string]string{
		"a.txt":               "hello",
		"dir/b.txt":           "world",
		"dir/.gitignore":      "*",
		".git/objects/ab/cd":  "blob",
		"nvim/lazy-lock.json": "{}",
	}
	for name, b := range builders() {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, digest(t, b, writeTree(t, base)), digest(t, b, writeTree(t, withIgnored)))
		})
	}
}

func TestDigest_RenameChangesDigest(t *testing.T) {
	for name, b := range builders() {
		t.Run(name, func(t *testing.T) {
			before := writeTree(t, map[string]string{"a.txt": "hello", "b.txt": "world"})
			after := writeTree(t, map[string]string{"a.txt": "hello", "c.txt": "world"})
			assert.NotEqual(t, digest(t, b, before), digest(t, b, after))
		})
	}
}

func TestDigest_ContentChangeChangesDigest(t *testing.T) {
	for name, b := range builders() {
		t.Run(name, func(t *testing.T) {
			before := writeTree(t, map[string]string{"a.txt": "hello", "b.txt": "world"})
			after := writeTree(t, map[string]string{"a.txt": "hello", "b.txt": "World"})
			assert.NotEqual(t, digest(t, b, before), digest(t, b, after))
		})
	}
}

func TestDigest_SchemesDiffer(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "hello", "b.txt": "world", "c.txt": "!"})
	all := builders()
	assert.NotEqual(t, digest(t, all["stream"], root), digest(t, all["merkle"], root))
}

func TestDigest_MerkleSingleFileIsLeaf(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "hello"})
	b := builders()["merkle"]

	sum := sha256.Sum256([]byte("a.txthello"))
	assert.Equal(t, hex.EncodeToString(sum[:]), digest(t, b, root))
}

func TestDigest_MerkleIndependentOfWorkers(t *testing.T) {
	files := map[string]string{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		files[name+".txt"] = name
	}
	root := writeTree(t, files)

	one := &Builder{Algorithm: hash.BLAKE3, Scheme: SchemeMerkle, Workers: 1}
	many := &Builder{Algorithm: hash.BLAKE3, Scheme: SchemeMerkle, Workers: 8}
	assert.Equal(t, digest(t, one, root), digest(t, many, root))
}

func TestDigest_MissingRoot(t *testing.T) {
	b := builders()["stream"]
	_, err := b.Digest(context.Background(), osfs.New(filepath.Join(t.TempDir(), "missing")))
	assert.Error(t, err)
}

func TestDigest_UnreadableFileAborts(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	for name, b := range builders() {
		t.Run(name, func(t *testing.T) {
			root := writeTree(t, map[string]string{"a.txt": "hello", "b.txt": "secret"})
			require.NoError(t, os.Chmod(filepath.Join(root, "b.txt"), 0))
			t.Cleanup(func() { _ = os.Chmod(filepath.Join(root, "b.txt"), 0644) })

			_, err := b.Digest(context.Background(), osfs.New(root))
			require.Error(t, err)
			assert.ErrorIs(t, err, os.ErrPermission)
		})
	}
}

func TestDigest_InjectedFailuresAbort(t *testing.T) {
	files := map[string]string{"a.txt": "hello", "sub/b.txt": "secret", "c.txt": "!"}
	name := filepath.Join("sub", "b.txt")

	for scheme, b := range builders() {
		t.Run(scheme+"/open", func(t *testing.T) {
			fsys := faultfs.New(osfs.New(writeTree(t, files))).FailOpen(name, errInjected)

			tree, err := b.Digest(context.Background(), fsys)
			assert.Nil(t, tree)
			assert.ErrorIs(t, err, errInjected)
			assert.Contains(t, err.Error(), "sub/b.txt")
		})
		t.Run(scheme+"/read", func(t *testing.T) {
			fsys := faultfs.New(osfs.New(writeTree(t, files))).FailRead(name, errInjected)

			tree, err := b.Digest(context.Background(), fsys)
			assert.Nil(t, tree)
			assert.ErrorIs(t, err, errInjected)
		})
	}
}

func TestDigest_UnlistableIgnoredDirectoryIsHarmless(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "hello", ".git/HEAD": "ref: main"})
	clean := writeTree(t, map[string]string{"a.txt": "hello"})

	for scheme, b := range builders() {
		t.Run(scheme, func(t *testing.T) {
			fsys := faultfs.New(osfs.New(root)).FailReadDir(".git", errInjected)

			tree, err := b.Digest(context.Background(), fsys)
			require.NoError(t, err)
			assert.Equal(t, digest(t, b, clean), tree.Root.String())
		})
	}
}

func TestParseScheme(t *testing.T) {
	s, err := ParseScheme("")
	require.NoError(t, err)
	assert.Equal(t, SchemeStream, s)

	s, err = ParseScheme("Merkle")
	require.NoError(t, err)
	assert.Equal(t, SchemeMerkle, s)

	_, err = ParseScheme("xor")
	assert.Error(t, err)
}
