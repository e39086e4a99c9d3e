package tree

import (
	"fmt"
	"strings"

	"hashdiff/internal/hash"
	"hashdiff/internal/walker"
)

// Scheme selects how per-file input is combined into a tree digest.
type Scheme string

const (
	// SchemeStream folds every relative path and its contents, in canonical
	// order, into one running hash.
	SchemeStream Scheme = "stream"
	// SchemeMerkle hashes each path+contents pair into a leaf and combines
	// the leaves, in canonical order, into a binary Merkle root.
	SchemeMerkle Scheme = "merkle"
)

func ParseScheme(name string) (Scheme, error) {
	switch s := Scheme(strings.ToLower(strings.TrimSpace(name))); s {
	case "":
		return SchemeStream, nil
	case SchemeStream, SchemeMerkle:
		return s, nil
	default:
		return "", fmt.Errorf("unknown tree digest scheme %q", name)
	}
}

// Tree is the result of digesting one root.
type Tree struct {
	Root      hash.Digest
	RootPath  string
	Algorithm hash.Algorithm
	Scheme    Scheme
	Files     []walker.FileInfo
	TotalSize int64
}

type leaf []byte

func (l leaf) Serialize() ([]byte, error) {
	return l, nil
}
