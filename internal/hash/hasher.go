package hash

import (
	"bytes"
	"crypto/md5"  // #nosec G501 -- drift detection only, not a security boundary
	"crypto/sha1" // #nosec G505 -- drift detection only, not a security boundary
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	stdhash "hash"
	"io"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/go-git/go-billy/v5"
	"github.com/zeebo/blake3"
)

const bufferSize = 32 * 1024 // 32KB buffer for streaming

// ErrUnsupportedAlgorithm is returned when an algorithm name is not recognised.
var ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")

// Algorithm names a digest function.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA1   Algorithm = "sha1"
	SHA384 Algorithm = "sha384"
	SHA512 Algorithm = "sha512"
	MD5    Algorithm = "md5"
	XXHash Algorithm = "xxhash"
	BLAKE3 Algorithm = "blake3"
)

// DefaultAlgorithm matches the digests produced by the original drift tool.
const DefaultAlgorithm = SHA256

// Algorithms lists every supported algorithm in display order.
func Algorithms() []Algorithm {
	return []Algorithm{SHA256, SHA1, SHA384, SHA512, MD5, XXHash, BLAKE3}
}

// ParseAlgorithm normalises name and checks that it is supported.
func ParseAlgorithm(name string) (Algorithm, error) {
	alg := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	if alg == "" {
		return DefaultAlgorithm, nil
	}
	if _, err := alg.New(); err != nil {
		return "", err
	}
	return alg, nil
}

// New returns a fresh running hash for the algorithm.
func (a Algorithm) New() (stdhash.Hash, error) {
	switch a {
	case SHA256:
		return sha256.New(), nil
	case SHA1:
		return sha1.New(), nil // #nosec G401
	case SHA384:
		return sha512.New384(), nil
	case SHA512:
		return sha512.New(), nil
	case MD5:
		return md5.New(), nil // #nosec G401
	case XXHash:
		return xxhash.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, string(a))
	}
}

func (a Algorithm) String() string {
	return string(a)
}

// Digest is the finalised output of an Algorithm.
type Digest []byte

// String renders the digest as lowercase hex.
func (d Digest) String() string {
	return hex.EncodeToString(d)
}

// Equal reports whether both digests have the same hex representation.
func (d Digest) Equal(other Digest) bool {
	return bytes.Equal(d, other)
}

// Sum hashes data in one shot.
func (a Algorithm) Sum(data []byte) (Digest, error) {
	h, err := a.New()
	if err != nil {
		return nil, err
	}
	h.Write(data)
	return Digest(h.Sum(nil)), nil
}

// Feed streams the named file from fsys into h.
func Feed(h io.Writer, fsys billy.Filesystem, name string) (int64, error) {
	file, err := fsys.Open(name)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	buf := make([]byte, bufferSize)
	var total int64

	for {
		n, err := file.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			total += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return total, fmt.Errorf("failed to read file %s: %w", name, err)
		}
	}

	return total, nil
}

// HashFile computes the digest of a single file using streaming reads.
func HashFile(fsys billy.Filesystem, name string, alg Algorithm) (Digest, error) {
	h, err := alg.New()
	if err != nil {
		return nil, err
	}
	if _, err := Feed(h, fsys, name); err != nil {
		return nil, err
	}
	return Digest(h.Sum(nil)), nil
}

// MerkleFunc adapts alg to the hash function signature go-merkletree expects.
func MerkleFunc(alg Algorithm) (func([]byte) ([]byte, error), error) {
	if _, err := alg.New(); err != nil {
		return nil, err
	}
	return func(data []byte) ([]byte, error) {
		return alg.Sum(data)
	}, nil
}
