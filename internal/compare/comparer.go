package compare

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"golang.org/x/sync/errgroup"

	"hashdiff/internal/config"
	"hashdiff/internal/diff"
	"hashdiff/internal/hash"
	"hashdiff/internal/progress"
	"hashdiff/internal/tree"
	"hashdiff/internal/walker"
)

// ErrUsage is returned by Check when one root is a file and the other a directory.
var ErrUsage = errors.New("source and target must both be files or both be directories")

type ChangeType string

const (
	Added    ChangeType = "ADDED"
	Modified ChangeType = "MODIFIED"
	Removed  ChangeType = "REMOVED"
)

// FileData describes one side of a change. Digest is only set for paths whose
// contents were compared.
type FileData struct {
	Kind   string
	Digest hash.Digest
	Size   int64
}

type Change struct {
	Type   ChangeType
	Path   string
	Source *FileData
	Target *FileData
	// Diff is set for content modifications when line diffs were requested.
	Diff *diff.Result
}

// KindChanged reports whether the path is a regular file on one side only.
func (c *Change) KindChanged() bool {
	return c.Source != nil && c.Target != nil && c.Source.Kind != c.Target.Kind
}

// Report is the granular breakdown of a drifted directory pair. Paths present
// on both sides with equal digests are omitted.
type Report struct {
	Added    []Change
	Modified []Change
	Removed  []Change
}

func (r *Report) HasChanges() bool {
	return len(r.Added) > 0 || len(r.Modified) > 0 || len(r.Removed) > 0
}

// Result is the top-level digest comparison of two roots.
type Result struct {
	Source    hash.Digest
	Target    hash.Digest
	Identical bool
}

func newResult(source, target hash.Digest) *Result {
	return &Result{
		Source:    source,
		Target:    target,
		Identical: source.Equal(target),
	}
}

// Options selects how much work Check does beyond the digest comparison.
type Options struct {
	// Verbose explains drifted directories path by path.
	Verbose bool
	// ShowDiff renders line diffs for drifted files and modified paths.
	ShowDiff bool
}

type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// Outcome is everything Check determined about one source/target pair.
type Outcome struct {
	Kind      Kind
	Source    string
	Target    string
	Algorithm hash.Algorithm
	Scheme    tree.Scheme
	Result    *Result
	// Report is set for drifted directories in verbose mode.
	Report *Report
	// Diff is set for drifted files when ShowDiff is requested.
	Diff *diff.Result
}

type Comparator struct {
	builder      tree.Builder
	contextLines int
	logger       *slog.Logger
	progress     io.Writer
	open         func(root string) (billy.Filesystem, error)
}

type Option func(*Comparator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Comparator) {
		c.logger = logger
	}
}

// WithOpener replaces how directory roots are turned into filesystems.
func WithOpener(open func(root string) (billy.Filesystem, error)) Option {
	return func(c *Comparator) {
		c.open = open
	}
}

// WithProgress draws a progress bar on w while per-file digests are computed.
func WithProgress(w io.Writer) Option {
	return func(c *Comparator) {
		c.progress = w
	}
}

// New builds a Comparator from a validated config.
func New(cfg *config.Config, opts ...Option) *Comparator {
	c := &Comparator{
		builder: tree.Builder{
			Algorithm: cfg.Algorithm,
			Scheme:    cfg.Scheme,
			Filter:    cfg.Filter(),
			Workers:   cfg.Workers,
		},
		contextLines: cfg.ContextLines,
		logger:       slog.Default(),
		open:         OpenRoot,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check runs the whole pipeline for a source/target pair: digests first, then
// the granular pass and diffs only when they are requested and needed.
func (c *Comparator) Check(ctx context.Context, source, target string, opts Options) (*Outcome, error) {
	kind, err := pairKind(source, target)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Kind:      kind,
		Source:    source,
		Target:    target,
		Algorithm: c.builder.Algorithm,
		Scheme:    c.builder.Scheme,
	}

	if kind == KindFile {
		outcome.Result, err = c.CompareFiles(ctx, source, target)
		if err != nil {
			return nil, err
		}
		if !outcome.Result.Identical && opts.ShowDiff {
			fsA, nameA := openFile(source)
			fsB, nameB := openFile(target)
			outcome.Diff, err = diff.Files(fsA, nameA, fsB, nameB,
				diff.WithContext(c.contextLines), diff.WithLabels(source, target))
			if err != nil {
				return nil, err
			}
		}
		return outcome, nil
	}

	outcome.Result, err = c.CompareTrees(ctx, source, target)
	if err != nil {
		return nil, err
	}
	if !outcome.Result.Identical && opts.Verbose {
		outcome.Report, err = c.ExplainDrift(ctx, source, target, opts.ShowDiff)
		if err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

func pairKind(source, target string) (Kind, error) {
	infoS, err := os.Stat(source)
	if err != nil {
		return "", fmt.Errorf("failed to stat source: %w", err)
	}
	infoT, err := os.Stat(target)
	if err != nil {
		return "", fmt.Errorf("failed to stat target: %w", err)
	}

	switch {
	case infoS.Mode().IsRegular() && infoT.Mode().IsRegular():
		return KindFile, nil
	case infoS.IsDir() && infoT.IsDir():
		return KindDirectory, nil
	default:
		return "", fmt.Errorf("%w: %s is a %s, %s is a %s", ErrUsage,
			source, walker.KindName(infoS.Mode()), target, walker.KindName(infoT.Mode()))
	}
}

// CompareFiles digests two single files.
func (c *Comparator) CompareFiles(ctx context.Context, a, b string) (*Result, error) {
	var digestA, digestB hash.Digest

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		fsys, name := openFile(a)
		d, err := hash.HashFile(fsys, name, c.builder.Algorithm)
		digestA = d
		return err
	})
	g.Go(func() error {
		fsys, name := openFile(b)
		d, err := hash.HashFile(fsys, name, c.builder.Algorithm)
		digestB = d
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return newResult(digestA, digestB), nil
}

// CompareTrees digests two directory trees concurrently.
func (c *Comparator) CompareTrees(ctx context.Context, a, b string) (*Result, error) {
	var treeA, treeB *tree.Tree

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := c.digestTree(gctx, a)
		treeA = t
		return err
	})
	g.Go(func() error {
		t, err := c.digestTree(gctx, b)
		treeB = t
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return newResult(treeA.Root, treeB.Root), nil
}

func (c *Comparator) digestTree(ctx context.Context, root string) (*tree.Tree, error) {
	start := time.Now()

	fsys, err := c.open(root)
	if err != nil {
		return nil, err
	}

	t, err := c.builder.Digest(ctx, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to digest %s: %w", root, err)
	}

	c.logger.Debug("tree digested",
		"root", t.RootPath,
		"files", len(t.Files),
		"bytes", t.TotalSize,
		"scheme", t.Scheme,
		"digest", t.Root.String(),
		"elapsed", time.Since(start))
	return t, nil
}

// ExplainDrift breaks the difference between two trees down per path.
// Paths indexed on one side that exist on the other as something other than a
// regular file are reported as Modified without comparing bytes.
func (c *Comparator) ExplainDrift(ctx context.Context, a, b string, withLineDiff bool) (*Report, error) {
	start := time.Now()

	fsA, err := c.open(a)
	if err != nil {
		return nil, err
	}
	fsB, err := c.open(b)
	if err != nil {
		return nil, err
	}

	var idxA, idxB *tree.Index
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		idx, err := c.builder.Index(fsA)
		idxA = idx
		return err
	})
	g.Go(func() error {
		idx, err := c.builder.Index(fsB)
		idxB = idx
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger.Debug("index built", "root", idxA.Root, "files", idxA.Len())
	c.logger.Debug("index built", "root", idxB.Root, "files", idxB.Len())

	report := &Report{
		Added:    make([]Change, 0),
		Modified: make([]Change, 0),
		Removed:  make([]Change, 0),
	}

	for _, p := range idxA.Difference(idxB) {
		change, err := onlyIn(p, idxA, fsB, Removed, true)
		if err != nil {
			return nil, err
		}
		appendChange(report, change)
	}
	for _, p := range idxB.Difference(idxA) {
		change, err := onlyIn(p, idxB, fsA, Added, false)
		if err != nil {
			return nil, err
		}
		appendChange(report, change)
	}

	common := idxA.Intersection(idxB)
	hashesA, hashesB, err := c.hashCommon(ctx, fsA, fsB, common)
	if err != nil {
		return nil, err
	}

	for _, p := range common {
		if hashesA[p].Equal(hashesB[p]) {
			continue
		}

		change := Change{
			Type:   Modified,
			Path:   p,
			Source: &FileData{Kind: "file", Digest: hashesA[p], Size: idxA.Sizes[p]},
			Target: &FileData{Kind: "file", Digest: hashesB[p], Size: idxB.Sizes[p]},
		}

		if withLineDiff {
			name := filepath.FromSlash(p)
			change.Diff, err = diff.Files(fsA, name, fsB, name,
				diff.WithContext(c.contextLines),
				diff.WithLabels(filepath.Join(a, name), filepath.Join(b, name)))
			if err != nil {
				return nil, err
			}
		}

		report.Modified = append(report.Modified, change)
	}

	sortChanges(report.Added)
	sortChanges(report.Modified)
	sortChanges(report.Removed)

	c.logger.Debug("drift explained",
		"added", len(report.Added),
		"modified", len(report.Modified),
		"removed", len(report.Removed),
		"compared", len(common),
		"elapsed", time.Since(start))

	return report, nil
}

// onlyIn classifies a path indexed on one side only. If the other side has a
// non-regular entry at the same path, the path was modified, not added/removed.
func onlyIn(p string, idx *tree.Index, other billy.Filesystem, fallback ChangeType, indexedIsSource bool) (Change, error) {
	indexed := &FileData{Kind: "file", Size: idx.Sizes[p]}

	mode, exists, err := walker.Stat(other, p)
	if err != nil {
		return Change{}, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	// A regular file the other walk did not index is not a kind change.
	if !exists || mode.IsRegular() {
		if indexedIsSource {
			return Change{Type: fallback, Path: p, Source: indexed}, nil
		}
		return Change{Type: fallback, Path: p, Target: indexed}, nil
	}

	counterpart := &FileData{Kind: walker.KindName(mode)}
	if indexedIsSource {
		return Change{Type: Modified, Path: p, Source: indexed, Target: counterpart}, nil
	}
	return Change{Type: Modified, Path: p, Source: counterpart, Target: indexed}, nil
}

func appendChange(report *Report, change Change) {
	switch change.Type {
	case Added:
		report.Added = append(report.Added, change)
	case Removed:
		report.Removed = append(report.Removed, change)
	default:
		report.Modified = append(report.Modified, change)
	}
}

func (c *Comparator) hashCommon(ctx context.Context, fsA, fsB billy.Filesystem, common []string) (map[string]hash.Digest, map[string]hash.Digest, error) {
	var bar *progress.Bar
	if c.progress != nil && len(common) > 0 {
		bar = progress.New(int64(2*len(common)), "comparing", c.progress)
		defer bar.Finish()
	}

	opts := walker.HashOptions{
		Algorithm: c.builder.Algorithm,
		Workers:   c.builder.Workers,
		Progress:  bar,
	}

	var hashesA, hashesB map[string]hash.Digest
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h, err := walker.HashFiles(gctx, fsA, common, opts)
		hashesA = h
		return err
	})
	g.Go(func() error {
		h, err := walker.HashFiles(gctx, fsB, common, opts)
		hashesB = h
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return hashesA, hashesB, nil
}

func sortChanges(changes []Change) {
	sort.Slice(changes, func(i, j int) bool {
		return walker.ComparePaths(changes[i].Path, changes[j].Path) < 0
	})
}

// OpenRoot resolves a trailing symlink so the walk starts at a real directory.
func OpenRoot(root string) (billy.Filesystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	return osfs.New(resolved), nil
}

func openFile(path string) (billy.Filesystem, string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	return osfs.New(filepath.Dir(abs)), filepath.Base(abs)
}
