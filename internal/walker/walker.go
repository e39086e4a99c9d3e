package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"hashdiff/internal/hash"
	"hashdiff/internal/progress"
)

type FileInfo struct {
	Path    string // slash-separated, relative to the walk root
	Size    int64
	ModTime time.Time
}

// Walk enumerates the regular files under the root of fsys that pass filter,
// in canonical order. Symlinks to regular files are included, dangling
// symlinks and symlinked directories are not followed. Any error reading the
// tree aborts the walk.
func Walk(fsys billy.Filesystem, filter *Filter) ([]FileInfo, error) {
	files := make([]FileInfo, 0)

	err := util.Walk(fsys, ".", func(path string, info os.FileInfo, err error) error {
		relPath := filepath.ToSlash(path)

		// util.Walk lists a directory before visiting it, so a listing error
		// arrives here together with the directory's info.
		if info != nil && info.IsDir() && relPath != "." && filter.skipDir(info.Name()) {
			return filepath.SkipDir
		}
		if err != nil {
			return err
		}

		if relPath == "." || info.IsDir() {
			return nil
		}

		if !filter.Include(relPath) {
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 {
			target, err := fsys.Stat(path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			info = target
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		files = append(files, FileInfo{
			Path:    relPath,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %s: %w", fsys.Root(), err)
	}

	sort.Slice(files, func(i, j int) bool {
		return ComparePaths(files[i].Path, files[j].Path) < 0
	})

	return files, nil
}

// ComparePaths orders slash-separated relative paths segment by segment, the
// order a depth-first walk over sorted directory listings produces.
func ComparePaths(a, b string) int {
	return slices.Compare(strings.Split(a, "/"), strings.Split(b, "/"))
}

// Stat resolves relPath in fsys the way Walk does. exists is false when there
// is no entry at relPath at all, or when a parent is not a real directory,
// since Walk never descends through symlinked or missing parents. A dangling
// symlink exists with ModeSymlink.
func Stat(fsys billy.Filesystem, relPath string) (mode fs.FileMode, exists bool, err error) {
	name := filepath.FromSlash(relPath)

	segments := strings.Split(relPath, "/")
	for i := 1; i < len(segments); i++ {
		parent, err := fsys.Lstat(filepath.FromSlash(strings.Join(segments[:i], "/")))
		if err != nil {
			if isAbsent(err) {
				return 0, false, nil
			}
			return 0, false, err
		}
		if !parent.IsDir() {
			return 0, false, nil
		}
	}

	info, err := fsys.Lstat(name)
	if err != nil {
		if isAbsent(err) {
			return 0, false, nil
		}
		return 0, false, err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := fsys.Stat(name)
		if err != nil {
			if isAbsent(err) {
				return info.Mode(), true, nil
			}
			return 0, false, err
		}
		info = target
	}

	return info.Mode(), true, nil
}

// A parent that turned into a regular file reports ENOTDIR rather than ENOENT.
func isAbsent(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

// KindName describes a file mode for reports.
func KindName(mode fs.FileMode) string {
	switch {
	case mode.IsRegular():
		return "file"
	case mode.IsDir():
		return "directory"
	case mode&fs.ModeSymlink != 0:
		return "symlink"
	case mode&fs.ModeNamedPipe != 0:
		return "pipe"
	case mode&fs.ModeSocket != 0:
		return "socket"
	case mode&fs.ModeDevice != 0:
		return "device"
	default:
		return "irregular"
	}
}

type HashOptions struct {
	Algorithm hash.Algorithm
	Workers   int
	// PrefixPath feeds each relative path into its digest ahead of the contents.
	PrefixPath bool
	Progress   *progress.Bar
}

type hashJob struct {
	path string
}

type hashJobResult struct {
	path   string
	digest hash.Digest
	err    error
}

// HashFiles digests the given relative paths concurrently. The first failure
// cancels the remaining work and is returned; no partial result is produced.
func HashFiles(ctx context.Context, fsys billy.Filesystem, paths []string, opts HashOptions) (map[string]hash.Digest, error) {
	numWorkers := opts.Workers
	if numWorkers <= 0 {
		numWorkers = 1
	}

	if _, err := opts.Algorithm.New(); err != nil {
		return nil, err
	}

	hashes := make(map[string]hash.Digest, len(paths))
	if len(paths) == 0 {
		return hashes, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Both channels hold every job so neither side ever blocks
	jobs := make(chan hashJob, len(paths))
	results := make(chan hashJobResult, len(paths))

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if err := ctx.Err(); err != nil {
					results <- hashJobResult{path: job.path, err: err}
					continue
				}
				digest, err := hashOne(fsys, job.path, opts)
				results <- hashJobResult{
					path:   job.path,
					digest: digest,
					err:    err,
				}
			}
		}()
	}

	for _, p := range paths {
		jobs <- hashJob{path: p}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	for jobResult := range results {
		if jobResult.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", jobResult.path, jobResult.err)
				cancel()
			}
			continue
		}
		hashes[jobResult.path] = jobResult.digest

		opts.Progress.SetDirectory(jobResult.path)
		opts.Progress.Increment()
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return hashes, nil
}

func hashOne(fsys billy.Filesystem, relPath string, opts HashOptions) (hash.Digest, error) {
	h, err := opts.Algorithm.New()
	if err != nil {
		return nil, err
	}
	if opts.PrefixPath {
		h.Write([]byte(relPath))
	}
	if _, err := hash.Feed(h, fsys, filepath.FromSlash(relPath)); err != nil {
		return nil, err
	}
	return hash.Digest(h.Sum(nil)), nil
}
