// Package diff renders unified line diffs between two files.
package diff

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/pmezard/go-difflib/difflib"
)

// DefaultContext is the number of unchanged lines shown around each change.
const DefaultContext = 3

var errNotText = errors.New("not a text file")

// noNewline follows a line that ends its file without a newline.
const noNewline = `\ No newline at end of file`

type Kind int

const (
	Header Kind = iota
	Context
	Added
	Removed
)

func (k Kind) String() string {
	switch k {
	case Header:
		return "header"
	case Context:
		return "context"
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Line is one annotated line of unified diff output, without its newline.
type Line struct {
	Kind Kind
	Text string
}

// String renders the line the way a unified diff prints it.
func (l Line) String() string {
	switch l.Kind {
	case Context:
		return " " + l.Text
	case Added:
		return "+" + l.Text
	case Removed:
		return "-" + l.Text
	default:
		return l.Text
	}
}

// Result is either a lazily produced diff or, when Binary is set, the marker
// that at least one side could not be read as text.
type Result struct {
	Binary bool
	Lines  iter.Seq[Line]
}

type options struct {
	context        int
	labelA, labelB string
}

type Option func(*options)

// WithContext sets how many unchanged lines surround each hunk.
func WithContext(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.context = n
		}
	}
}

// WithLabels overrides the names printed in the --- and +++ headers.
func WithLabels(a, b string) Option {
	return func(o *options) {
		o.labelA, o.labelB = a, b
	}
}

// Files diffs nameA in fsA against nameB in fsB. Files that are not text
// produce a Binary result; failures to read either file are returned.
func Files(fsA billy.Filesystem, nameA string, fsB billy.Filesystem, nameB string, opts ...Option) (*Result, error) {
	o := &options{context: DefaultContext, labelA: nameA, labelB: nameB}
	for _, opt := range opts {
		opt(o)
	}

	rawA, err := util.ReadFile(fsA, nameA)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", nameA, err)
	}
	rawB, err := util.ReadFile(fsB, nameB)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", nameB, err)
	}

	a, errA := decode(rawA)
	b, errB := decode(rawB)
	if errA != nil || errB != nil {
		return binary(), nil
	}

	return Texts(o.labelA, a, o.labelB, b, o.context), nil
}

// Texts diffs two in-memory texts.
func Texts(labelA, a, labelB, b string, context int) *Result {
	return &Result{
		Lines: unified(labelA, labelB, splitLines(a), splitLines(b), context),
	}
}

func binary() *Result {
	return &Result{
		Binary: true,
		Lines:  func(func(Line) bool) {},
	}
}

func decode(data []byte) (string, error) {
	if bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data) {
		return "", errNotText
	}
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return string(data), nil
		}
	}
	return "", errNotText
}

// splitLines keeps each line's newline so that a missing final newline
// compares as a change.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func unified(labelA, labelB string, a, b []string, context int) iter.Seq[Line] {
	return func(yield func(Line) bool) {
		emit := func(kind Kind, text string) bool {
			if !yield(Line{kind, strings.TrimSuffix(text, "\n")}) {
				return false
			}
			if !strings.HasSuffix(text, "\n") {
				return yield(Line{Header, noNewline})
			}
			return true
		}

		groups := difflib.NewMatcher(a, b).GetGroupedOpCodes(context)

		for i, group := range groups {
			if i == 0 {
				if !yield(Line{Header, "--- " + labelA}) || !yield(Line{Header, "+++ " + labelB}) {
					return
				}
			}

			first, last := group[0], group[len(group)-1]
			hunk := fmt.Sprintf("@@ -%s +%s @@",
				formatRange(first.I1, last.I2), formatRange(first.J1, last.J2))
			if !yield(Line{Header, hunk}) {
				return
			}

			for _, op := range group {
				if op.Tag == 'e' {
					for _, text := range a[op.I1:op.I2] {
						if !emit(Context, text) {
							return
						}
					}
					continue
				}
				if op.Tag == 'r' || op.Tag == 'd' {
					for _, text := range a[op.I1:op.I2] {
						if !emit(Removed, text) {
							return
						}
					}
				}
				if op.Tag == 'r' || op.Tag == 'i' {
					for _, text := range b[op.J1:op.J2] {
						if !emit(Added, text) {
							return
						}
					}
				}
			}
		}
	}
}

// formatRange renders a hunk range: a one-line range is just its line
// number, an empty range points at the line before it.
func formatRange(start, stop int) string {
	beginning := start + 1
	length := stop - start
	if length == 1 {
		return fmt.Sprintf("%d", beginning)
	}
	if length == 0 {
		beginning--
	}
	return fmt.Sprintf("%d,%d", beginning, length)
}
