package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/colorstring"
	"github.com/spf13/pflag"

	"hashdiff/internal/compare"
	"hashdiff/internal/diff"
	"hashdiff/internal/progress"
)

type colorMode string

const (
	colorAuto   colorMode = "auto"
	colorAlways colorMode = "always"
	colorNever  colorMode = "never"
)

var _ pflag.Value = (*colorMode)(nil)

func (m *colorMode) String() string { return string(*m) }

func (m *colorMode) Set(s string) error {
	switch mode := colorMode(s); mode {
	case colorAuto, colorAlways, colorNever:
		*m = mode
		return nil
	default:
		return fmt.Errorf("must be one of auto, always, never")
	}
}

func (m *colorMode) Type() string { return "when" }

// enabled resolves auto against whether w is a terminal and NO_COLOR.
func (m *colorMode) enabled(w io.Writer) bool {
	switch *m {
	case colorAlways:
		return true
	case colorNever:
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	return ok && progress.IsTerminal(f)
}

// styler wraps output lines in ANSI colour codes. Only the codes pass
// through colorstring so brackets in file content are left alone.
type styler struct {
	colorize colorstring.Colorize
}

func newStyler(enabled bool) compare.Styler {
	if !enabled {
		return nil
	}
	return &styler{
		colorize: colorstring.Colorize{
			Colors: colorstring.DefaultColors,
			Reset:  false,
		},
	}
}

func (s *styler) paint(color, text string) string {
	return s.colorize.Color("["+color+"]") + text + s.colorize.Color("[reset]")
}

func (s *styler) Verdict(identical bool, text string) string {
	if identical {
		return s.paint("green", text)
	}
	return s.paint("yellow", text)
}

func (s *styler) Change(t compare.ChangeType, text string) string {
	switch t {
	case compare.Added:
		return s.paint("green", text)
	case compare.Removed:
		return s.paint("red", text)
	default:
		return s.paint("yellow", text)
	}
}

func (s *styler) Diff(line diff.Line) string {
	switch line.Kind {
	case diff.Added:
		return s.paint("green", line.String())
	case diff.Removed:
		return s.paint("red", line.String())
	case diff.Header:
		return s.paint("cyan", line.String())
	default:
		return line.String()
	}
}
