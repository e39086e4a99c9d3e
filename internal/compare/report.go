package compare

import (
	"fmt"
	"io"
	"strings"

	"hashdiff/internal/diff"
)

// Styler decorates lines before they are written. A nil Styler writes plain text.
type Styler interface {
	Verdict(identical bool, text string) string
	Change(t ChangeType, text string) string
	Diff(line diff.Line) string
}

// Verdict is the one-line summary printed after the two digests.
func (o *Outcome) Verdict() string {
	subject := "Files"
	if o.Kind == KindDirectory {
		subject = "Directories"
	}
	if o.Result.Identical {
		return subject + " are identical"
	}
	return subject + " have drifted"
}

// FormatHeader renders the digests and verdict of an outcome.
func FormatHeader(o *Outcome) string {
	var sb strings.Builder
	_ = WriteHeader(&sb, o, nil)
	return sb.String()
}

func WriteHeader(w io.Writer, o *Outcome, st Styler) error {
	verdict := o.Verdict()
	if st != nil {
		verdict = st.Verdict(o.Result.Identical, verdict)
	}
	_, err := fmt.Fprintf(w, "Source: %s\nTarget: %s\n%s\n", o.Result.Source, o.Result.Target, verdict)
	return err
}

// FormatChange renders one line of a drift report.
func FormatChange(change *Change) string {
	switch change.Type {
	case Added:
		return fmt.Sprintf("  + %s (%s)", change.Path, formatSize(change.Target.Size))
	case Removed:
		return fmt.Sprintf("  - %s (%s)", change.Path, formatSize(change.Source.Size))
	}
	if change.KindChanged() {
		return fmt.Sprintf("  ~ %s (%s -> %s)", change.Path, change.Source.Kind, change.Target.Kind)
	}
	return fmt.Sprintf("  ~ %s (%s -> %s)", change.Path,
		formatSize(change.Source.Size), formatSize(change.Target.Size))
}

// FormatReport lists every change grouped by type, followed by any line
// diffs attached to modified paths.
func FormatReport(report *Report) string {
	var sb strings.Builder
	_ = WriteReport(&sb, report, nil)
	return sb.String()
}

func WriteReport(w io.Writer, report *Report, st Styler) error {
	if !report.HasChanges() {
		_, err := io.WriteString(w, "No changes detected.\n")
		return err
	}

	for _, section := range []struct {
		title   string
		changes []Change
	}{
		{"ADDED", report.Added},
		{"MODIFIED", report.Modified},
		{"REMOVED", report.Removed},
	} {
		if len(section.changes) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s (%d files):\n", section.title, len(section.changes)); err != nil {
			return err
		}
		for i := range section.changes {
			change := &section.changes[i]
			line := FormatChange(change)
			if st != nil {
				line = st.Change(change.Type, line)
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
			if change.Diff != nil {
				if err := WriteDiff(w, change.Diff, st); err != nil {
					return err
				}
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "Summary: %d added, %d modified, %d removed\n",
		len(report.Added), len(report.Modified), len(report.Removed))
	return err
}

// WriteDiff drains a diff result into w, one line per diff line.
func WriteDiff(w io.Writer, result *diff.Result, st Styler) error {
	if result.Binary {
		_, err := io.WriteString(w, "Binary files differ\n")
		return err
	}
	for line := range result.Lines {
		text := line.String()
		if st != nil {
			text = st.Diff(line)
		}
		if _, err := fmt.Fprintln(w, text); err != nil {
			return err
		}
	}
	return nil
}

func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
