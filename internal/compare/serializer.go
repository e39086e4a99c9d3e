package compare

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"hashdiff/internal/diff"
)

type SerializedFile struct {
	Kind   string `json:"kind"`
	Digest string `json:"digest,omitempty"`
	Size   string `json:"size,omitempty"`
}

type SerializedChange struct {
	Path   string          `json:"path"`
	Source *SerializedFile `json:"source,omitempty"`
	Target *SerializedFile `json:"target,omitempty"`
	Binary bool            `json:"binary,omitempty"`
	Diff   []string        `json:"diff,omitempty"`
}

type SerializedOutcome struct {
	Generator string             `json:"generator"`
	Created   time.Time          `json:"created"`
	Kind      Kind               `json:"kind"`
	Algorithm string             `json:"algorithm"`
	Scheme    string             `json:"scheme,omitempty"`
	Source    string             `json:"source"`
	Target    string             `json:"target"`
	Digests   [2]string          `json:"digests"`
	Identical bool               `json:"identical"`
	Added     []SerializedChange `json:"added,omitempty"`
	Modified  []SerializedChange `json:"modified,omitempty"`
	Removed   []SerializedChange `json:"removed,omitempty"`
	Binary    bool               `json:"binary,omitempty"`
	Diff      []string           `json:"diff,omitempty"`
}

// Serialize flattens an outcome into its JSON document form. Lazy diffs are
// drained here.
func Serialize(o *Outcome) *SerializedOutcome {
	out := &SerializedOutcome{
		Generator: "hashdiff",
		Created:   time.Now().UTC(),
		Kind:      o.Kind,
		Algorithm: o.Algorithm.String(),
		Source:    o.Source,
		Target:    o.Target,
		Digests:   [2]string{o.Result.Source.String(), o.Result.Target.String()},
		Identical: o.Result.Identical,
	}
	if o.Kind == KindDirectory {
		out.Scheme = string(o.Scheme)
	}

	if o.Report != nil {
		out.Added = serializeChanges(o.Report.Added)
		out.Modified = serializeChanges(o.Report.Modified)
		out.Removed = serializeChanges(o.Report.Removed)
	}
	if o.Diff != nil {
		out.Binary, out.Diff = diffLines(o.Diff)
	}
	return out
}

// WriteJSON writes the serialized outcome to w as indented JSON.
func WriteJSON(w io.Writer, o *Outcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Serialize(o)); err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}
	return nil
}

func serializeChanges(changes []Change) []SerializedChange {
	out := make([]SerializedChange, 0, len(changes))
	for _, c := range changes {
		sc := SerializedChange{
			Path:   c.Path,
			Source: serializeFile(c.Source),
			Target: serializeFile(c.Target),
		}
		if c.Diff != nil {
			sc.Binary, sc.Diff = diffLines(c.Diff)
		}
		out = append(out, sc)
	}
	return out
}

func serializeFile(data *FileData) *SerializedFile {
	if data == nil {
		return nil
	}
	sf := &SerializedFile{Kind: data.Kind}
	if data.Digest != nil {
		sf.Digest = data.Digest.String()
	}
	if data.Kind == "file" {
		sf.Size = formatSize(data.Size)
	}
	return sf
}

func diffLines(result *diff.Result) (bool, []string) {
	if result.Binary {
		return true, nil
	}
	var lines []string
	for line := range result.Lines {
		lines = append(lines, line.String())
	}
	return false, lines
}
