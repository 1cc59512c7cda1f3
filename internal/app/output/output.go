package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const indent = "    "

var ErrInvalidJSON = errors.New("invalid JSON")

// Change describes how a write differed from the file it replaced.
type Change struct {
	Existed bool
	Changed bool
	Added   int
	Removed int
	Bytes   int
}

// FormatJSON validates payload and re-indents it with four spaces. Object
// key order, number literals and string escapes are kept as received, so the
// same payload always produces the same bytes.
func FormatJSON(payload []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidJSON)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidJSON, describeSyntaxError(err, trimmed))
	}

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", indent); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return out.Bytes(), nil
}

func describeSyntaxError(err error, src []byte) string {
	var syn *json.SyntaxError
	if !errors.As(err, &syn) {
		return err.Error()
	}
	line := 1 + bytes.Count(src[:min(int(syn.Offset), len(src))], []byte("\n"))
	return fmt.Sprintf("%v (line %d, offset %d)", syn, line, syn.Offset)
}

// WriteFile replaces path with data atomically: data goes to a temporary
// file in the same directory which is then renamed over path. On any error
// the previous file, if one exists, is left untouched.
func WriteFile(path string, data []byte) (Change, error) {
	change := Change{Bytes: len(data)}

	previous, err := os.ReadFile(path)
	switch {
	case err == nil:
		change.Existed = true
	case errors.Is(err, os.ErrNotExist):
	default:
		return change, fmt.Errorf("read previous output: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return change, fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return change, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return change, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return change, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return change, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return change, fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return change, fmt.Errorf("replace %s: %w", path, err)
	}

	if change.Existed {
		change.Added, change.Removed = lineDelta(string(previous), string(data))
		change.Changed = !bytes.Equal(previous, data)
	} else {
		change.Changed = true
		change.Added = countLines(string(data))
	}
	return change, nil
}

// SaveJSONDocument formats payload and writes it to path.
func SaveJSONDocument(path string, payload []byte) (Change, error) {
	formatted, err := FormatJSON(payload)
	if err != nil {
		return Change{}, err
	}
	return WriteFile(path, formatted)
}

func lineDelta(before, after string) (added, removed int) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			removed += countLines(d.Text)
		}
	}
	return added, removed
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
