package stanza

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sciro24/labforge/pkg/errors"
)

// InsertLines inserts lines into the first "router <proto>" block of
// content and reports whether such a block was found. The header match
// is case-insensitive on the trimmed line; when matchToken is non-empty
// the raw header line must also contain it (distinguishing, say,
// "router bgp 100" from "router bgp 200"). The insertion point is after
// the last line belonging to the block: contiguous blank lines, indented
// lines, and "!" comment lines all belong to it. Inserted lines are
// 4-space indented.
//
// When no matching block exists the lines are appended verbatim at
// end-of-file, after a separating newline, and found is false.
func InsertLines(content, proto, matchToken string, lines []string) (out string, found bool) {
	if len(lines) == 0 {
		return content, false
	}
	rows := strings.Split(content, "\n")
	if strings.HasSuffix(content, "\n") {
		rows = rows[:len(rows)-1]
	}

	header := -1
	want := "router " + strings.ToLower(strings.TrimSpace(proto))
	for i, row := range rows {
		s := strings.ToLower(strings.TrimSpace(row))
		if s != want && !strings.HasPrefix(s, want+" ") {
			continue
		}
		if matchToken != "" && !strings.Contains(row, matchToken) {
			continue
		}
		header = i
		break
	}

	var b strings.Builder
	if header == -1 {
		b.WriteString(content)
		if content != "" && !strings.HasSuffix(content, "\n") {
			b.WriteString("\n")
		}
		for _, l := range lines {
			b.WriteString(l + "\n")
		}
		return b.String(), false
	}

	end := header + 1
	for end < len(rows) && inBlock(rows[end]) {
		end++
	}
	for _, row := range rows[:end] {
		b.WriteString(row + "\n")
	}
	for _, l := range lines {
		b.WriteString(Indent + l + "\n")
	}
	for _, row := range rows[end:] {
		b.WriteString(row + "\n")
	}
	return b.String(), true
}

func inBlock(row string) bool {
	if strings.TrimSpace(row) == "" {
		return true
	}
	if strings.HasPrefix(row, " ") || strings.HasPrefix(row, "\t") {
		return true
	}
	return strings.HasPrefix(strings.TrimSpace(row), "!")
}

// InjectFile applies InsertLines to the file at path and rewrites it
// atomically via a temp file and rename. The bool reports whether a
// matching block was found; on false the lines were appended at
// end-of-file (a soft condition, classified ErrCodeMissingStanza by
// callers that surface it).
func InjectFile(path, proto, matchToken string, lines []string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, errors.Wrap(errors.ErrCodeFileNotFound, err, "config file %s does not exist", path)
		}
		return false, errors.Wrap(errors.ErrCodeEmitFailed, err, "reading %s", path)
	}
	out, found := InsertLines(string(data), proto, matchToken, lines)
	return found, writeAtomic(path, []byte(out))
}

// AppendFile appends a stanza at end-of-file, separated by a blank line,
// rewriting the file atomically. Used for policy blocks (prefix-lists,
// route-maps) that do not live inside a router block.
func AppendFile(path, text string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(errors.ErrCodeFileNotFound, err, "config file %s does not exist", path)
		}
		return errors.Wrap(errors.ErrCodeEmitFailed, err, "reading %s", path)
	}
	var b strings.Builder
	b.Write(data)
	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		b.WriteString("\n")
	}
	if len(data) > 0 {
		b.WriteString("\n")
	}
	b.WriteString(strings.TrimRight(text, "\n") + "\n")
	return writeAtomic(path, []byte(b.String()))
}

// FileContains reports whether the file at path contains needle.
// Callers use this to keep injection idempotent before calling
// InjectFile. A missing file contains nothing.
func FileContains(path, needle string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(errors.ErrCodeEmitFailed, err, "reading %s", path)
	}
	return strings.Contains(string(data), needle), nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrap(errors.ErrCodeEmitFailed, err, "creating temp file in %s", dir)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return errors.Wrap(errors.ErrCodeEmitFailed, err, "writing %s", name)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return errors.Wrap(errors.ErrCodeEmitFailed, err, "closing %s", name)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return errors.Wrap(errors.ErrCodeEmitFailed, err, "replacing %s", path)
	}
	return nil
}
