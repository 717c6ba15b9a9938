package changelog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/fsutil"
)

// Merge inserts a rendered release block into an existing document. The
// block goes right after the Unreleased section, or before the first version
// header when there is none, or at the end. A block for the same version is
// replaced in place. Everything else is kept byte for byte.
func Merge(existing, block, version string) string {
	block = strings.TrimRight(block, "\n") + "\n"
	lines := splitLines(existing)

	if start, ok := findVersion(lines, version); ok {
		end := nextHeader(lines, start+1)
		replacement := block
		if end < len(lines) {
			replacement += "\n"
		}
		return join(lines[:start]) + replacement + join(lines[end:])
	}

	var at int
	if i, ok := findVersion(lines, UnreleasedVersion); ok {
		at = nextHeader(lines, i+1)
	} else {
		at = nextHeader(lines, 0)
	}

	head := join(lines[:at])
	if at == len(lines) {
		// appending: make sure a blank line separates the block
		switch {
		case head == "":
		case strings.HasSuffix(head, "\n\n"):
		case strings.HasSuffix(head, "\n"):
			head += "\n"
		default:
			head += "\n\n"
		}
		return head + block
	}
	return head + block + "\n" + join(lines[at:])
}

// splitLines splits s after every newline, keeping the terminators.
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

func join(lines []string) string {
	return strings.Join(lines, "")
}

func findVersion(lines []string, version string) (int, bool) {
	want := NormalizeVersion(version)
	for i, l := range lines {
		m := versionHeaderPattern.FindStringSubmatch(strings.TrimRight(l, "\r\n"))
		if m != nil && NormalizeVersion(strings.TrimSpace(m[1])) == want {
			return i, true
		}
	}
	return 0, false
}

// nextHeader returns the index of the first version header at or after from.
func nextHeader(lines []string, from int) int {
	for i := from; i < len(lines); i++ {
		if strings.HasPrefix(lines[i], "## ") {
			return i
		}
	}
	return len(lines)
}

// WriteRelease merges r into the CHANGELOG.md at path, creating the file
// with a full header when it does not exist. The write is atomic.
func WriteRelease(path, pkg string, r *Release, opts Options) error {
	return WriteReleaseWith(fsutil.AtomicWriteFile, path, pkg, r, opts)
}

// WriteReleaseWith is WriteRelease with a caller-supplied file writer.
func WriteReleaseWith(write fsutil.WriteFileFunc, path, pkg string, r *Release, opts Options) error {
	var content string
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		content = Merge(string(data), RenderReleaseString(r, opts), r.Version)
	case errors.Is(err, os.ErrNotExist):
		content, err = RenderMarkdownString(&Changelog{Package: pkg, Releases: []Release{*r}}, opts)
		if err != nil {
			return fmt.Errorf("rendering %s: %w", path, err)
		}
	default:
		return fmt.Errorf("reading %s: %w: %w", path, clierrors.ErrIO, err)
	}

	if err := write(path, []byte(content), fsutil.FileMode(path, 0o644)); err != nil {
		return fmt.Errorf("writing %s: %w: %w", path, clierrors.ErrIO, err)
	}
	return nil
}
