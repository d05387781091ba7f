// Package input gathers file and stdin context attached to a prompt.
package input

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/term"
)

// Attachment is file content attached to a prompt.
type Attachment struct {
	Path    string // Display path, including any line range
	Content string
}

// FileSpec is a path with an optional line range, e.g. "main.go:11-22".
type FileSpec struct {
	Path      string
	StartLine int // 1-indexed, 0 means from the beginning
	EndLine   int // 1-indexed, 0 means to the end
	HasRegion bool
}

// ParseFileSpec parses "path", "path:11-22", "path:11-" or "path:-22".
// A colon not followed by a line range is part of the path.
func ParseFileSpec(spec string) (FileSpec, error) {
	if spec == "" {
		return FileSpec{}, fmt.Errorf("empty file spec")
	}
	idx := strings.LastIndex(spec, ":")
	if idx <= 0 {
		return FileSpec{Path: spec}, nil
	}
	start, end, ok := strings.Cut(spec[idx+1:], "-")
	if !ok || !isDigits(start) || !isDigits(end) {
		return FileSpec{Path: spec}, nil
	}

	fs := FileSpec{Path: spec[:idx], HasRegion: true}
	if start != "" {
		fs.StartLine, _ = strconv.Atoi(start)
	}
	if end != "" {
		fs.EndLine, _ = strconv.Atoi(end)
	}
	if fs.EndLine > 0 && fs.StartLine > fs.EndLine {
		return FileSpec{}, fmt.Errorf("invalid line range in %s", spec)
	}
	return fs, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (fs FileSpec) String() string {
	if !fs.HasRegion {
		return fs.Path
	}
	return fmt.Sprintf("%s:%d-%d", fs.Path, fs.StartLine, fs.EndLine)
}

// ExtractLines returns lines start..end (1-indexed, inclusive) of content.
// Zero start means from the beginning, zero end means to the end.
func ExtractLines(content string, startLine, endLine int) string {
	lines := strings.Split(content, "\n")
	start := 0
	if startLine > 0 {
		start = startLine - 1
	}
	end := len(lines)
	if endLine > 0 && endLine < end {
		end = endLine
	}
	if start >= end {
		return ""
	}
	return strings.Join(lines[start:end], "\n")
}

// ReadFiles reads every spec. Paths may be doublestar globs ("**/*.go");
// a glob that matches nothing is skipped, a missing literal path is an
// error. Directories are skipped.
func ReadFiles(specs []string) ([]Attachment, error) {
	var result []Attachment
	for _, raw := range specs {
		spec, err := ParseFileSpec(raw)
		if err != nil {
			return nil, err
		}
		path := expandHome(spec.Path)

		matches := []string{path}
		if containsGlobChars(path) {
			matches, err = doublestar.FilepathGlob(path)
			if err != nil {
				return nil, fmt.Errorf("invalid glob pattern %q: %w", spec.Path, err)
			}
			sort.Strings(matches)
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, fmt.Errorf("failed to stat %q: %w", match, err)
			}
			if info.IsDir() {
				continue
			}
			data, err := os.ReadFile(match)
			if err != nil {
				return nil, fmt.Errorf("failed to read %q: %w", match, err)
			}
			a := Attachment{Path: match, Content: string(data)}
			if spec.HasRegion {
				a.Content = ExtractLines(a.Content, spec.StartLine, spec.EndLine)
				a.Path = FileSpec{Path: match, StartLine: spec.StartLine, EndLine: spec.EndLine, HasRegion: true}.String()
			}
			result = append(result, a)
		}
	}
	return result, nil
}

// ReadStdin reads piped input. It returns "" when stdin is a terminal.
func ReadStdin(f *os.File) (string, error) {
	if f == nil || term.IsTerminal(int(f.Fd())) {
		return "", nil
	}
	fi, err := f.Stat()
	if err != nil {
		return "", nil
	}
	if fi.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

// Format renders attachments and stdin with prompt-safe delimiters.
func Format(files []Attachment, stdin string) string {
	if len(files) == 0 && stdin == "" {
		return ""
	}
	var sb strings.Builder
	block := func(open, content, close string) {
		sb.WriteString(open)
		sb.WriteString("\n")
		sb.WriteString(content)
		if !strings.HasSuffix(content, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString(close)
		sb.WriteString("\n")
	}
	for _, f := range files {
		block("<<<<< FILE: "+f.Path+" >>>>>", f.Content, "<<<<< END FILE >>>>>")
	}
	if stdin != "" {
		block("<<<<< STDIN >>>>>", stdin, "<<<<< END STDIN >>>>>")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

func containsGlobChars(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}
