package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/samsaffron/toolchat/internal/llm"
)

// GlobTool implements the glob tool.
type GlobTool struct {
	limits OutputLimits
}

func NewGlobTool(limits OutputLimits) *GlobTool {
	if limits.MaxResults <= 0 {
		limits.MaxResults = DefaultOutputLimits().MaxResults
	}
	return &GlobTool{limits: limits}
}

// GlobArgs are the arguments for glob.
type GlobArgs struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

// FileEntry represents a file in glob results.
type FileEntry struct {
	FilePath  string
	IsDir     bool
	SizeBytes int64
	ModTime   time.Time
}

var errGlobLimit = errors.New("glob result limit reached")

func (t *GlobTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        GlobToolName,
		Description: "Find files by glob pattern (supports ** for recursive matching). Returns file metadata sorted by modification time, newest first.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"pattern": map[string]interface{}{
					"type":        "string",
					"description": "Glob pattern supporting ** for recursive matching, e.g., '**/*.go' or 'src/**/*.ts'",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Base directory for the search (defaults to current directory)",
				},
			},
			"required":             []string{"pattern"},
			"additionalProperties": false,
		},
	}
}

func (t *GlobTool) Preview(args json.RawMessage) string {
	var a GlobArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Pattern == "" {
		return ""
	}
	if a.Path != "" {
		return fmt.Sprintf("%s in %s", a.Pattern, a.Path)
	}
	return a.Pattern
}

func (t *GlobTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a GlobArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}
	if a.Pattern == "" {
		return "", NewToolError(ErrInvalidParams, "pattern is required")
	}
	if !doublestar.ValidatePattern(a.Pattern) {
		return "", NewToolErrorf(ErrInvalidParams, "invalid pattern: %s", a.Pattern)
	}
	warning := ignoredParamsNote(args, "pattern", "path")

	base := a.Path
	if base == "" {
		base = "."
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "cannot resolve path: %v", err)
	}
	if info, err := os.Stat(absBase); err != nil || !info.IsDir() {
		return "", NewToolErrorf(ErrFileNotFound, "not a directory: %s", absBase)
	}

	var entries []FileEntry
	walkErr := doublestar.GlobWalk(os.DirFS(absBase), filepath.ToSlash(a.Pattern), func(path string, d fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if isHidden(path) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		entries = append(entries, FileEntry{
			FilePath:  filepath.Join(absBase, filepath.FromSlash(path)),
			IsDir:     d.IsDir(),
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		})
		if len(entries) >= t.limits.MaxResults {
			return errGlobLimit
		}
		return nil
	})
	truncated := errors.Is(walkErr, errGlobLimit)
	if walkErr != nil && !truncated {
		if ctx.Err() != nil {
			return "", NewToolErrorf(ErrTimeout, "glob cancelled: %v", ctx.Err())
		}
		return "", NewToolErrorf(ErrExecutionFailed, "walk error: %v", walkErr)
	}

	if len(entries) == 0 {
		return warning + "No files matched the pattern.", nil
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ModTime.After(entries[j].ModTime)
	})
	return warning + formatGlobResults(entries, truncated, t.limits.MaxResults), nil
}

// isHidden reports whether any segment of a slash-separated path is a dotfile.
func isHidden(path string) bool {
	for _, seg := range strings.Split(path, "/") {
		if len(seg) > 1 && strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func formatGlobResults(entries []FileEntry, truncated bool, limit int) string {
	var sb strings.Builder
	for _, e := range entries {
		kind := "f"
		if e.IsDir {
			kind = "d"
		}
		fmt.Fprintf(&sb, "[%s] %s  %s  %s\n", kind, formatSize(e.SizeBytes), e.ModTime.Format("2006-01-02 15:04"), e.FilePath)
	}
	if truncated {
		fmt.Fprintf(&sb, "\n[Results truncated at %d files]", limit)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// formatSize formats a byte count as human-readable.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%4dB", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%4.0f%c", float64(bytes)/float64(div), "KMGTPE"[exp])
}
