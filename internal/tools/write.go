package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samsaffron/toolchat/internal/llm"
)

// WriteFileTool implements the write_file tool.
type WriteFileTool struct{}

func NewWriteFileTool() *WriteFileTool {
	return &WriteFileTool{}
}

// WriteFileArgs are the arguments for write_file.
type WriteFileArgs struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

func (t *WriteFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        WriteFileToolName,
		Description: "Create or overwrite a file with the specified content. Creates parent directories if needed.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the file to write",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Full file content to write",
				},
			},
			"required":             []string{"file_path", "content"},
			"additionalProperties": false,
		},
	}
}

func (t *WriteFileTool) Preview(args json.RawMessage) string {
	var a WriteFileArgs
	if err := json.Unmarshal(args, &a); err != nil || a.FilePath == "" {
		return ""
	}
	return fmt.Sprintf("%s (%d lines)", a.FilePath, countLines(a.Content))
}

func (t *WriteFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a WriteFileArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}
	if a.FilePath == "" {
		return "", NewToolError(ErrInvalidParams, "file_path is required")
	}

	absPath, err := filepath.Abs(a.FilePath)
	if err != nil {
		return "", NewToolErrorf(ErrInvalidParams, "cannot resolve path: %v", err)
	}

	existing := ""
	isNew := true
	mode := os.FileMode(0644)
	if info, err := os.Stat(absPath); err == nil {
		if info.IsDir() {
			return "", NewToolErrorf(ErrInvalidParams, "%s is a directory", absPath)
		}
		mode = info.Mode().Perm()
		if data, err := os.ReadFile(absPath); err == nil {
			existing = string(data)
			isNew = false
		}
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "failed to create directory: %v", err)
	}

	// Write to a unique temp file and rename so concurrent writers to the
	// same path never leave a partial file behind.
	tf, err := os.CreateTemp(dir, "."+filepath.Base(absPath)+".*.tmp")
	if err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "failed to create temp file: %v", err)
	}
	tempPath := tf.Name()
	fail := func(format string, err error) (string, error) {
		tf.Close()
		os.Remove(tempPath)
		return "", NewToolErrorf(ErrExecutionFailed, format, err)
	}

	if _, err := tf.WriteString(a.Content); err != nil {
		return fail("failed to write temp file: %v", err)
	}
	if err := tf.Sync(); err != nil {
		return fail("failed to sync temp file: %v", err)
	}
	if err := tf.Close(); err != nil {
		return fail("failed to close temp file: %v", err)
	}
	if err := os.Chmod(tempPath, mode); err != nil {
		return fail("failed to set file permissions: %v", err)
	}
	if err := os.Rename(tempPath, absPath); err != nil {
		return fail("failed to rename temp file: %v", err)
	}

	if isNew {
		return fmt.Sprintf("Created new file: %s (%d lines).", absPath, countLines(a.Content)), nil
	}
	return fmt.Sprintf("Updated %s: %d lines -> %d lines.", absPath, countLines(existing), countLines(a.Content)), nil
}

// countLines counts lines, including a final line without a newline.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	count := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		count++
	}
	return count
}
