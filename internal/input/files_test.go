package input

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseFileSpec(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantPath   string
		wantStart  int
		wantEnd    int
		wantRegion bool
		wantErr    bool
	}{
		{name: "no region", input: "main.go", wantPath: "main.go"},
		{name: "range", input: "main.go:11-22", wantPath: "main.go", wantStart: 11, wantEnd: 22, wantRegion: true},
		{name: "start only", input: "main.go:11-", wantPath: "main.go", wantStart: 11, wantRegion: true},
		{name: "end only", input: "main.go:-22", wantPath: "main.go", wantEnd: 22, wantRegion: true},
		{name: "colon in path", input: "notes:draft.md", wantPath: "notes:draft.md"},
		{name: "reversed", input: "main.go:9-3", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			spec, err := ParseFileSpec(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if spec.Path != tc.wantPath {
				t.Fatalf("path=%q, want %q", spec.Path, tc.wantPath)
			}
			if spec.StartLine != tc.wantStart || spec.EndLine != tc.wantEnd || spec.HasRegion != tc.wantRegion {
				t.Fatalf("got start=%d end=%d region=%v, want start=%d end=%d region=%v",
					spec.StartLine, spec.EndLine, spec.HasRegion, tc.wantStart, tc.wantEnd, tc.wantRegion)
			}
		})
	}
}

func TestExtractLines(t *testing.T) {
	content := "line1\nline2\nline3\nline4\nline5"
	tests := []struct {
		name       string
		start, end int
		want       string
	}{
		{"full content", 0, 0, content},
		{"lines 2-4", 2, 4, "line2\nline3\nline4"},
		{"from line 3", 3, 0, "line3\nline4\nline5"},
		{"to line 2", 0, 2, "line1\nline2"},
		{"single line", 3, 3, "line3"},
		{"start beyond end", 10, 0, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractLines(content, tc.start, tc.end); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestReadFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, content string) string {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		return path
	}
	a := write("a.go", "package a\n")
	write("sub/b.go", "package b\n")
	write("sub/notes.txt", "one\ntwo\nthree\n")

	files, err := ReadFiles([]string{a})
	if err != nil {
		t.Fatalf("ReadFiles: %v", err)
	}
	if len(files) != 1 || files[0].Content != "package a\n" {
		t.Fatalf("unexpected result: %+v", files)
	}

	files, err = ReadFiles([]string{filepath.Join(dir, "**", "*.go")})
	if err != nil {
		t.Fatalf("ReadFiles glob: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 go files, got %d", len(files))
	}

	files, err = ReadFiles([]string{filepath.Join(dir, "sub", "notes.txt") + ":2-2"})
	if err != nil {
		t.Fatalf("ReadFiles region: %v", err)
	}
	if files[0].Content != "two" || !strings.HasSuffix(files[0].Path, "notes.txt:2-2") {
		t.Fatalf("unexpected region read: %+v", files[0])
	}

	files, err = ReadFiles([]string{filepath.Join(dir, "*.rs")})
	if err != nil || len(files) != 0 {
		t.Fatalf("empty glob: files=%v err=%v", files, err)
	}

	if _, err := ReadFiles([]string{filepath.Join(dir, "missing.go")}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFormat(t *testing.T) {
	if got := Format(nil, ""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	got := Format([]Attachment{{Path: "main.go", Content: "package main"}}, "piped\n")
	want := "<<<<< FILE: main.go >>>>>\npackage main\n<<<<< END FILE >>>>>\n<<<<< STDIN >>>>>\npiped\n<<<<< END STDIN >>>>>"
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestReadStdinNil(t *testing.T) {
	got, err := ReadStdin(nil)
	if err != nil || got != "" {
		t.Fatalf("got %q, %v", got, err)
	}
}
