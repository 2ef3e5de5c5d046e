package builtin

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteThenReadFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "hello.txt")

	w := WriteFileTool{}
	res := w.Execute(context.Background(), map[string]any{"path": p, "content": "line one\nline two\n"})
	if !res.Success {
		t.Fatalf("write failed: %s", res.Error)
	}

	r := ReadFileTool{}
	res = r.Execute(context.Background(), map[string]any{"path": p})
	if !res.Success {
		t.Fatalf("read failed: %s", res.Error)
	}
	if !strings.Contains(res.Output, "line one") || !strings.Contains(res.Output, "line two") {
		t.Fatalf("unexpected read output: %q", res.Output)
	}
}

func TestReadFileMissing(t *testing.T) {
	r := ReadFileTool{}
	res := r.Execute(context.Background(), map[string]any{"path": "/nonexistent/path/x.txt"})
	if res.Success {
		t.Fatal("expected failure for missing file")
	}
}

func TestEditFileExactMatch(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f.go")
	os.WriteFile(p, []byte("package main\n\nfunc main() {\n\tfmt.Println(\"hi\")\n}\n"), 0o644)

	e := EditFileTool{}
	res := e.Execute(context.Background(), map[string]any{
		"path":       p,
		"old_string": "fmt.Println(\"hi\")",
		"new_string": "fmt.Println(\"bye\")",
	})
	if !res.Success {
		t.Fatalf("edit failed: %s", res.Error)
	}
	data, _ := os.ReadFile(p)
	if !strings.Contains(string(data), "bye") {
		t.Fatalf("edit did not apply: %s", data)
	}
}

func TestEditFileAmbiguousMatch(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f.txt")
	os.WriteFile(p, []byte("foo\nfoo\n"), 0o644)

	e := EditFileTool{}
	res := e.Execute(context.Background(), map[string]any{"path": p, "old_string": "foo", "new_string": "bar"})
	if res.Success {
		t.Fatal("expected ambiguous-match failure")
	}
}

func TestEditFileFuzzyWhitespaceMatch(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f.txt")
	os.WriteFile(p, []byte("func foo() {\n    return   1\n}\n"), 0o644)

	e := EditFileTool{}
	res := e.Execute(context.Background(), map[string]any{
		"path":       p,
		"old_string": "return 1",
		"new_string": "return 2",
	})
	if !res.Success {
		t.Fatalf("expected fuzzy match to succeed, got error: %s", res.Error)
	}
}

func TestEditFileNotFound(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f.txt")
	os.WriteFile(p, []byte("alpha\nbeta\n"), 0o644)

	e := EditFileTool{}
	res := e.Execute(context.Background(), map[string]any{"path": p, "old_string": "gamma", "new_string": "delta"})
	if res.Success {
		t.Fatal("expected failure for unmatched old_string")
	}
}

func TestListDirectory(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644)
	os.Mkdir(filepath.Join(dir, "sub"), 0o755)

	l := ListDirectoryTool{}
	res := l.Execute(context.Background(), map[string]any{"path": dir})
	if !res.Success {
		t.Fatalf("list failed: %s", res.Error)
	}
	if !strings.Contains(res.Output, "a.txt") || !strings.Contains(res.Output, "sub") {
		t.Fatalf("unexpected listing: %q", res.Output)
	}
}

func TestSearchFiles(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.go"), []byte("func needle() {}\n"), 0o644)
	os.WriteFile(filepath.Join(dir, "b.go"), []byte("func other() {}\n"), 0o644)

	s := SearchFilesTool{}
	res := s.Execute(context.Background(), map[string]any{"pattern": "needle", "path": dir})
	if !res.Success {
		t.Fatalf("search failed: %s", res.Error)
	}
	if !strings.Contains(res.Output, "a.go") || strings.Contains(res.Output, "b.go") {
		t.Fatalf("unexpected search output: %q", res.Output)
	}
}
