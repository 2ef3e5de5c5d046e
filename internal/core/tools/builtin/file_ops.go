// Package builtin implements the harness's concrete tool set: file
// operations, shell execution, and git workflow helpers.
package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/haasonsaas/nexus/internal/core/tools"
	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

// ReadFileTool reads file contents with an optional line offset/limit.
type ReadFileTool struct{}

func (ReadFileTool) Name() string        { return "read_file" }
func (ReadFileTool) Description() string { return "Read the contents of a file. Returns the file content as text." }
func (ReadFileTool) MaxOutput() int      { return 8000 }
func (ReadFileTool) Parameters() []harnesstypes.ToolParameter {
	return []harnesstypes.ToolParameter{
		{Name: "path", Type: "string", Description: "Path to the file to read", Required: true},
		{Name: "offset", Type: "integer", Description: "Line number to start reading from (0-based)", Required: false, Default: 0},
		{Name: "limit", Type: "integer", Description: "Maximum number of lines to read", Required: false, Default: 0},
	}
}

func (ReadFileTool) Execute(_ context.Context, args map[string]any) harnesstypes.ToolResult {
	path, _ := args["path"].(string)
	if path == "" {
		return harnesstypes.ToolResult{Success: false, Error: "No path provided"}
	}
	offset := intArg(args, "offset", 0)
	limit := intArg(args, "limit", 0)

	p := resolve(path)
	info, err := os.Stat(p)
	if err != nil {
		return harnesstypes.ToolResult{Success: false, Error: "File not found: " + p}
	}
	if info.IsDir() {
		return harnesstypes.ToolResult{Success: false, Error: "Not a file: " + p}
	}
	if info.Size() > 10_000_000 {
		return harnesstypes.ToolResult{Success: false, Error: fmt.Sprintf("File too large (%d bytes, max 10MB)", info.Size())}
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return harnesstypes.ToolResult{Success: false, Error: err.Error()}
	}

	lines := splitKeepEnds(string(data))
	if offset > 0 && offset < len(lines) {
		lines = lines[offset:]
	} else if offset >= len(lines) {
		lines = nil
	}
	if limit > 0 && limit < len(lines) {
		lines = lines[:limit]
	}

	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%5d\t%s", offset+i+1, strings.TrimRight(line, "\r\n"))
	}
	return harnesstypes.ToolResult{Success: true, Output: b.String()}
}

// WriteFileTool writes (overwriting) content to a file, creating
// parent directories as needed.
type WriteFileTool struct{}

func (WriteFileTool) Name() string        { return "write_file" }
func (WriteFileTool) Description() string { return "Write content to a file. Creates the file if it doesn't exist, overwrites if it does." }
func (WriteFileTool) MaxOutput() int      { return tools.DefaultMaxOutput }
func (WriteFileTool) Parameters() []harnesstypes.ToolParameter {
	return []harnesstypes.ToolParameter{
		{Name: "path", Type: "string", Description: "Path to the file to write", Required: true},
		{Name: "content", Type: "string", Description: "Content to write to the file", Required: true},
	}
}

func (WriteFileTool) Execute(_ context.Context, args map[string]any) harnesstypes.ToolResult {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return harnesstypes.ToolResult{Success: false, Error: "No path provided"}
	}

	p := resolve(path)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return harnesstypes.ToolResult{Success: false, Error: err.Error()}
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return harnesstypes.ToolResult{Success: false, Error: err.Error()}
	}
	return harnesstypes.ToolResult{Success: true, Output: fmt.Sprintf("Written %d bytes to %s", len(content), p)}
}

// EditFileTool replaces one occurrence of old_string with new_string
// in a file, falling back to a whitespace-normalized fuzzy match when
// no exact match is found.
type EditFileTool struct{}

func (EditFileTool) Name() string        { return "edit_file" }
func (EditFileTool) Description() string { return "Edit a file by replacing a specific string with a new string. The old_string must match exactly." }
func (EditFileTool) MaxOutput() int      { return tools.DefaultMaxOutput }
func (EditFileTool) Parameters() []harnesstypes.ToolParameter {
	return []harnesstypes.ToolParameter{
		{Name: "path", Type: "string", Description: "Path to the file to edit", Required: true},
		{Name: "old_string", Type: "string", Description: "The exact text to find and replace", Required: true},
		{Name: "new_string", Type: "string", Description: "The replacement text", Required: true},
	}
}

var wsRun = regexp.MustCompile(`\s+`)

func normalizeWS(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = wsRun.ReplaceAllString(strings.TrimSpace(l), " ")
	}
	return strings.Join(lines, "\n")
}

// fuzzyFind locates old within text using whitespace-normalized line
// comparison. Returns (start, end, matchCount). matchCount > 1 means
// ambiguous; matchCount == 0 means no match; matchCount == 1 gives a
// usable (start, end) span into the original text.
func fuzzyFind(text, old string) (start, end, matchCount int) {
	normOldLines := strings.Split(normalizeWS(old), "\n")
	if len(normOldLines) == 0 || (len(normOldLines) == 1 && normOldLines[0] == "") {
		return 0, 0, 0
	}

	textLines := splitKeepEnds(text)
	normTextLines := make([]string, len(textLines))
	for i, l := range textLines {
		normTextLines[i] = wsRun.ReplaceAllString(strings.TrimSpace(l), " ")
	}

	window := len(normOldLines)
	needle := strings.Join(normOldLines, "\n")

	var starts, ends []int
	for i := 0; i+window <= len(normTextLines); i++ {
		candidate := strings.Join(normTextLines[i:i+window], "\n")
		if candidate == needle {
			s, e := 0, 0
			for _, l := range textLines[:i] {
				s += len(l)
			}
			e = s
			for _, l := range textLines[i : i+window] {
				e += len(l)
			}
			starts = append(starts, s)
			ends = append(ends, e)
		}
	}
	if len(starts) == 1 {
		return starts[0], ends[0], 1
	}
	return 0, 0, len(starts)
}

func (EditFileTool) Execute(_ context.Context, args map[string]any) harnesstypes.ToolResult {
	path, _ := args["path"].(string)
	oldStr, _ := args["old_string"].(string)
	newStr, _ := args["new_string"].(string)
	if path == "" {
		return harnesstypes.ToolResult{Success: false, Error: "No path provided"}
	}
	if oldStr == "" {
		return harnesstypes.ToolResult{Success: false, Error: "No old_string provided"}
	}

	p := resolve(path)
	data, err := os.ReadFile(p)
	if err != nil {
		return harnesstypes.ToolResult{Success: false, Error: "File not found: " + p}
	}
	text := string(data)

	count := strings.Count(text, oldStr)
	if count == 1 {
		text = strings.Replace(text, oldStr, newStr, 1)
		if err := os.WriteFile(p, []byte(text), 0o644); err != nil {
			return harnesstypes.ToolResult{Success: false, Error: err.Error()}
		}
		return harnesstypes.ToolResult{Success: true, Output: "Edit applied to " + p}
	}
	if count > 1 {
		return harnesstypes.ToolResult{Success: false, Error: fmt.Sprintf("old_string found %d times. Provide more context to make it unique.", count)}
	}

	start, end, n := fuzzyFind(text, oldStr)
	switch {
	case n == 1:
		text = text[:start] + newStr + text[end:]
		if err := os.WriteFile(p, []byte(text), 0o644); err != nil {
			return harnesstypes.ToolResult{Success: false, Error: err.Error()}
		}
		return harnesstypes.ToolResult{Success: true, Output: "Edit applied to " + p + " (matched with whitespace normalization)"}
	case n > 1:
		return harnesstypes.ToolResult{Success: false, Error: fmt.Sprintf("old_string found %d times (with whitespace normalization). Provide more context to make it unique.", n)}
	default:
		return harnesstypes.ToolResult{Success: false, Error: "old_string not found in file"}
	}
}

// ListDirectoryTool lists a directory's entries, newest API stays
// plain: name, kind, and a rounded size.
type ListDirectoryTool struct{}

func (ListDirectoryTool) Name() string        { return "list_dir" }
func (ListDirectoryTool) Description() string { return "List files and directories in a given path." }
func (ListDirectoryTool) MaxOutput() int      { return tools.DefaultMaxOutput }
func (ListDirectoryTool) Parameters() []harnesstypes.ToolParameter {
	return []harnesstypes.ToolParameter{
		{Name: "path", Type: "string", Description: "Directory path to list", Required: false, Default: "."},
	}
}

func (ListDirectoryTool) Execute(_ context.Context, args map[string]any) harnesstypes.ToolResult {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	p := resolve(path)
	entries, err := os.ReadDir(p)
	if err != nil {
		return harnesstypes.ToolResult{Success: false, Error: "Path not found: " + p}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var b strings.Builder
	limit := len(entries)
	if limit > 500 {
		limit = 500
	}
	for i := 0; i < limit; i++ {
		e := entries[i]
		if i > 0 {
			b.WriteByte('\n')
		}
		prefix := "f "
		size := ""
		if e.IsDir() {
			prefix = "d "
		} else if info, err := e.Info(); err == nil {
			size = formatSize(info.Size())
		}
		fmt.Fprintf(&b, "%s%s%s", prefix, e.Name(), size)
	}
	return harnesstypes.ToolResult{Success: true, Output: b.String()}
}

func formatSize(s int64) string {
	switch {
	case s < 1024:
		return fmt.Sprintf(" (%dB)", s)
	case s < 1024*1024:
		return fmt.Sprintf(" (%dKB)", s/1024)
	default:
		return fmt.Sprintf(" (%dMB)", s/(1024*1024))
	}
}

// SearchFilesTool searches file contents under a directory for a
// regex (falling back to a literal match if the pattern doesn't
// compile), skipping common build/vcs directories.
type SearchFilesTool struct{}

func (SearchFilesTool) Name() string        { return "search_files" }
func (SearchFilesTool) Description() string {
	return "Search for a text pattern in files within a directory. Returns matching lines with file paths and line numbers."
}
func (SearchFilesTool) MaxOutput() int { return tools.DefaultMaxOutput }
func (SearchFilesTool) Parameters() []harnesstypes.ToolParameter {
	return []harnesstypes.ToolParameter{
		{Name: "pattern", Type: "string", Description: "Text or regex pattern to search for", Required: true},
		{Name: "path", Type: "string", Description: "Directory to search in", Required: false, Default: "."},
	}
}

var searchSkipDirs = map[string]bool{
	".git": true, ".venv": true, "venv": true, "node_modules": true, "__pycache__": true,
	".mypy_cache": true, ".ruff_cache": true, ".pytest_cache": true, "dist": true, "build": true,
	".eggs": true, ".tox": true, ".next": true, "target": true, ".cache": true,
}

func (SearchFilesTool) Execute(_ context.Context, args map[string]any) harnesstypes.ToolResult {
	pattern, _ := args["pattern"].(string)
	path, _ := args["path"].(string)
	if pattern == "" {
		return harnesstypes.ToolResult{Success: false, Error: "No pattern provided"}
	}
	if path == "" {
		path = "."
	}
	root := resolve(path)
	if _, err := os.Stat(root); err != nil {
		return harnesstypes.ToolResult{Success: false, Error: "Path not found: " + root}
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(pattern))
	}

	var matches []string
	_ = filepath.Walk(root, func(fp string, info os.FileInfo, err error) error {
		if err != nil || len(matches) >= 200 {
			return nil
		}
		if info.IsDir() {
			if searchSkipDirs[info.Name()] && fp != root {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Size() > 1_000_000 {
			return nil
		}
		data, err := os.ReadFile(fp)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(root, fp)
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, i+1, strings.TrimSpace(line)))
				if len(matches) >= 200 {
					break
				}
			}
		}
		return nil
	})

	if len(matches) == 0 {
		return harnesstypes.ToolResult{Success: true, Output: "No matches found."}
	}
	return harnesstypes.ToolResult{Success: true, Output: strings.Join(matches, "\n")}
}

func resolve(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			path = home + path[1:]
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func splitKeepEnds(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func intArg(args map[string]any, key string, def int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}
