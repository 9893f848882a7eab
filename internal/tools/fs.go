package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	maxFileReadBytes = 50000
	maxListEntries   = 200
	readTruncNotice  = "\n... (truncated at 50KB)"
)

// pathResolver expands and optionally confines tool paths to the agent
// workspace.
type pathResolver struct {
	workspace string
	restrict  bool
}

func (pr pathResolver) resolve(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand home: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(pr.workspace, path)
	}
	path = filepath.Clean(path)

	if pr.restrict {
		ws := filepath.Clean(pr.workspace)
		if path != ws && !strings.HasPrefix(path, ws+string(filepath.Separator)) {
			return "", fmt.Errorf("path escapes workspace: %s", path)
		}
	}
	return path, nil
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func boolParam(params map[string]any, key string) bool {
	v, _ := params[key].(bool)
	return v
}

// ReadFileTool returns file contents as text.
type ReadFileTool struct {
	Paths pathResolver
}

func NewReadFileTool(workspace string, restrict bool) *ReadFileTool {
	return &ReadFileTool{Paths: pathResolver{workspace: workspace, restrict: restrict}}
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file. Returns the file content as text."
}

func (t *ReadFileTool) Schema() *JSONSchema {
	return &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"path":      {Type: "string", Description: "Path to the file to read"},
			"max_lines": {Type: "integer", Description: "Maximum number of lines to read (optional)"},
		},
		Required: []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, params map[string]any) *Result {
	path := stringParam(params, "path")
	resolved, err := t.Paths.resolve(path)
	if err != nil {
		return Errorf("Error reading file: %v", err)
	}

	info, err := os.Stat(resolved)
	if os.IsNotExist(err) {
		return Errorf("Error: File not found: %s", path)
	}
	if err != nil {
		return Errorf("Error reading file: %v", err)
	}
	if info.IsDir() {
		return Errorf("Error: Not a file: %s", path)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return Errorf("Error reading file: %v", err)
	}
	content := string(data)

	if maxLines := intParam(params, "max_lines", 0); maxLines > 0 {
		lines := strings.Split(content, "\n")
		if len(lines) >= maxLines {
			content = strings.Join(lines[:maxLines], "\n")
			content += fmt.Sprintf("\n... (truncated at %d lines)", maxLines)
		}
	}

	if len(content) > maxFileReadBytes {
		content = content[:maxFileReadBytes] + readTruncNotice
	}
	return Text("%s", content)
}

// WriteFileTool writes content to a file, creating parent directories.
type WriteFileTool struct {
	Paths pathResolver
}

func NewWriteFileTool(workspace string, restrict bool) *WriteFileTool {
	return &WriteFileTool{Paths: pathResolver{workspace: workspace, restrict: restrict}}
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file. Creates parent directories if needed."
}

func (t *WriteFileTool) Schema() *JSONSchema {
	return &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"path":    {Type: "string", Description: "Path to the file to write"},
			"content": {Type: "string", Description: "Content to write to the file"},
		},
		Required: []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, params map[string]any) *Result {
	path := stringParam(params, "path")
	content := stringParam(params, "content")

	resolved, err := t.Paths.resolve(path)
	if err != nil {
		return Errorf("Error writing file: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return Errorf("Error writing file: %v", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0644); err != nil {
		return Errorf("Error writing file: %v", err)
	}
	return Text("Successfully wrote %d bytes to %s", len(content), path)
}

// EditFileTool replaces exact text within a file.
type EditFileTool struct {
	Paths pathResolver
}

func NewEditFileTool(workspace string, restrict bool) *EditFileTool {
	return &EditFileTool{Paths: pathResolver{workspace: workspace, restrict: restrict}}
}

func (t *EditFileTool) Name() string { return "edit_file" }

func (t *EditFileTool) Description() string {
	return "Edit a file by replacing exact text. The old_text must match exactly."
}

func (t *EditFileTool) Schema() *JSONSchema {
	return &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"path":     {Type: "string", Description: "Path to the file to edit"},
			"old_text": {Type: "string", Description: "Exact text to find and replace"},
			"new_text": {Type: "string", Description: "Text to replace with"},
		},
		Required: []string{"path", "old_text", "new_text"},
	}
}

func (t *EditFileTool) Execute(ctx context.Context, params map[string]any) *Result {
	path := stringParam(params, "path")
	oldText := stringParam(params, "old_text")
	newText := stringParam(params, "new_text")

	resolved, err := t.Paths.resolve(path)
	if err != nil {
		return Errorf("Error editing file: %v", err)
	}
	data, err := os.ReadFile(resolved)
	if os.IsNotExist(err) {
		return Errorf("Error: File not found: %s", path)
	}
	if err != nil {
		return Errorf("Error editing file: %v", err)
	}

	content := string(data)
	count := strings.Count(content, oldText)
	if count == 0 {
		return Errorf("Error: old_text not found in file")
	}

	newContent := strings.ReplaceAll(content, oldText, newText)
	if err := os.WriteFile(resolved, []byte(newContent), 0644); err != nil {
		return Errorf("Error editing file: %v", err)
	}
	return Text("Successfully replaced %d occurrence(s)", count)
}

// ListDirectoryTool lists directory contents, optionally recursively.
type ListDirectoryTool struct {
	Paths pathResolver
}

func NewListDirectoryTool(workspace string, restrict bool) *ListDirectoryTool {
	return &ListDirectoryTool{Paths: pathResolver{workspace: workspace, restrict: restrict}}
}

func (t *ListDirectoryTool) Name() string { return "list_directory" }

func (t *ListDirectoryTool) Description() string {
	return "List files and directories in a path."
}

func (t *ListDirectoryTool) Schema() *JSONSchema {
	return &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"path":      {Type: "string", Description: "Directory path to list"},
			"recursive": {Type: "boolean", Description: "Whether to list recursively (default: false)"},
		},
		Required: []string{"path"},
	}
}

func (t *ListDirectoryTool) Execute(ctx context.Context, params map[string]any) *Result {
	path := stringParam(params, "path")
	resolved, err := t.Paths.resolve(path)
	if err != nil {
		return Errorf("Error listing directory: %v", err)
	}

	info, err := os.Stat(resolved)
	if os.IsNotExist(err) {
		return Errorf("Error: Path not found: %s", path)
	}
	if err != nil {
		return Errorf("Error listing directory: %v", err)
	}
	if !info.IsDir() {
		return Errorf("Error: Not a directory: %s", path)
	}

	var entries []string
	if boolParam(params, "recursive") {
		err = filepath.WalkDir(resolved, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if p == resolved {
				return nil
			}
			if len(entries) >= maxListEntries {
				return filepath.SkipAll
			}
			rel, relErr := filepath.Rel(resolved, p)
			if relErr != nil {
				return nil
			}
			prefix := "[FILE]"
			if d.IsDir() {
				prefix = "[DIR] "
			}
			entries = append(entries, prefix+" "+rel)
			return nil
		})
		if err != nil {
			return Errorf("Error listing directory: %v", err)
		}
	} else {
		dirEntries, err := os.ReadDir(resolved)
		if err != nil {
			return Errorf("Error listing directory: %v", err)
		}
		sort.Slice(dirEntries, func(i, j int) bool { return dirEntries[i].Name() < dirEntries[j].Name() })
		for _, e := range dirEntries {
			prefix := "[FILE]"
			if e.IsDir() {
				prefix = "[DIR] "
			}
			entries = append(entries, prefix+" "+e.Name())
		}
	}

	if len(entries) == 0 {
		return Text("(empty directory)")
	}
	return Text("%s", strings.Join(entries, "\n"))
}
