package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BuiltinTools returns the default tool set offered to every session.
func BuiltinTools() *Registry {
	return NewRegistry(
		&readFileTool{},
		&listDirectoryTool{},
	)
}

// resolvePath joins a tool-supplied path with the session work directory
// and rejects escapes.
func resolvePath(workDir, path string) (string, error) {
	if path == "" {
		path = "."
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(workDir, abs)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(workDir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the project directory", path)
	}
	return abs, nil
}

const maxReadBytes = 256 * 1024

type readFileTool struct{}

func (t *readFileTool) Name() string { return "read_file" }

func (t *readFileTool) Description() string {
	return "Read a file from the project directory. Returns the file contents as text."
}

func (t *readFileTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "File path, relative to the project directory"
			}
		},
		"required": ["path"]
	}`)
}

func (t *readFileTool) Execute(ctx context.Context, args map[string]any, ec ExecContext) (*Result, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}

	abs, err := resolvePath(ec.WorkDir, path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%q is a directory", path)
	}
	if info.Size() > maxReadBytes {
		return nil, fmt.Errorf("%q is too large (%d bytes, limit %d)", path, info.Size(), maxReadBytes)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	return &Result{Content: string(data)}, nil
}

type listDirectoryTool struct{}

func (t *listDirectoryTool) Name() string { return "list_directory" }

func (t *listDirectoryTool) Description() string {
	return "List the entries of a directory inside the project. Directories are suffixed with a slash."
}

func (t *listDirectoryTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "Directory path, relative to the project directory. Defaults to the project root."
			}
		}
	}`)
}

func (t *listDirectoryTool) Execute(ctx context.Context, args map[string]any, ec ExecContext) (*Result, error) {
	path, _ := args["path"].(string)

	abs, err := resolvePath(ec.WorkDir, path)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		b.WriteString(name)
		b.WriteByte('\n')
	}
	if b.Len() == 0 {
		return &Result{Content: "(empty directory)"}, nil
	}
	return &Result{Content: b.String()}, nil
}
