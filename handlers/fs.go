package handlers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zhubert/acp-core/logger"
	"github.com/zhubert/acp-core/paths"
	"github.com/zhubert/acp-core/protocol"
)

// FS implements fs/read_text_file and fs/write_text_file. Every path the
// agent sends is resolved inside the working directory; escapes are rejected
// with a permission error rather than touched.
type FS struct {
	root string
}

// NewFS creates a filesystem handler rooted at dir.
func NewFS(dir string) *FS {
	return &FS{root: dir}
}

// HandleReadTextFile implements fs/read_text_file. Optional line (1-based)
// and limit params select a window of the file.
func (f *FS) HandleReadTextFile(params map[string]any) (any, *protocol.ErrorObject) {
	raw := stringParam(params, "path")
	if raw == "" {
		return nil, &protocol.ErrorObject{
			Code:    protocol.CodeInvalidParams,
			Message: "path is required",
		}
	}

	resolved, err := paths.ResolveWithin(f.root, raw)
	if err != nil {
		logger.WithComponent("fs").Warn("rejecting read outside workspace", "path", raw)
		return nil, &protocol.ErrorObject{
			Code:    protocol.CodePermissionDenied,
			Message: fmt.Sprintf("path outside workspace: %s", raw),
		}
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &protocol.ErrorObject{
				Code:    protocol.CodeFileNotFound,
				Message: fmt.Sprintf("file not found: %s", raw),
			}
		}
		return nil, &protocol.ErrorObject{
			Code:    protocol.CodeFileAccessError,
			Message: fmt.Sprintf("failed to read %s: %v", raw, err),
		}
	}

	content := string(data)
	line, hasLine := intParam(params, "line")
	limit, hasLimit := intParam(params, "limit")
	if hasLine || hasLimit {
		content = window(content, line, hasLine, limit, hasLimit)
	}

	logger.WithComponent("fs").Debug("read file", "path", resolved, "bytes", len(content))
	return map[string]any{"content": content}, nil
}

// HandleWriteTextFile implements fs/write_text_file. Parent directories are
// created as needed.
func (f *FS) HandleWriteTextFile(params map[string]any) (any, *protocol.ErrorObject) {
	raw := stringParam(params, "path")
	if raw == "" {
		return nil, &protocol.ErrorObject{
			Code:    protocol.CodeInvalidParams,
			Message: "path is required",
		}
	}
	content, ok := params["content"].(string)
	if !ok {
		return nil, &protocol.ErrorObject{
			Code:    protocol.CodeInvalidParams,
			Message: "content is required",
		}
	}

	resolved, err := paths.ResolveWithin(f.root, raw)
	if err != nil {
		logger.WithComponent("fs").Warn("rejecting write outside workspace", "path", raw)
		return nil, &protocol.ErrorObject{
			Code:    protocol.CodePermissionDenied,
			Message: fmt.Sprintf("path outside workspace: %s", raw),
		}
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return nil, &protocol.ErrorObject{
			Code:    protocol.CodeFileAccessError,
			Message: fmt.Sprintf("failed to create directory for %s: %v", raw, err),
		}
	}
	if err := os.WriteFile(resolved, []byte(content), 0644); err != nil {
		return nil, &protocol.ErrorObject{
			Code:    protocol.CodeFileAccessError,
			Message: fmt.Sprintf("failed to write %s: %v", raw, err),
		}
	}

	logger.WithComponent("fs").Debug("wrote file", "path", resolved, "bytes", len(content))
	return map[string]any{}, nil
}

// window extracts a line range from content. line is 1-based; out-of-range
// values clamp rather than error.
func window(content string, line int, hasLine bool, limit int, hasLimit bool) string {
	lines := strings.Split(content, "\n")

	start := 0
	if hasLine && line > 1 {
		start = line - 1
	}
	if start >= len(lines) {
		return ""
	}

	end := len(lines)
	if hasLimit && limit >= 0 && start+limit < end {
		end = start + limit
	}

	return strings.Join(lines[start:end], "\n")
}
