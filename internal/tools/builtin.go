package tools

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

const (
	defaultReadLimit = 2000
	readOutputLimit  = 32 * 1024
	maxSleep         = 10 * time.Minute
)

// BuiltinDefinitions returns the local tool set.
func BuiltinDefinitions() []ToolDefinition {
	return []ToolDefinition{
		readFileDefinition,
		listDirDefinition,
		globDefinition,
		grepDefinition,
		sleepDefinition,
	}
}

var readFileDefinition = ToolDefinition{
	Name: "read_file",
	Description: "Read the contents of a file at the given path. " +
		"Use offset and limit to read specific line ranges for large files.",
	Parameters: map[string]any{
		"file_path": map[string]any{
			"type":        "string",
			"description": "Path to the file to read",
		},
		"offset": map[string]any{
			"type":        "integer",
			"description": "Line number to start reading from (0-based, optional)",
		},
		"limit": map[string]any{
			"type":        "integer",
			"description": "Maximum number of lines to read (default 2000)",
		},
	},
	Handler: readFileHandler,
}

func readFileHandler(_ context.Context, args map[string]any) (any, error) {
	path, err := stringArg(args, "file_path")
	if err != nil {
		return nil, err
	}
	// Accept "path" as an alias.
	if path == "" {
		if path, err = stringArg(args, "path"); err != nil {
			return nil, err
		}
	}
	if path == "" {
		return nil, fmt.Errorf("file_path is required")
	}
	offset, err := intArg(args, "offset", 0)
	if err != nil {
		return nil, err
	}
	limit, err := intArg(args, "limit", defaultReadLimit)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultReadLimit
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	total := len(lines)
	if offset > 0 {
		if offset >= total {
			return fmt.Sprintf("[File has %d lines, offset %d is beyond end]", total, offset), nil
		}
		lines = lines[offset:]
	}
	truncated := false
	if len(lines) > limit {
		lines = lines[:limit]
		truncated = true
	}

	var sb strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&sb, "%6d\t%s\n", offset+i+1, line)
	}
	if truncated {
		fmt.Fprintf(&sb, "[Truncated: %d total lines. Use offset/limit to read more.]", total)
	}
	return truncateHeadTail(sb.String(), readOutputLimit), nil
}

var listDirDefinition = ToolDefinition{
	Name:        "list_dir",
	Description: "List the entries of a directory. Directories carry a trailing slash.",
	Parameters: map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Directory to list (default: current directory)",
		},
	},
	Handler: listDirHandler,
}

func listDirHandler(_ context.Context, args map[string]any) (any, error) {
	dir, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

var sleepDefinition = ToolDefinition{
	Name:        "sleep",
	Description: "Wait for the given number of milliseconds. Useful for polling.",
	Parameters: map[string]any{
		"ms": map[string]any{
			"type":        "integer",
			"description": "Milliseconds to wait",
		},
	},
	Handler: sleepHandler,
}

func sleepHandler(ctx context.Context, args map[string]any) (any, error) {
	ms, err := intArg(args, "ms", 0)
	if err != nil {
		return nil, err
	}
	if ms < 0 {
		return nil, fmt.Errorf("ms must not be negative")
	}
	d := time.Duration(ms) * time.Millisecond
	if d > maxSleep {
		return nil, fmt.Errorf("ms exceeds the %s maximum", maxSleep)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return map[string]any{"slept_ms": ms}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// truncateHeadTail keeps the head (60%) and tail (40%) of a string,
// omitting the middle.
func truncateHeadTail(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	head := maxLen * 3 / 5
	tail := maxLen * 2 / 5
	omitted := len(s) - head - tail
	return s[:head] + fmt.Sprintf("\n\n[...%d chars omitted...]\n\n", omitted) + s[len(s)-tail:]
}
