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

const maxGlobResults = 1000

// GlobResult is the output of the glob tool.
type GlobResult struct {
	Matches   []string `json:"matches"`
	Truncated bool     `json:"truncated,omitempty"`
}

var globDefinition = ToolDefinition{
	Name: "glob",
	Description: "Fast file pattern matching. Supports ** for recursive matching " +
		"(e.g. '**/*.go', 'src/**/*.ts'). Returns matching paths, newest first.",
	Parameters: map[string]any{
		"pattern": map[string]any{
			"type":        "string",
			"description": "Glob pattern to match files (e.g. '**/*.go', 'src/*.ts')",
		},
		"path": map[string]any{
			"type":        "string",
			"description": "Base directory to search in (default: current directory)",
		},
	},
	Handler: globHandler,
}

func globHandler(ctx context.Context, args map[string]any) (any, error) {
	pattern, err := requiredStringArg(args, "pattern")
	if err != nil {
		return nil, err
	}
	base, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	if base == "" {
		base = "."
	}

	var matches []string
	if strings.Contains(pattern, "**") {
		matches, err = globRecursive(ctx, base, pattern)
	} else {
		matches, err = filepath.Glob(filepath.Join(base, pattern))
	}
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern: %w", err)
	}

	sortByModTime(matches)

	res := GlobResult{Matches: matches}
	if res.Matches == nil {
		res.Matches = []string{}
	}
	if len(res.Matches) > maxGlobResults {
		res.Matches = res.Matches[:maxGlobResults]
		res.Truncated = true
	}
	return res, nil
}

// globRecursive handles patterns containing ** by walking the directory tree
// and matching each file against the part after **.
//
//	"**/*.go"     → root=base,       suffix="*.go"
//	"src/**/*.go" → root=base/src,   suffix="*.go"
//	"**"          → root=base,       suffix="" (every file)
func globRecursive(ctx context.Context, basePath, pattern string) ([]string, error) {
	parts := strings.SplitN(pattern, "**", 2)
	prefix := strings.TrimRight(parts[0], "/\\")
	suffix := ""
	if len(parts) > 1 {
		suffix = strings.TrimLeft(parts[1], "/\\")
	}

	root := basePath
	if prefix != "" {
		root = filepath.Join(basePath, prefix)
	}
	if _, err := os.Stat(root); err != nil {
		return nil, nil // no matches, not an error
	}
	if _, err := filepath.Match(suffix, ""); err != nil {
		return nil, err
	}
	byRelPath := strings.ContainsAny(suffix, `/\`)

	var matches []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if suffix == "" {
			matches = append(matches, path)
			return nil
		}

		target := d.Name()
		if byRelPath {
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return nil
			}
			target = filepath.ToSlash(rel)
		}
		if ok, _ := filepath.Match(suffix, target); ok {
			matches = append(matches, path)
		}
		return nil
	})
	return matches, err
}

// sortByModTime sorts file paths by modification time, newest first.
// Files that cannot be stat'd are sorted to the end.
func sortByModTime(paths []string) {
	mod := make(map[string]int64, len(paths))
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			mod[p] = info.ModTime().UnixNano()
		}
	}
	sort.SliceStable(paths, func(i, j int) bool {
		return mod[paths[i]] > mod[paths[j]]
	})
}
