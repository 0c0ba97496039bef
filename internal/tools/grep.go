package tools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

const maxGrepResults = 50

var errGrepLimit = errors.New("grep result limit reached")

// GrepMatch is one matching line.
type GrepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// GrepResult is the output of the grep tool.
type GrepResult struct {
	Matches   []GrepMatch `json:"matches"`
	Truncated bool        `json:"truncated,omitempty"`
}

var grepDefinition = ToolDefinition{
	Name: "grep",
	Description: "Recursively search file contents using a regex pattern. " +
		"Returns up to 50 matching lines with their file and line number.",
	Parameters: map[string]any{
		"pattern": map[string]any{
			"type":        "string",
			"description": "Regular expression pattern to search for",
		},
		"path": map[string]any{
			"type":        "string",
			"description": "Directory or file to search in (default: current directory)",
		},
		"glob": map[string]any{
			"type":        "string",
			"description": "File glob filter (e.g. '*.go', '*.ts')",
		},
		"case_insensitive": map[string]any{
			"type":        "boolean",
			"description": "Whether to ignore case (default: false)",
		},
	},
	Handler: grepHandler,
}

func grepHandler(ctx context.Context, args map[string]any) (any, error) {
	pattern, err := requiredStringArg(args, "pattern")
	if err != nil {
		return nil, err
	}
	root, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	if root == "" {
		root = "."
	}
	fileGlob, err := stringArg(args, "glob")
	if err != nil {
		return nil, err
	}
	fold, err := boolArg(args, "case_insensitive")
	if err != nil {
		return nil, err
	}

	if fold {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}

	res := GrepResult{Matches: []GrepMatch{}}
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip inaccessible files
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() {
			if path != root && shouldSkipDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldSkipFile(info) {
			return nil
		}
		if fileGlob != "" {
			if ok, _ := filepath.Match(fileGlob, info.Name()); !ok {
				return nil
			}
		}
		if err := searchFile(path, re, &res.Matches); err != nil {
			return nil // skip files we can't read
		}
		if len(res.Matches) >= maxGrepResults {
			return errGrepLimit
		}
		return nil
	})
	if errors.Is(err, errGrepLimit) {
		res.Truncated = true
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return res, nil
}

func searchFile(path string, re *regexp.Regexp, matches *[]GrepMatch) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if re.MatchString(line) {
			*matches = append(*matches, GrepMatch{Path: path, Line: lineNum, Text: line})
			if len(*matches) >= maxGrepResults {
				return nil
			}
		}
	}
	return scanner.Err()
}
