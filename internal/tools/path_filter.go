package tools

import (
	"os"
	"strings"
)

// maxScanFileSize excludes large files from content search.
const maxScanFileSize = 1024 * 1024

var defaultSkipDirNames = map[string]bool{
	".git":          true,
	"node_modules":  true,
	"vendor":        true,
	"__pycache__":   true,
	".next":         true,
	"dist":          true,
	"build":         true,
	"target":        true,
	".venv":         true,
	".tox":          true,
	".mypy_cache":   true,
	".pytest_cache": true,
}

// shouldSkipDir reports whether a directory walk should not descend into name.
func shouldSkipDir(name string) bool {
	if defaultSkipDirNames[name] {
		return true
	}
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

func shouldSkipFile(info os.FileInfo) bool {
	return info != nil && info.Size() > maxScanFileSize
}
