package analyzer

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"codewarden/internal/apperr"
	"codewarden/internal/logging"
)

// skipDirs are never descended into during the file walk.
var skipDirs = map[string]bool{
	".git":        true,
	"node_modules": true,
	"__pycache__": true,
	".venv":       true,
	"venv":        true,
	".archived":   true,
}

// recognizedExtensions maps source extensions to a language tag.
var recognizedExtensions = map[string]string{
	".py":  "python",
	".js":  "javascript",
	".mjs": "javascript",
	".cjs": "javascript",
	".jsx": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",
}

// ScanFiles walks root and returns the relative paths of recognized source
// files in sorted order. Dot-directories are skipped unless whitelisted.
func ScanFiles(root string, whitelist map[string]bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if skipDirs[name] || (strings.HasPrefix(name, ".") && !whitelist[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := recognizedExtensions[strings.ToLower(filepath.Ext(name))]; !ok {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFilesystem, err, "walk %s", root)
	}
	sort.Strings(files)
	logging.AnalyzerDebug("Scanned %s: %d source files", root, len(files))
	return files, nil
}

// languageOf returns the language tag for a file path, or "".
func languageOf(path string) string {
	return recognizedExtensions[strings.ToLower(filepath.Ext(path))]
}
