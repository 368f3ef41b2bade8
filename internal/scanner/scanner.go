// Package scanner discovers and classifies indexable files in a repository
// snapshot. Binary files, oversize files, and dependency directories are
// rejected; accepted files carry language, category, and depth metadata.
package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	ignore "github.com/sabhiram/go-gitignore"
)

// binarySniffLen is how many leading bytes are checked for UTF-8 validity.
const binarySniffLen = 8 * 1024

// Scanner discovers indexable files in a snapshot directory.
type Scanner struct {
	maxFileSize int64
}

// New creates a Scanner. maxFileSize <= 0 uses DefaultMaxFileSize.
func New(maxFileSize int64) *Scanner {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Scanner{maxFileSize: maxFileSize}
}

// Scan walks rootDir and returns accepted files in enumeration order.
// The root .gitignore (when present) is honored on top of the fixed denylist.
func (s *Scanner) Scan(ctx context.Context, rootDir string) ([]*FileRecord, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, err
	}

	matcher := loadGitignore(absRoot)

	var files []*FileRecord
	var skipped int

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if relPath == "." {
				return nil
			}
			if excludedDirs[d.Name()] || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if matcher != nil && matcher.MatchesPath(relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if matcher != nil && matcher.MatchesPath(relPath) {
			skipped++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > s.maxFileSize {
			skipped++
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if isBinary(data) {
			skipped++
			return nil
		}

		files = append(files, &FileRecord{
			Path:      relPath,
			Language:  DetectLanguage(relPath),
			Category:  Classify(relPath),
			SizeBytes: info.Size(),
			Depth:     Depth(relPath),
			Bytes:     data,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("scan complete",
		slog.String("root", absRoot),
		slog.Int("accepted", len(files)),
		slog.Int("skipped", skipped))

	return files, nil
}

// loadGitignore parses the root .gitignore if present.
func loadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	matcher, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return matcher
}

// isBinary checks UTF-8 validity of the leading bytes.
// A NUL byte or invalid encoding classifies the file as binary.
func isBinary(data []byte) bool {
	sniff := data
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
		// Avoid flagging a rune split at the sniff boundary.
		for len(sniff) > 0 && !utf8.Valid(sniff) {
			r, _ := utf8.DecodeLastRune(sniff)
			if r != utf8.RuneError {
				break
			}
			sniff = sniff[:len(sniff)-1]
		}
	}
	for _, b := range sniff {
		if b == 0 {
			return true
		}
	}
	return !utf8.Valid(sniff)
}
