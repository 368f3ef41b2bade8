package scanner

// Category is the coarse file classification used for retrieval filtering.
type Category string

const (
	CategoryCode   Category = "code"
	CategoryTest   Category = "test"
	CategoryConfig Category = "config"
	CategoryDocs   Category = "docs"
	CategoryBuild  Category = "build"
	CategoryOther  Category = "other"
)

// FileRecord describes a file accepted by the scanner.
// Records are ephemeral; they live only for the duration of an ingestion.
type FileRecord struct {
	// Path is relative to the snapshot root, slash-separated.
	Path string

	// Language is derived from the extension; "unknown" when undetermined.
	Language string

	// Category classifies the file for retrieval filtering.
	Category Category

	// SizeBytes is the on-disk size.
	SizeBytes int64

	// Depth is the number of path separators from the repository root.
	Depth int

	// Bytes is the file content.
	Bytes []byte
}

// Options configures a scan.
type Options struct {
	// RootDir is the directory to scan.
	RootDir string

	// MaxFileSize is the per-file byte limit (default 1 MiB).
	MaxFileSize int64
}

// DefaultMaxFileSize is the per-file size limit.
const DefaultMaxFileSize int64 = 1 << 20

// excludedDirs are never descended into: VCS, dependency, build-artifact,
// and environment directories.
var excludedDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"dist":         true,
	"build":        true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"target":       true,
	"vendor":       true,
	".idea":        true,
	".vscode":      true,
}
