package scanner

import (
	"path/filepath"
	"strings"
)

// LanguageUnknown is the fallback when no extension mapping exists.
const LanguageUnknown = "unknown"

// extensionLanguages maps file extensions to language identifiers.
var extensionLanguages = map[string]string{
	".py":    "python",
	".pyi":   "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".go":    "go",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".cxx":   "cpp",
	".hpp":   "cpp",
	".rb":    "ruby",
	".php":   "php",
	".md":    "markdown",
	".rst":   "markdown",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".toml":  "toml",
	".sh":    "shell",
	".bash":  "shell",
	".zsh":   "shell",
	".txt":   "text",
	".swift": "swift",
	".kt":    "kotlin",
	".scala": "scala",
	".sql":   "sql",
}

// configNames are well-known configuration file basenames.
var configNames = map[string]bool{
	".env.example":      true,
	".gitignore":        true,
	".editorconfig":     true,
	".prettierrc":       true,
	".eslintrc":         true,
	"tsconfig.json":     true,
	"pyproject.toml":    true,
	"setup.cfg":         true,
	"requirements.txt":  true,
	"package.json":      true,
	"package-lock.json": true,
	"go.mod":            true,
	"go.sum":            true,
	"cargo.toml":        true,
	"gemfile":           true,
	"composer.json":     true,
}

// buildNames are well-known build-script basenames.
var buildNames = map[string]bool{
	"makefile":           true,
	"dockerfile":         true,
	"docker-compose.yml": true,
	"justfile":           true,
	"build.gradle":       true,
	"pom.xml":            true,
	"cmakelists.txt":     true,
	"setup.py":           true,
}

// DetectLanguage returns the language for a path, LanguageUnknown otherwise.
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extensionLanguages[ext]; ok {
		return lang
	}
	return LanguageUnknown
}

// Classify assigns a category to the path. Test paths win over everything
// else; the remaining rules go by basename and extension conventions.
func Classify(path string) Category {
	lower := strings.ToLower(path)
	base := strings.ToLower(filepath.Base(path))
	ext := strings.ToLower(filepath.Ext(path))

	if strings.Contains(lower, "test") || strings.Contains(lower, "spec") {
		return CategoryTest
	}
	if buildNames[base] {
		return CategoryBuild
	}
	if configNames[base] {
		return CategoryConfig
	}
	switch ext {
	case ".md", ".rst", ".txt":
		return CategoryDocs
	case ".yaml", ".yml", ".json", ".toml", ".ini", ".cfg", ".env":
		return CategoryConfig
	}
	if lang := DetectLanguage(path); lang != LanguageUnknown && lang != "markdown" && lang != "text" {
		return CategoryCode
	}
	return CategoryOther
}

// Depth returns the number of path separators from the repository root.
func Depth(path string) int {
	return strings.Count(filepath.ToSlash(path), "/")
}
