package repo

import (
	"path"
	"strings"
)

var extLanguages = map[string]string{
	".go":      "go",
	".ts":      "typescript",
	".tsx":     "typescript",
	".mts":     "typescript",
	".cts":     "typescript",
	".js":      "javascript",
	".jsx":     "javascript",
	".mjs":     "javascript",
	".cjs":     "javascript",
	".vue":     "vue",
	".svelte":  "svelte",
	".py":      "python",
	".pyi":     "python",
	".rb":      "ruby",
	".java":    "java",
	".kt":      "kotlin",
	".kts":     "kotlin",
	".scala":   "scala",
	".swift":   "swift",
	".rs":      "rust",
	".c":       "c",
	".h":       "c",
	".cc":      "cpp",
	".cpp":     "cpp",
	".cxx":     "cpp",
	".hpp":     "cpp",
	".hh":      "cpp",
	".cs":      "csharp",
	".php":     "php",
	".dart":    "dart",
	".lua":     "lua",
	".ex":      "elixir",
	".exs":     "elixir",
	".sh":      "shell",
	".bash":    "shell",
	".zsh":     "shell",
	".sql":     "sql",
	".proto":   "proto",
	".graphql": "graphql",
	".gql":     "graphql",
	".md":      "markdown",
	".mdx":     "markdown",
	".json":    "json",
	".yaml":    "yaml",
	".yml":     "yaml",
	".toml":    "toml",
	".html":    "html",
	".css":     "css",
	".scss":    "css",
	".less":    "css",
}

var nameLanguages = map[string]string{
	"dockerfile":  "dockerfile",
	"makefile":    "makefile",
	"gemfile":     "ruby",
	"rakefile":    "ruby",
	"jenkinsfile": "groovy",
}

// LanguageOf classifies a repo-relative path by extension or well-known file name.
// Unknown files return "".
func LanguageOf(p string) string {
	base := strings.ToLower(path.Base(p))
	if lang, ok := nameLanguages[base]; ok {
		return lang
	}
	if strings.HasPrefix(base, "dockerfile.") {
		return "dockerfile"
	}
	return extLanguages[strings.ToLower(path.Ext(base))]
}

// IsIndexable reports whether the file type is on the source/config/doc allow-list.
func IsIndexable(p string) bool { return LanguageOf(p) != "" }
