package techstack

import (
	"path"
	"strings"

	"github.com/go-enry/go-enry/v2"
)

// LanguageResolver maps a file path to a lowercase language name.
type LanguageResolver interface {
	Language(filePath string) (string, bool)
}

// StaticTable resolves languages from file extensions (".py") and, for
// extensionless files, exact lowercase base names ("dockerfile").
type StaticTable map[string]string

func (t StaticTable) Language(filePath string) (string, bool) {
	base := strings.ToLower(path.Base(filePath))
	if lang, ok := t[base]; ok {
		return lang, true
	}
	ext := path.Ext(base)
	if ext == "" {
		return "", false
	}
	lang, ok := t[ext]
	return lang, ok
}

// DefaultTable is the built-in extension table. Data and prose formats
// (json, yaml, markdown) are deliberately absent.
func DefaultTable() StaticTable {
	return StaticTable{
		".py":     "python",
		".pyi":    "python",
		".ipynb":  "jupyter notebook",
		".go":     "go",
		".js":     "javascript",
		".jsx":    "javascript",
		".mjs":    "javascript",
		".cjs":    "javascript",
		".ts":     "typescript",
		".tsx":    "typescript",
		".java":   "java",
		".kt":     "kotlin",
		".kts":    "kotlin",
		".scala":  "scala",
		".rb":     "ruby",
		".rs":     "rust",
		".c":      "c",
		".h":      "c",
		".cc":     "c++",
		".cpp":    "c++",
		".hpp":    "c++",
		".cs":     "c#",
		".fs":     "f#",
		".php":    "php",
		".swift":  "swift",
		".m":      "objective-c",
		".dart":   "dart",
		".lua":    "lua",
		".r":      "r",
		".jl":     "julia",
		".ex":     "elixir",
		".exs":    "elixir",
		".erl":    "erlang",
		".hs":     "haskell",
		".clj":    "clojure",
		".sh":     "shell",
		".bash":   "shell",
		".zsh":    "shell",
		".ps1":    "powershell",
		".sql":    "sql",
		".html":   "html",
		".css":    "css",
		".scss":   "scss",
		".vue":    "vue",
		".svelte": "svelte",
		".tf":     "hcl",
		".proto":  "protocol buffer",

		"dockerfile": "dockerfile",
		"makefile":   "makefile",
	}
}

// EnryResolver detects languages with go-enry's linguist data. Vendored
// paths and non-code formats are not attributed to any language.
type EnryResolver struct{}

func (EnryResolver) Language(filePath string) (string, bool) {
	if enry.IsVendor(filePath) {
		return "", false
	}
	lang, _ := enry.GetLanguageByExtension(filePath)
	if lang == "" {
		lang, _ = enry.GetLanguageByFilename(filePath)
	}
	if lang == "" {
		return "", false
	}
	switch enry.GetLanguageType(lang) {
	case enry.Programming, enry.Markup:
		return strings.ToLower(lang), true
	default:
		return "", false
	}
}
