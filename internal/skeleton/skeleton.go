// Package skeleton extracts a lightweight symbol index from repository files.
//
// Extraction is line-oriented: each language has a handful of anchored
// patterns over a line's leading tokens. Unusual formatting (declarations
// split across lines, macros, decorators on the same line) produces false
// negatives; the index only needs to answer "where might X live".
package skeleton

import (
	"strings"
	"time"
	"unicode/utf8"
)

type Symbol struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Signature string `json:"signature,omitempty"`
	Line      int    `json:"line"`
}

type File struct {
	Path     string   `json:"path"`
	Language string   `json:"language"`
	Symbols  []Symbol `json:"symbols"`
}

type Failure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type Index struct {
	RepoKey  string    `json:"repoKey"`
	Files    []File    `json:"files"`
	Failures []Failure `json:"failures,omitempty"`
	BuiltAt  time.Time `json:"builtAt"`
}

// File returns the indexed entry for path.
func (ix *Index) File(path string) (File, bool) {
	if ix == nil {
		return File{}, false
	}
	for _, f := range ix.Files {
		if f.Path == path {
			return f, true
		}
	}
	return File{}, false
}

// FindSymbol looks a symbol up by name within one file. An exact match wins
// over a case-insensitive one; among equals the first declaration wins.
func (ix *Index) FindSymbol(path, name string) (Symbol, bool) {
	f, ok := ix.File(path)
	if !ok {
		return Symbol{}, false
	}
	name = strings.TrimSpace(name)
	for _, s := range f.Symbols {
		if s.Name == name {
			return s, true
		}
	}
	for _, s := range f.Symbols {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Symbol{}, false
}

// SymbolCount is the total number of symbols.
func (ix *Index) SymbolCount() int {
	if ix == nil {
		return 0
	}
	n := 0
	for _, f := range ix.Files {
		n += len(f.Symbols)
	}
	return n
}

// SymbolFileCount counts files that contributed at least one symbol.
func (ix *Index) SymbolFileCount() int {
	if ix == nil {
		return 0
	}
	n := 0
	for _, f := range ix.Files {
		if len(f.Symbols) > 0 {
			n++
		}
	}
	return n
}

const maxSignature = 160

// Extract runs the language's rules over lines (1-based line numbers).
// The first matching rule per line wins; duplicates are suppressed.
func Extract(language string, lines []string) []Symbol {
	rules, ok := rulesByLanguage[language]
	if !ok {
		return nil
	}
	type key struct {
		kind, name string
		line       int
	}
	seen := map[key]struct{}{}
	var out []Symbol
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		for _, rl := range rules {
			m := rl.re.FindStringSubmatch(line)
			if m == nil || rl.name >= len(m) {
				continue
			}
			name := strings.Trim(strings.TrimSpace(m[rl.name]), `"`)
			if name == "" || (rl.loose && isControlWord(name)) {
				continue
			}
			kind := rl.kind
			if rl.indentKind != "" && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) {
				kind = rl.indentKind
			}
			k := key{kind, name, i + 1}
			if _, dup := seen[k]; dup {
				break
			}
			seen[k] = struct{}{}
			out = append(out, Symbol{Kind: kind, Name: name, Signature: signature(line), Line: i + 1})
			break
		}
	}
	return out
}

func signature(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimSpace(strings.TrimSuffix(s, "{"))
	if utf8.RuneCountInString(s) > maxSignature {
		rs := []rune(s)
		s = string(rs[:maxSignature]) + "…"
	}
	return s
}
