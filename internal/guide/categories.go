package guide

import (
	"path"
	"regexp"
	"strings"
)

type CategoryID string

const (
	CategoryEntry   CategoryID = "entry"
	CategoryService CategoryID = "service"
	CategoryData    CategoryID = "data"
	CategoryView    CategoryID = "view"
	CategoryHooks   CategoryID = "hooks"
	CategoryCore    CategoryID = "core"
)

type categoryRule struct {
	id       CategoryID
	title    string
	keywords []string
	match    func(p, base string) bool
}

var reHookFile = regexp.MustCompile(`^use[A-Z]`)

// categoryRules are checked in order; the first match wins and core catches
// everything else.
var categoryRules = []categoryRule{
	{id: CategoryEntry, title: "Entry points & routing", keywords: []string{"main", "index", "app", "router", "routes", "server"},
		match: func(p, _ string) bool { return strings.HasPrefix(p, "cmd/") || strings.Contains(p, "/cmd/") }},
	{id: CategoryService, title: "Services & handlers", keywords: []string{"service", "api", "handler", "controller", "usecase"}},
	{id: CategoryData, title: "Data models & storage", keywords: []string{"model", "schema", "entity", "types", "store", "repository", "db"}},
	{id: CategoryView, title: "Views & UI", keywords: []string{"view", "component", "page", "ui", "screen", "widget"}},
	{id: CategoryHooks, title: "Hooks & composables", keywords: []string{"hook", "composable"},
		match: func(_, base string) bool { return reHookFile.MatchString(base) }},
}

const coreTitle = "Core overview"

// CategoryTitle returns the display title of a category.
func CategoryTitle(id CategoryID) string {
	for _, r := range categoryRules {
		if r.id == id {
			return r.title
		}
	}
	return coreTitle
}

// Categorize buckets a repository path by keywords in its directory and
// file names.
func Categorize(p string) CategoryID {
	base := path.Base(p)
	stem := strings.TrimSuffix(base, path.Ext(base))
	words := pathWords(p)
	for _, r := range categoryRules {
		if r.match != nil && r.match(p, stem) {
			return r.id
		}
		for _, kw := range r.keywords {
			if words[kw] {
				return r.id
			}
		}
	}
	return CategoryCore
}

// pathWords splits every path segment on separators and camel-case humps,
// lowercased, with plural "s" forms folded onto their singular.
func pathWords(p string) map[string]bool {
	out := map[string]bool{}
	for _, seg := range strings.Split(p, "/") {
		seg = strings.TrimSuffix(seg, path.Ext(seg))
		for _, w := range splitWords(seg) {
			w = strings.ToLower(w)
			out[w] = true
			if len(w) > 3 && strings.HasSuffix(w, "s") {
				out[strings.TrimSuffix(w, "s")] = true
			}
		}
	}
	return out
}

func splitWords(s string) []string {
	var words []string
	start := 0
	runes := []rune(s)
	flush := func(i int) {
		if i > start {
			words = append(words, string(runes[start:i]))
		}
		start = i
	}
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '.' || r == ' ':
			flush(i)
			start = i + 1
		case i > 0 && r >= 'A' && r <= 'Z' && runes[i-1] >= 'a' && runes[i-1] <= 'z':
			flush(i)
		}
	}
	flush(len(runes))
	return words
}
