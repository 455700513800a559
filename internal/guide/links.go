package guide

import (
	"net/url"
	"strconv"
	"strings"
)

// Scheme prefixes magic links. Parsing also accepts the bare "open?..." form.
const Scheme = "repotutor://"

const (
	ActionOpen  = "open"
	ActionFocus = "focus"
	ActionTree  = "tree"
)

// Command is a parsed magic link. Only the fields of its action are set.
type Command struct {
	Action    string `json:"action"`
	File      string `json:"file,omitempty"`
	StartLine int    `json:"startLine,omitempty"`
	EndLine   int    `json:"endLine,omitempty"`
	Symbol    string `json:"symbol,omitempty"`
	Path      string `json:"path,omitempty"`
}

func OpenLink(file string, startLine, endLine int) string {
	return Command{Action: ActionOpen, File: file, StartLine: startLine, EndLine: endLine}.String()
}

func FocusLink(file, symbol string) string {
	return Command{Action: ActionFocus, File: file, Symbol: symbol}.String()
}

func TreeLink(dir string) string {
	return Command{Action: ActionTree, Path: dir}.String()
}

func (c Command) String() string {
	q := url.Values{}
	switch c.Action {
	case ActionOpen:
		q.Set("file", c.File)
		if c.StartLine > 0 {
			q.Set("startLine", strconv.Itoa(c.StartLine))
		}
		if c.EndLine > 0 {
			q.Set("endLine", strconv.Itoa(c.EndLine))
		}
	case ActionFocus:
		q.Set("file", c.File)
		q.Set("symbol", c.Symbol)
	case ActionTree:
		q.Set("path", c.Path)
	}
	return Scheme + c.Action + "?" + q.Encode()
}

// ParseCommand decodes a magic link. Anything malformed, of an unknown
// action, or missing a required parameter yields ok=false so the caller can
// treat it as an ordinary link.
func ParseCommand(raw string) (Command, bool) {
	s := strings.TrimSpace(raw)
	s, schemed := strings.CutPrefix(s, Scheme)
	action, query, found := strings.Cut(s, "?")
	if !found {
		return Command{}, false
	}
	if schemed {
		action = strings.TrimSuffix(action, "/")
	}
	q, err := url.ParseQuery(query)
	if err != nil {
		return Command{}, false
	}
	c := Command{Action: action}
	switch c.Action {
	case ActionOpen:
		c.File = q.Get("file")
		if c.File == "" {
			return Command{}, false
		}
		var ok bool
		if c.StartLine, ok = optionalLine(q.Get("startLine")); !ok {
			return Command{}, false
		}
		if c.EndLine, ok = optionalLine(q.Get("endLine")); !ok {
			return Command{}, false
		}
		if c.StartLine > 0 && c.EndLine > 0 && c.EndLine < c.StartLine {
			return Command{}, false
		}
	case ActionFocus:
		c.File, c.Symbol = q.Get("file"), q.Get("symbol")
		if c.File == "" || c.Symbol == "" {
			return Command{}, false
		}
	case ActionTree:
		if !q.Has("path") {
			return Command{}, false
		}
		c.Path = q.Get("path")
	default:
		return Command{}, false
	}
	return c, true
}

func optionalLine(v string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
