package guide

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"repotutor/internal/explore"
	"repotutor/internal/repo"
	"repotutor/internal/session"
	"repotutor/internal/skeleton"
)

const (
	interfaceLines = 1200
	excerptLines   = 40
	excerptLead    = 2
	listedSymbols  = 12
)

// renderDoc writes the four-section document for one file: intuition,
// mental model, source links, and interface plus implementation excerpts.
func renderDoc(ctx context.Context, w *session.Workspace, f skeleton.File, cat CategoryID) (*Doc, error) {
	snap, err := w.Repo.ReadFile(ctx, f.Path, repo.ReadOptions{StartLine: 1, EndLine: interfaceLines, MaxChars: 1 << 20})
	if err != nil {
		return nil, err
	}
	lang := f.Language
	if lang == "" {
		lang = snap.Language
	}
	lines := repo.SplitLines(snap.Content)
	var main *skeleton.Symbol
	if len(f.Symbols) > 0 {
		main = &f.Symbols[0]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", f.Path)
	links := []string{fmt.Sprintf("[Open file](%s)", OpenLink(f.Path, 1, snap.TotalLines))}
	if main != nil {
		links = append(links, fmt.Sprintf("[Focus %s](%s)", main.Name, FocusLink(f.Path, main.Name)))
	}
	dir := path.Dir(f.Path)
	if dir == "." {
		dir = ""
	}
	links = append(links, fmt.Sprintf("[Show folder](%s)", TreeLink(dir)))
	b.WriteString(strings.Join(links, " · ") + "\n\n")

	b.WriteString("## Intuition\n\n")
	fmt.Fprintf(&b, "`%s` is a %s file in the **%s** group", f.Path, languageName(lang), CategoryTitle(cat))
	if len(f.Symbols) == 0 {
		b.WriteString(". It declares no code landmarks; read it as configuration or data.\n\n")
	} else {
		fmt.Fprintf(&b, ". It declares %d symbol(s), starting with `%s`.\n\n", len(f.Symbols), f.Symbols[0].Name)
	}

	b.WriteString("## Mental model\n\n")
	if len(f.Symbols) == 0 {
		fmt.Fprintf(&b, "- %d line(s), no declarations\n", snap.TotalLines)
	}
	for i, s := range f.Symbols {
		if i == listedSymbols {
			fmt.Fprintf(&b, "- … and %d more\n", len(f.Symbols)-listedSymbols)
			break
		}
		fmt.Fprintf(&b, "- %s `%s` at line %d ([focus](%s))\n", s.Kind, s.Name, s.Line, FocusLink(f.Path, s.Name))
	}
	b.WriteString("\n")

	b.WriteString("## Source links\n\n")
	fmt.Fprintf(&b, "- [%s](%s)\n", f.Path, w.Repo.Permalink(f.Path, 1, snap.TotalLines))
	for i, s := range f.Symbols {
		if i == listedSymbols {
			break
		}
		fmt.Fprintf(&b, "- [%s:%d](%s)\n", s.Name, s.Line, w.Repo.Permalink(f.Path, s.Line, s.Line))
	}
	b.WriteString("\n")

	b.WriteString("## Interface and implementation\n\n")
	b.WriteString("### Interface\n\n")
	writeFence(&b, lang, explore.RenderInterface(lang, lines))
	if main != nil {
		start := max(1, main.Line-excerptLead)
		end := min(len(lines), start+excerptLines-1)
		if start <= end {
			fmt.Fprintf(&b, "\n### Implementation: %s ([open](%s))\n\n", main.Name, OpenLink(f.Path, start, end))
			writeFence(&b, lang, strings.Join(lines[start-1:end], "\n"))
		}
	}

	md := b.String()
	title := f.Path
	if main != nil {
		title = fmt.Sprintf("%s (%s)", f.Path, main.Name)
	}
	return &Doc{
		ID:       DocID(f.Path),
		Path:     f.Path,
		Category: cat,
		Title:    title,
		Markdown: md,
		Commands: ExtractCommands(md),
	}, nil
}

func writeFence(b *strings.Builder, lang, body string) {
	fence := "```"
	for strings.Contains(body, fence) {
		fence += "`"
	}
	fmt.Fprintf(b, "%s%s\n%s\n%s\n", fence, lang, body, fence)
}

func languageName(lang string) string {
	if lang == "" {
		return "plain"
	}
	return lang
}

// ExtractCommands returns the magic links of a markdown document in order of
// appearance. Ordinary links are skipped.
func ExtractCommands(markdown string) []Command {
	src := []byte(markdown)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))
	out := []Command{}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		var dest string
		switch l := n.(type) {
		case *ast.Link:
			dest = string(l.Destination)
		case *ast.AutoLink:
			dest = string(l.URL(src))
		default:
			return ast.WalkContinue, nil
		}
		if c, ok := ParseCommand(dest); ok {
			out = append(out, c)
		}
		return ast.WalkContinue, nil
	})
	return out
}
