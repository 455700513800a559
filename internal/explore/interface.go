package explore

import (
	"fmt"
	"regexp"
	"strings"

	"repotutor/internal/skeleton"
)

const (
	foldMarker      = "{ … }"
	maxComments     = 3
	maxTypeBody     = 30
	headFallbackLen = 40
)

var (
	reImport = regexp.MustCompile(`^\s*(?:import\b|from\s+\S+\s+import\b|#include\b|#import\b|using\s+[\w.]+\s*;|use\s+[\w:{}, ]+;|require\s*\(|(?:const|let|var)\s+\w+\s*=\s*require\s*\(|package\s+[\w.]+|@import\b|library\s+[\w.]+;|part\s+['"])`)
	reComment = regexp.MustCompile(`^\s*(?://|#(?:[^!\w]|$)|/\*|\*|--|;;|"""|''')`)
	reControl = regexp.MustCompile(`^\s*(?:\}\s*)?(?:if|else|for|foreach|while|do|switch|case|try|catch|finally|with|unless|until|loop|match|select)\b`)
)

// typeKinds keep their bodies (fields, member signatures) when short.
var typeKinds = map[string]bool{
	skeleton.KindInterface: true,
	skeleton.KindStruct:    true,
	skeleton.KindEnum:      true,
	skeleton.KindTrait:     true,
	skeleton.KindType:      true,
}

// RenderInterface keeps imports, declarations and up to three comment lines
// above each declaration. A function or method body opened by a brace on
// the declaration line is folded into a one-line stub. Omitted runs are
// replaced by a marker with the number of lines left out. Every kept line
// carries its 1-based line number.
func RenderInterface(language string, lines []string) string {
	n := len(lines)
	kept := make([]string, n)
	has := make([]bool, n)
	hidden := make([]bool, n)
	keep := func(i int, text string) {
		if i < 0 || i >= n || hidden[i] || has[i] {
			return
		}
		kept[i], has[i] = text, true
	}

	inImportBlock := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case inImportBlock:
			keep(i, line)
			if strings.HasPrefix(trimmed, ")") {
				inImportBlock = false
			}
		case reImport.MatchString(line):
			keep(i, line)
			if strings.HasSuffix(trimmed, "(") {
				inImportBlock = true
			}
		}
	}

	for _, sym := range skeleton.Extract(language, lines) {
		i := sym.Line - 1
		if i < 0 || i >= n || hidden[i] {
			continue
		}
		for j, c := i-1, 0; j >= 0 && c < maxComments && reComment.MatchString(lines[j]); j, c = j-1, c+1 {
			keep(j, lines[j])
		}
		line := lines[i]
		trimmed := strings.TrimRight(line, " \t")
		opens := strings.HasSuffix(trimmed, "{") && !reControl.MatchString(line)
		switch {
		case opens && typeKinds[sym.Kind]:
			keep(i, line)
			end := closingLine(lines, i)
			if end > i && end-i <= maxTypeBody {
				for k := i + 1; k <= end; k++ {
					keep(k, lines[k])
				}
			}
		case opens && (sym.Kind == skeleton.KindFunction || sym.Kind == skeleton.KindMethod):
			keep(i, strings.TrimRight(strings.TrimSuffix(trimmed, "{"), " \t")+" "+foldMarker)
			end := closingLine(lines, i)
			for k := i + 1; k <= end && k < n; k++ {
				if !has[k] {
					hidden[k] = true
				}
			}
		case language == "python" && strings.HasSuffix(trimmed, ":") && sym.Kind != skeleton.KindClass:
			keep(i, trimmed+" …")
		default:
			keep(i, line)
		}
	}

	var b strings.Builder
	wrote := false
	prev := 0
	for i := 0; i < n; i++ {
		if !has[i] {
			continue
		}
		if i > prev {
			writeElision(&b, i-prev)
		}
		fmt.Fprintf(&b, "%d: %s\n", i+1, kept[i])
		prev = i + 1
		wrote = true
	}
	if !wrote {
		return renderHead(lines)
	}
	if prev < n {
		writeElision(&b, n-prev)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeElision(b *strings.Builder, count int) {
	if count == 1 {
		b.WriteString("… 1 line omitted\n")
		return
	}
	fmt.Fprintf(b, "… %d lines omitted\n", count)
}

// renderHead is used when no declaration or import was recognised.
func renderHead(lines []string) string {
	var b strings.Builder
	limit := min(headFallbackLen, len(lines))
	for i := 0; i < limit; i++ {
		fmt.Fprintf(&b, "%d: %s\n", i+1, lines[i])
	}
	if len(lines) > limit {
		writeElision(&b, len(lines)-limit)
	}
	return strings.TrimRight(b.String(), "\n")
}

// closingLine finds the line holding the brace that closes the block opened
// on line start. Braces inside strings are counted too; the result is only
// used to size folds.
func closingLine(lines []string, start int) int {
	depth := 0
	for i := start; i < len(lines); i++ {
		for _, r := range lines[i] {
			switch r {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return i
				}
			}
		}
	}
	return len(lines) - 1
}
