package repo

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const TruncationMarker = "\n… [truncated]"

// SplitLines splits content into lines without the trailing empty line that a
// final newline would produce. An empty file has one empty line.
func SplitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// ClampRange clamps a 1-based inclusive window into [1, total] with end >= start.
// A zero start means 1; a zero end means start+window-1.
func ClampRange(start, end, total, window int) (int, int) {
	if total < 1 {
		total = 1
	}
	if start <= 0 {
		start = 1
	}
	if start > total {
		start = total
	}
	if end <= 0 {
		end = start + window - 1
	}
	if end < start {
		end = start
	}
	if end > total {
		end = total
	}
	return start, end
}

// Window cuts a line window out of content and applies the character budget.
func Window(content string, opts ReadOptions, defaultWindow int) FileSnapshot {
	if defaultWindow <= 0 {
		defaultWindow = DefaultLimits().DefaultWindow
	}
	lines := SplitLines(content)
	start, end := ClampRange(opts.StartLine, opts.EndLine, len(lines), defaultWindow)
	body := strings.Join(lines[start-1:end], "\n")
	truncated := false
	if opts.MaxChars > 0 && len(body) > opts.MaxChars {
		cut := opts.MaxChars
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + TruncationMarker
		truncated = true
	}
	return FileSnapshot{
		Content:    body,
		StartLine:  start,
		EndLine:    end,
		TotalLines: len(lines),
		Truncated:  truncated,
	}
}

// Tokenize lowercases a query and splits it on anything that is not a letter
// or digit (CJK ideographs count as letters). Tokens shorter than two runes
// are dropped; duplicates are kept once, in first-seen order.
func Tokenize(q string) []string {
	fields := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < 2 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
