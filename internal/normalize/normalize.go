// Package normalize turns rich note content into plain text suitable for
// embedding and keyword matching.
package normalize

import (
	"regexp"
	"strings"
)

var (
	htmlTagPattern    = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	boldPattern       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicPattern     = regexp.MustCompile(`\*([^*\n]+)\*`)
	underscorePattern = regexp.MustCompile(`__([^_]+)__`)
	strikePattern     = regexp.MustCompile(`~~([^~]+)~~`)
	imagePattern      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	linkPattern       = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	spacesPattern     = regexp.MustCompile(`[ \t]+`)
)

// Normalize strips markup from raw content and collapses whitespace.
//
// Fenced code blocks, heading markers and math delimiters pass through
// untouched so downstream structural heuristics can still see them. The
// function is pure and idempotent; empty input yields the empty string.
func Normalize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	inCode := false
	blankRun := 0

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			out = append(out, strings.TrimSpace(line))
			inCode = !inCode
			blankRun = 0
			continue
		}
		if inCode {
			// Code bodies stay literal so indentation and keywords survive
			// for language sniffing.
			out = append(out, line)
			blankRun = 0
			continue
		}

		cleaned := stripInline(line)
		cleaned = strings.TrimSpace(spacesPattern.ReplaceAllString(cleaned, " "))
		if cleaned == "" {
			blankRun++
			if blankRun > 1 {
				continue
			}
			out = append(out, "")
			continue
		}
		blankRun = 0
		out = append(out, cleaned)
	}

	return strings.Trim(strings.Join(out, "\n"), "\n")
}

func stripInline(line string) string {
	line = htmlTagPattern.ReplaceAllString(line, " ")
	line = imagePattern.ReplaceAllString(line, "$1")
	line = linkPattern.ReplaceAllString(line, "$1")
	line = boldPattern.ReplaceAllString(line, "$1")
	line = italicPattern.ReplaceAllString(line, "$1")
	line = underscorePattern.ReplaceAllString(line, "$1")
	line = strikePattern.ReplaceAllString(line, "$1")
	return line
}
