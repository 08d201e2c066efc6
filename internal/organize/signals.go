// Package organize proposes a folder and tags for captured note content,
// blending embedding similarity against folder/tag centroids with structural
// heuristics over the text itself.
package organize

import (
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
)

// Signals are the structural facts detected in normalized content. They feed
// deterministic suggestions and the heuristic fallback when embeddings are
// unavailable.
type Signals struct {
	HasCode      bool
	Language     string
	HasHeading   bool
	FirstHeading string
	HasMath      bool
}

var (
	headingPattern = regexp.MustCompile(`^#{1,6}\s+(.+)$`)
	mathPattern    = regexp.MustCompile(`\$\$|\\\(|\\\[`)
)

// Detect extracts structural signals from normalized plain text.
func Detect(plain string) Signals {
	var sig Signals

	lines := strings.Split(plain, "\n")
	inCode := false
	var codeInfo string
	var codeBody []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if !inCode {
				inCode = true
				if !sig.HasCode {
					codeInfo = strings.ToLower(strings.TrimPrefix(trimmed, "```"))
				}
				sig.HasCode = true
			} else {
				inCode = false
			}
			continue
		}
		if inCode {
			if sig.Language == "" && codeInfo == "" {
				codeBody = append(codeBody, line)
			}
			continue
		}

		if m := headingPattern.FindStringSubmatch(trimmed); m != nil {
			if !sig.HasHeading {
				sig.FirstHeading = strings.TrimSpace(m[1])
			}
			sig.HasHeading = true
		}
		if mathPattern.MatchString(line) {
			sig.HasMath = true
		}
	}

	if sig.HasCode {
		sig.Language = sniffLanguage(codeInfo, strings.Join(codeBody, "\n"))
	}
	return sig
}

// sniffLanguage resolves a fence info string through the chroma lexer
// registry, falling back to content analysis when the fence is bare.
func sniffLanguage(info, body string) string {
	if info != "" {
		if lexer := lexers.Get(info); lexer != nil {
			return strings.ToLower(lexer.Config().Name)
		}
		return info
	}
	if strings.TrimSpace(body) == "" {
		return ""
	}
	if lexer := lexers.Analyse(body); lexer != nil {
		return strings.ToLower(lexer.Config().Name)
	}
	return ""
}
