package parser

import (
	"regexp"
	"strings"
)

// Kinds of malformed cross-references reported by FindInvalidReferences.
const (
	RefMarkdownFile = "markdown-link-to-file"
	RefMarkdownID   = "markdown-link-to-id"
	RefUnbalanced   = "unbalanced-brackets"
	RefEmpty        = "empty-wikilink"
)

var (
	mdFileLinkRe = regexp.MustCompile(`\[[^\[\]\n]+\]\(([^()\s]+\.md)\)`)
	mdIDLinkRe   = regexp.MustCompile(`\[[^\[\]\n]+\]\(([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})\)`)
	// [[target] not followed by a second closing bracket.
	openDoubleRe = regexp.MustCompile(`\[\[[^\[\]\n]+\](?:[^\]]|$)`)
	// [target]] not preceded by a second opening bracket.
	closeDoubleRe = regexp.MustCompile(`(?:^|[^\[])\[[^\[\]\n]+\]\]`)
	emptyRe       = regexp.MustCompile(`\[\[\s*(?:\|[^\[\]\n]*)?\]\]`)
)

// InvalidReference is text that looks like a cross-reference but is not in
// the [[Title]] / [[Title|text]] form.
type InvalidReference struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
	Line int    `json:"line"`
}

// FindInvalidReferences scans body line by line for cross-reference shapes
// that the link graph does not understand.
func FindInvalidReferences(body string) []InvalidReference {
	var out []InvalidReference
	for i, line := range strings.Split(body, "\n") {
		add := func(kind string, matches []string) {
			for _, m := range matches {
				out = append(out, InvalidReference{Kind: kind, Text: strings.TrimSpace(m), Line: i + 1})
			}
		}
		add(RefMarkdownFile, mdFileLinkRe.FindAllString(line, -1))
		add(RefMarkdownID, mdIDLinkRe.FindAllString(line, -1))
		add(RefUnbalanced, openDoubleRe.FindAllString(line, -1))
		add(RefUnbalanced, closeDoubleRe.FindAllString(line, -1))
		add(RefEmpty, emptyRe.FindAllString(line, -1))
	}
	return out
}
