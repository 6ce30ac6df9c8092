package parser

import (
	"regexp"
	"strings"
)

// RelatedHeading is the body section the link graph appends markers to.
const RelatedHeading = "## Related"

var wikilinkRe = regexp.MustCompile(`\[\[([^\[\]\n]*?)\]\]`)

// Wikilink is one inline cross-reference marker found in a body.
type Wikilink struct {
	Target  string
	Display string
}

// Marker renders a marker for title, with optional display text.
func Marker(title, display string) string {
	display = strings.TrimSpace(display)
	if display == "" || display == title {
		return "[[" + title + "]]"
	}
	return "[[" + title + "|" + display + "]]"
}

// ExtractWikilinks returns every marker in body, in order, deduplicated by
// target. Markers with an empty target are skipped; the linter reports them.
func ExtractWikilinks(body string) []Wikilink {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []Wikilink
	for _, m := range matches {
		target, display, _ := strings.Cut(m[1], "|")
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, Wikilink{Target: target, Display: strings.TrimSpace(display)})
	}
	return out
}

// titleMarkerRe matches markers targeting exactly title. The title is
// escaped so characters like "(" or "+" are taken literally.
func titleMarkerRe(title string) *regexp.Regexp {
	return regexp.MustCompile(`\[\[\s*` + regexp.QuoteMeta(title) + `\s*(\|[^\[\]\n]*)?\]\]`)
}

// RewriteWikilinks replaces the target of every marker pointing at oldTitle
// with newTitle, keeping any display text.
//
// The rewrite is plain text substitution and is not Markdown-aware: markers
// inside code blocks or quotes are rewritten as well.
func RewriteWikilinks(body, oldTitle, newTitle string) string {
	if oldTitle == newTitle || strings.TrimSpace(oldTitle) == "" {
		return body
	}
	re := titleMarkerRe(oldTitle)
	return re.ReplaceAllStringFunc(body, func(match string) string {
		sub := re.FindStringSubmatch(match)
		return "[[" + newTitle + sub[1] + "]]"
	})
}

// RemoveWikilinks deletes every marker pointing at title. A list item that
// held nothing but the marker is removed as a whole line, and a Related
// section left empty is dropped.
func RemoveWikilinks(body, title string) string {
	if strings.TrimSpace(title) == "" {
		return body
	}
	re := titleMarkerRe(title)
	if !re.MatchString(body) {
		return body
	}

	lines := strings.Split(body, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if !re.MatchString(line) {
			out = append(out, line)
			continue
		}
		stripped := re.ReplaceAllString(line, "")
		rest := strings.TrimSpace(stripped)
		if rest == "" || rest == "-" || rest == "*" {
			continue
		}
		out = append(out, stripped)
	}
	return dropEmptyRelated(strings.Join(out, "\n"))
}

// AppendRelated adds marker as a list item at the end of the Related
// section, creating the section at the end of body when absent.
func AppendRelated(body, marker string) string {
	item := "- " + marker
	lines := strings.Split(body, "\n")

	start := relatedIndex(lines)
	if start < 0 {
		trimmed := strings.TrimRight(body, "\n")
		if trimmed == "" {
			return RelatedHeading + "\n\n" + item + "\n"
		}
		return trimmed + "\n\n" + RelatedHeading + "\n\n" + item + "\n"
	}

	end := sectionEnd(lines, start)
	// Insert after the last non-blank line of the section.
	insert := end
	for insert > start+1 && strings.TrimSpace(lines[insert-1]) == "" {
		insert--
	}
	if insert == start+1 {
		// Empty section: keep one blank line under the heading.
		lines = append(lines[:insert], append([]string{"", item}, lines[insert:]...)...)
	} else {
		lines = append(lines[:insert], append([]string{item}, lines[insert:]...)...)
	}

	out := strings.Join(lines, "\n")
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out
}

func relatedIndex(lines []string) int {
	for i, line := range lines {
		if strings.TrimSpace(line) == RelatedHeading {
			return i
		}
	}
	return -1
}

// sectionEnd returns the index of the next heading of level 1 or 2 after
// start, or len(lines).
func sectionEnd(lines []string, start int) int {
	for i := start + 1; i < len(lines); i++ {
		t := strings.TrimSpace(lines[i])
		if strings.HasPrefix(t, "# ") || strings.HasPrefix(t, "## ") {
			return i
		}
	}
	return len(lines)
}

func dropEmptyRelated(body string) string {
	lines := strings.Split(body, "\n")
	start := relatedIndex(lines)
	if start < 0 {
		return body
	}
	end := sectionEnd(lines, start)
	for _, l := range lines[start+1 : end] {
		if strings.TrimSpace(l) != "" {
			return body
		}
	}
	kept := append(lines[:start:start], lines[end:]...)
	out := strings.TrimRight(strings.Join(kept, "\n"), "\n")
	if out == "" {
		return ""
	}
	return out + "\n"
}
