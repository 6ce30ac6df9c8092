package parser

import (
	"bytes"
	"errors"
)

const delimiter = "---"

var (
	errNoHeader       = errors.New("missing front-matter delimiter")
	errUnclosedHeader = errors.New("unclosed front-matter block")
)

// splitFrontmatter separates the YAML header (between leading --- lines) from
// the Markdown body. Unlike a lenient note parser, a memory file without a
// well-formed header is an error.
//
// One blank line after the closing delimiter belongs to the file layout, not
// the body, so Encode and Decode round-trip bodies exactly.
func splitFrontmatter(data []byte) (header []byte, body string, err error) {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	trimmed := bytes.TrimLeft(data, "\n")

	if !bytes.HasPrefix(trimmed, []byte(delimiter+"\n")) {
		return nil, "", errNoHeader
	}
	rest := trimmed[len(delimiter)+1:]

	// The header may be empty ("---\n---").
	if bytes.HasPrefix(rest, []byte(delimiter)) && closesAt(rest, 0) {
		return nil, trimBodyPrefix(rest[len(delimiter):]), nil
	}

	offset := 0
	for {
		idx := bytes.Index(rest[offset:], []byte("\n"+delimiter))
		if idx < 0 {
			return nil, "", errUnclosedHeader
		}
		start := offset + idx + 1
		if closesAt(rest, start) {
			return rest[:start], trimBodyPrefix(rest[start+len(delimiter):]), nil
		}
		offset = start
	}
}

// closesAt reports whether a delimiter at rest[i:] stands alone on its line.
func closesAt(rest []byte, i int) bool {
	end := i + len(delimiter)
	return end == len(rest) || rest[end] == '\n'
}

func trimBodyPrefix(after []byte) string {
	switch {
	case bytes.HasPrefix(after, []byte("\n\n")):
		return string(after[2:])
	case bytes.HasPrefix(after, []byte("\n")):
		return string(after[1:])
	default:
		return string(after)
	}
}
