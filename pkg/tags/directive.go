package tags

import (
	"regexp"
	"strings"
)

const (
	openPrefix  = "<memory:"
	closePrefix = "</memory:"
)

// Kind is a directive kind.
type Kind string

const (
	// KindCanonize appends an immutable canonical entry.
	KindCanonize Kind = "canonize"

	// KindFact upserts a client fact. Requires a key attribute.
	KindFact Kind = "fact"

	// KindRemember appends to working memory.
	KindRemember Kind = "remember"
)

// Valid reports whether k is a known directive kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCanonize, KindFact, KindRemember:
		return true
	}
	return false
}

var (
	kindPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*`)
	attrPattern = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_-]*)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
)

// directive is one parsed <memory:kind ...>body</memory:kind> element.
type directive struct {
	kind  Kind
	attrs map[string]string
	body  string

	// start and end delimit the full element in the source text.
	start, end int

	// err is set when the element could not be parsed.
	err error

	// literal marks text that only looked like a directive and is left in
	// place even when stripping.
	literal bool
}

// scan finds every directive in text, in order. Elements without a closing
// tag are returned with an error and end set to the end of their opening tag.
func scan(text string) []directive {
	var out []directive

	pos := 0
	for {
		idx := strings.Index(text[pos:], openPrefix)
		if idx < 0 {
			return out
		}
		start := pos + idx

		d := parseAt(text, start)
		out = append(out, d)
		pos = d.end
	}
}

func parseAt(text string, start int) directive {
	d := directive{start: start}

	rest := text[start+len(openPrefix):]
	gt := strings.IndexByte(rest, '>')
	if gt < 0 {
		d.end = start + len(openPrefix)
		d.err = malformed("unterminated opening tag")
		d.literal = true
		return d
	}
	openEnd := start + len(openPrefix) + gt + 1
	d.end = openEnd

	tag := rest[:gt]
	name := kindPattern.FindString(tag)
	if name == "" {
		d.err = malformed("missing directive kind")
		return d
	}
	d.kind = Kind(name)
	d.attrs = parseAttrs(tag[len(name):])

	closeTag := closePrefix + name + ">"
	cl := strings.Index(text[openEnd:], closeTag)
	if cl < 0 {
		d.err = malformed("unterminated %q directive", name)
		return d
	}

	d.body = text[openEnd : openEnd+cl]
	d.end = openEnd + cl + len(closeTag)

	switch {
	case !d.kind.Valid():
		d.err = malformed("unknown directive kind %q", name)
	case strings.TrimSpace(d.body) == "":
		d.err = malformed("empty %q directive", name)
	case d.kind == KindFact && strings.TrimSpace(d.attrs["key"]) == "":
		d.err = malformed("fact directive without key")
	}

	return d
}

func parseAttrs(s string) map[string]string {
	attrs := map[string]string{}
	for _, m := range attrPattern.FindAllStringSubmatch(s, -1) {
		v := m[2]
		if v == "" {
			v = m[3]
		}
		attrs[strings.ToLower(m[1])] = v
	}
	return attrs
}
