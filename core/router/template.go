package router

import (
	"strings"
)

type segKind uint8

const (
	segLiteral segKind = iota
	segParam
	segWildcard
)

type segment struct {
	kind segKind
	text string
}

// parseTemplate splits a route template into segments. A single trailing
// slash is ignored; "/" has no segments.
func parseTemplate(path string) ([]segment, *RouteError) {
	fail := func(reason string) ([]segment, *RouteError) {
		return nil, &RouteError{Path: path, Reason: reason, Err: ErrMalformedRoute}
	}

	if !strings.HasPrefix(path, "/") {
		return fail("template must start with /")
	}

	trimmed := strings.TrimPrefix(path, "/")
	trimmed = strings.TrimSuffix(trimmed, "/")
	if trimmed == "" {
		if len(path) > 1 {
			return fail("empty segment")
		}
		return nil, nil
	}

	parts := strings.Split(trimmed, "/")
	segs := make([]segment, 0, len(parts))
	seen := make(map[string]bool)
	wildcards := 0

	for _, part := range parts {
		switch {
		case part == "":
			return fail("empty segment")

		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}"):
			name := part[1 : len(part)-1]
			switch {
			case name == "":
				return fail("empty parameter name")
			case name == WildcardParam:
				wildcards++
				if wildcards > 1 {
					return fail("more than one wildcard")
				}
				segs = append(segs, segment{kind: segWildcard})
			case strings.ContainsAny(name, "{}*"):
				return fail("invalid parameter name " + name)
			case seen[name]:
				return fail("duplicate parameter name " + name)
			default:
				seen[name] = true
				segs = append(segs, segment{kind: segParam, text: name})
			}

		case strings.ContainsAny(part, "{}"):
			return fail("unbalanced brace in segment " + part)

		default:
			segs = append(segs, segment{kind: segLiteral, text: part})
		}
	}

	for i, s := range segs {
		if s.kind == segWildcard && i != len(segs)-1 {
			return fail("wildcard must be the last segment")
		}
	}

	return segs, nil
}

// templateString renders segments back to a template
func templateString(segs []segment) string {
	if len(segs) == 0 {
		return "/"
	}

	var b strings.Builder
	for _, s := range segs {
		b.WriteByte('/')
		switch s.kind {
		case segLiteral:
			b.WriteString(s.text)
		case segParam:
			b.WriteString("{" + s.text + "}")
		case segWildcard:
			b.WriteString("{*}")
		}
	}
	return b.String()
}
