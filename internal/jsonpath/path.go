package jsonpath

import (
	"strconv"
	"strings"

	"github.com/eternalApril/moonstone/internal/dberr"
)

type segKind uint8

const (
	segField segKind = iota
	segIndex
	segWildcard
	// segRecurse selects a node and all of its descendants; the next segment applies to each
	segRecurse
)

type segment struct {
	kind  segKind
	name  string
	index int
}

// Path is a parsed path expression
type Path struct {
	raw    string
	segs   []segment
	legacy bool
}

func invalidPath(format string, args ...any) error {
	return dberr.Newf(dberr.InvalidPath, format, args...)
}

// Parse accepts JSONPath ("$.a[0]", "$..b", "$.*") and legacy paths (".", "a.b[0]")
func Parse(expr string) (*Path, error) {
	if expr == "" {
		return nil, invalidPath("empty path")
	}

	p := &Path{raw: expr}
	rest := expr
	if expr[0] == '$' {
		rest = expr[1:]
	} else {
		p.legacy = true
		if expr == "." {
			return p, nil
		}
		if rest[0] != '.' && rest[0] != '[' {
			rest = "." + rest
		}
	}

	segs, err := parseSegments(rest)
	if err != nil {
		return nil, invalidPath("invalid path %q: %v", expr, err)
	}
	p.segs = segs
	return p, nil
}

// MustParse is Parse for literals known to be valid
func MustParse(expr string) *Path {
	p, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Path) String() string { return p.raw }

// Legacy reports whether the path uses the pre-JSONPath syntax
func (p *Path) Legacy() bool { return p.legacy }

// IsRoot reports whether the path addresses the whole document
func (p *Path) IsRoot() bool { return len(p.segs) == 0 }

// Definite reports whether the path can match at most one node
func (p *Path) Definite() bool {
	for _, s := range p.segs {
		if s.kind == segWildcard || s.kind == segRecurse {
			return false
		}
	}
	return true
}

type parseErr string

func (e parseErr) Error() string { return string(e) }

func parseSegments(s string) ([]segment, error) {
	var segs []segment

	for i := 0; i < len(s); {
		switch s[i] {
		case '.':
			i++
			if i < len(s) && s[i] == '.' {
				i++
				segs = append(segs, segment{kind: segRecurse})
				if i < len(s) && s[i] == '[' {
					continue
				}
			}
			if i >= len(s) {
				return nil, parseErr("trailing dot")
			}
			if s[i] == '*' {
				segs = append(segs, segment{kind: segWildcard})
				i++
				continue
			}
			j := i
			for j < len(s) && s[j] != '.' && s[j] != '[' {
				j++
			}
			if j == i {
				return nil, parseErr("empty field name")
			}
			segs = append(segs, segment{kind: segField, name: s[i:j]})
			i = j

		case '[':
			seg, n, err := parseBracket(s[i:])
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)
			i += n

		default:
			return nil, parseErr("unexpected character " + strconv.QuoteRune(rune(s[i])))
		}
	}

	if n := len(segs); n > 0 && segs[n-1].kind == segRecurse {
		return nil, parseErr("recursive descent without a selector")
	}
	return segs, nil
}

// parseBracket parses "[*]", "[3]", "[-1]", "['name']" or "[\"name\"]" and returns the bytes consumed
func parseBracket(s string) (segment, int, error) {
	if len(s) > 1 && (s[1] == '\'' || s[1] == '"') {
		q := s[1]
		var b strings.Builder
		for j := 2; j < len(s); j++ {
			c := s[j]
			if c == '\\' && j+1 < len(s) {
				j++
				b.WriteByte(s[j])
				continue
			}
			if c == q {
				if j+1 >= len(s) || s[j+1] != ']' {
					return segment{}, 0, parseErr("expected ] after quoted name")
				}
				return segment{kind: segField, name: b.String()}, j + 2, nil
			}
			b.WriteByte(c)
		}
		return segment{}, 0, parseErr("unterminated quoted name")
	}

	end := strings.IndexByte(s, ']')
	if end < 0 {
		return segment{}, 0, parseErr("unterminated bracket")
	}
	body := strings.TrimSpace(s[1:end])
	if body == "*" {
		return segment{kind: segWildcard}, end + 1, nil
	}
	n, err := strconv.Atoi(body)
	if err != nil {
		return segment{}, 0, parseErr("invalid index " + strconv.Quote(body))
	}
	return segment{kind: segIndex, index: n}, end + 1, nil
}
