package syntax

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Pair is a block delimiter pair given as regular expressions, e.g. `\bif\b`
// and `\bfi\b`. Label names the pair in diagnostics.
type Pair struct {
	Open  string
	Close string
	Label string
}

// Rules describes the lexical grammar of a dialect with nested blocks and
// explicit statement separators.
type Rules struct {
	// Separator matches a statement separator. Alternatives are tried in
	// order, so list longer separators first (`;;|;`).
	Separator string
	// Strings lists string delimiters. A string is closed only by the same
	// delimiter that opened it.
	Strings []string
	// Escape makes the following character literal inside a string.
	Escape       string
	CommentStart string
	CommentEnd   string
	Blocks       []Pair
	// AcceptTrailing accepts text after the last separator as an implicit
	// final statement instead of reporting a missing terminator.
	AcceptTrailing bool
}

type tokenKind int

const (
	tokSeparator tokenKind = iota
	tokString
	tokEscape
	tokCommentStart
	tokCommentEnd
	tokBlockStart
	tokBlockEnd
)

type token struct {
	kind tokenKind
	sub  int
}

type rule struct {
	re   *regexp.Regexp
	kind tokenKind
	sub  int
}

type mode int

const (
	modeNormal mode = iota
	modeComment
	modeString
	modeEscaped
)

// topLevel marks the bottom of the block stack.
const topLevel = -1

// Grammar is a compiled Rules value. It is safe for concurrent use.
type Grammar struct {
	rules          []rule
	labels         []string
	acceptTrailing bool
	// bare matches a statement made of a separator alone.
	bare *regexp.Regexp
}

// Compile compiles r into a Grammar.
func Compile(r Rules) (*Grammar, error) {
	g := &Grammar{acceptTrailing: r.AcceptTrailing}

	add := func(pattern string, kind tokenKind, sub int) error {
		if pattern == "" {
			return nil
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("compile %q: %w", pattern, err)
		}
		g.rules = append(g.rules, rule{re: re, kind: kind, sub: sub})
		return nil
	}

	if err := add(r.Separator, tokSeparator, 0); err != nil {
		return nil, err
	}
	if r.Separator != "" {
		g.bare = regexp.MustCompile(`^(?:` + r.Separator + `)$`)
	}
	for i, s := range r.Strings {
		if err := add(s, tokString, i); err != nil {
			return nil, err
		}
	}
	if err := add(r.Escape, tokEscape, 0); err != nil {
		return nil, err
	}
	if err := add(r.CommentStart, tokCommentStart, 0); err != nil {
		return nil, err
	}
	if err := add(r.CommentEnd, tokCommentEnd, 0); err != nil {
		return nil, err
	}
	for i, p := range r.Blocks {
		if err := add(p.Open, tokBlockStart, i); err != nil {
			return nil, err
		}
		if err := add(p.Close, tokBlockEnd, i); err != nil {
			return nil, err
		}
		label := p.Label
		if label == "" {
			label = p.Open + "/" + p.Close
		}
		g.labels = append(g.labels, label)
	}
	return g, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(r Rules) *Grammar {
	g, err := Compile(r)
	if err != nil {
		panic(err)
	}
	return g
}

// tokenize returns the token events of code keyed by the byte offset of the
// last byte of each match. Events at one offset keep rule order.
func (g *Grammar) tokenize(code string) map[int][]token {
	events := make(map[int][]token)
	for _, r := range g.rules {
		for _, loc := range r.re.FindAllStringIndex(code, -1) {
			if loc[1] == loc[0] {
				continue
			}
			at := loc[1] - 1
			events[at] = append(events[at], token{kind: r.kind, sub: r.sub})
		}
	}
	return events
}

// Classify walks code once, tracking comment and string modes and a stack of
// open blocks. A block end that does not match the innermost open block
// stops the scan with an invalid verdict.
func (g *Grammar) Classify(code string) Verdict {
	events := g.tokenize(code)

	m := modeNormal
	stack := []int{topLevel}
	stringKind := 0
	var statements []string
	start := 0
	pending := false
	content := false

	for i := 0; i < len(code); {
		_, size := utf8.DecodeRuneInString(code[i:])
		if m == modeEscaped {
			m = modeString
			i += size
			continue
		}

		toks := events[i+size-1]
		if m == modeNormal && len(toks) == 0 && !isSpace(code[i]) {
			pending = true
		}

	scan:
		for _, tok := range toks {
			switch m {
			case modeComment:
				if tok.kind == tokCommentEnd {
					m = modeNormal
				}
			case modeString:
				switch {
				case tok.kind == tokEscape:
					m = modeEscaped
					break scan
				case tok.kind == tokString && tok.sub == stringKind:
					m = modeNormal
				}
			case modeNormal:
				switch tok.kind {
				case tokCommentStart:
					m = modeComment
				case tokString:
					stringKind = tok.sub
					m = modeString
					pending = true
				case tokBlockStart:
					stack = append(stack, tok.sub)
					pending = true
				case tokBlockEnd:
					if stack[len(stack)-1] != tok.sub {
						return Verdict{
							Status:  Invalid,
							Code:    code,
							Message: fmt.Sprintf("unbalanced delimiters: unexpected %s at offset %d", g.labels[tok.sub], i),
						}
					}
					stack = stack[:len(stack)-1]
					pending = true
				case tokSeparator:
					if len(stack) == 1 {
						stmt := strings.TrimSpace(code[start:i+size])
						if !g.bare.MatchString(stmt) {
							content = true
						}
						statements = append(statements, stmt)
						start = i + size
						pending = false
					}
				}
			}
		}
		i += size
	}

	if rest := strings.TrimSpace(code[start:]); rest != "" {
		statements = append(statements, rest)
		content = content || pending
	}
	v := Verdict{Code: strings.TrimSpace(code), Statements: statements}

	switch {
	case len(stack) > 1:
		open := make([]string, 0, len(stack)-1)
		for _, b := range stack[1:] {
			open = append(open, g.labels[b])
		}
		v.Status = Incomplete
		v.Message = "unbalanced delimiters: unclosed " + strings.Join(open, ", ")
	case m == modeString || m == modeEscaped:
		v.Status = Invalid
		v.Statements = nil
		v.Message = "string must not span input boundary"
	case pending && !g.acceptTrailing:
		v.Status = Incomplete
		v.Message = "missing terminator"
	case !content && !g.acceptTrailing:
		v.Status = Incomplete
		v.Message = "empty statement"
	default:
		v.Status = Complete
	}
	return v
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

// GAP is the grammar of the GAP system: statements end in ';' or ';;', strings
// use double or single quotes, '#' starts a line comment, and blocks nest as
// brackets and keyword pairs.
var GAP = MustCompile(Rules{
	Separator:    `;;|;`,
	Strings:      []string{`"`, `'`},
	Escape:       `\\`,
	CommentStart: `#`,
	CommentEnd:   `\n`,
	Blocks: []Pair{
		{Open: `\{`, Close: `\}`, Label: "{...}"},
		{Open: `\[`, Close: `\]`, Label: "[...]"},
		{Open: `\(`, Close: `\)`, Label: "(...)"},
		{Open: `\bif\b`, Close: `\bfi\b`, Label: "if...fi"},
		{Open: `\bdo\b`, Close: `\bod\b`, Label: "do...od"},
		{Open: `\bfunction\b`, Close: `\bend\b`, Label: "function...end"},
		{Open: `\brepeat\b`, Close: `\buntil\b`, Label: "repeat...until"},
	},
})
