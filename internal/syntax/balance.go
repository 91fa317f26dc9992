package syntax

import (
	"fmt"
	"strings"
	"unicode"
)

// Balance classifies dialects that have no block keywords: it checks that
// (), [] and {} nest, skips strings and comments, and requires the fragment
// to end in a terminator character.
type Balance struct {
	Quotes            string
	Escape            byte
	LineComment       string
	BlockCommentStart string
	BlockCommentEnd   string
	// Terminators lists the characters that may end a fragment.
	Terminators string
}

var closers = map[byte]byte{')': '(', ']': '[', '}': '{'}

// Classify implements Classifier.
func (b *Balance) Classify(code string) Verdict {
	var (
		stack        []byte
		inString     bool
		quote        byte
		escaped      bool
		lineComment  bool
		blockComment bool
		// last and prev are the offsets of the last two significant bytes.
		last = -1
		prev = -1
	)
	mark := func(i int) {
		prev, last = last, i
	}

	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case inString:
			mark(i)
			switch {
			case escaped:
				escaped = false
			case b.Escape != 0 && c == b.Escape:
				escaped = true
			case c == quote:
				inString = false
			}

		case lineComment:
			if c == '\n' {
				lineComment = false
			}

		case blockComment:
			if strings.HasPrefix(code[i:], b.BlockCommentEnd) {
				blockComment = false
				i += len(b.BlockCommentEnd) - 1
			}

		case b.LineComment != "" && strings.HasPrefix(code[i:], b.LineComment):
			lineComment = true
			i += len(b.LineComment) - 1

		case b.BlockCommentStart != "" && strings.HasPrefix(code[i:], b.BlockCommentStart):
			blockComment = true
			i += len(b.BlockCommentStart) - 1

		case strings.IndexByte(b.Quotes, c) >= 0:
			mark(i)
			inString = true
			quote = c

		case c == '(' || c == '[' || c == '{':
			mark(i)
			stack = append(stack, c)

		case closers[c] != 0:
			if len(stack) == 0 || stack[len(stack)-1] != closers[c] {
				return Verdict{
					Status:  Invalid,
					Code:    code,
					Message: fmt.Sprintf("unbalanced expression: unexpected %q at offset %d", c, i),
				}
			}
			mark(i)
			stack = stack[:len(stack)-1]

		case !isSpace(c):
			mark(i)
		}
	}

	trimmed := strings.TrimRightFunc(code, unicode.IsSpace)
	v := Verdict{Code: trimmed}
	if trimmed != "" {
		v.Statements = []string{trimmed}
	}

	switch {
	case inString || blockComment || len(stack) > 0:
		v.Status = Incomplete
		v.Message = "unbalanced expression"
	case last < 0 || strings.IndexByte(b.Terminators, code[last]) < 0:
		v.Status = Incomplete
		v.Message = fmt.Sprintf("missing terminator (one of %q)", b.Terminators)
	case prev < 0:
		v.Status = Incomplete
		v.Message = "empty statement"
	default:
		v.Status = Complete
	}
	return v
}

// Singular is the classifier for the Singular system: C-style comments and
// strings, statements ending in ';'.
var Singular Classifier = &Balance{
	Quotes:            `"'`,
	Escape:            '\\',
	LineComment:       "//",
	BlockCommentStart: "/*",
	BlockCommentEnd:   "*/",
	Terminators:       ";",
}

// Asir is the classifier for Risa/Asir, where '$' ends a statement without
// printing its value.
var Asir Classifier = &Balance{
	Quotes:            `"'`,
	Escape:            '\\',
	BlockCommentStart: "/*",
	BlockCommentEnd:   "*/",
	Terminators:       ";$",
}
