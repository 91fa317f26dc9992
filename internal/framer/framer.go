// Package framer splits an engine's output stream into responses using
// sentinel characters that the engine prints in place of a prompt.
package framer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Framer reads responses from an engine's combined output stream. The prompt
// sentinel ends a response; the optional separator sentinel splits a response
// into segments. Neither may appear in ordinary engine output.
type Framer struct {
	r         *bufio.Reader
	prompt    rune
	separator rune
}

// New returns a Framer reading from r. A zero separator disables segment
// splitting.
func New(r io.Reader, prompt, separator rune) *Framer {
	return &Framer{
		r:         bufio.NewReader(r),
		prompt:    prompt,
		separator: separator,
	}
}

// ReadResponse reads up to and including the next prompt sentinel and returns
// the segments seen on the way, sentinels excluded. It returns io.EOF when the
// stream ends first; a partially read response is dropped.
func (f *Framer) ReadResponse() ([]string, error) {
	var segments []string
	var cur strings.Builder

	for {
		c, _, err := f.r.ReadRune()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read engine output: %w", err)
		}

		switch {
		case c == f.prompt:
			segments = append(segments, cur.String())
			// Most engines echo a line break right after the previous prompt.
			segments[0] = strings.TrimPrefix(segments[0], "\n")
			return segments, nil
		case f.separator != 0 && c == f.separator:
			segments = append(segments, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}
}
