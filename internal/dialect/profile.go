// Package dialect describes how to launch and converse with each supported
// mathematics engine.
package dialect

import (
	"errors"
	"fmt"
	"strings"

	"cas-bridge/internal/syntax"
)

// PromptChar is the sentinel every builtin profile makes its engine print
// in place of a prompt.
const PromptChar = '→'

var (
	ErrUnknownDialect = errors.New("unknown dialect")
	ErrInvalidProfile = errors.New("invalid profile")
)

// FormatFunc builds the text written to the engine's stdin for one
// submission. scratchPath is empty unless the profile uses scratch files.
type FormatFunc func(seq int, v syntax.Verdict, scratchPath string) string

// FilterFunc post-processes the first segment of a response.
type FilterFunc func(seq int, output, scratchPath string) string

// Profile is the immutable configuration of one engine. Profiles are shared
// between sessions and must not be modified after construction.
type Profile struct {
	Name        string
	DisplayName string
	Command     string
	Args        []string
	// Env is appended to the bridge's own environment.
	Env []string

	// Prompt ends every response. The engine must print it once after
	// start-up and once after each command.
	Prompt rune
	// Separator splits a response into segments. Zero disables splitting.
	Separator rune
	// PromptCommand is the engine statement that prints Prompt.
	PromptCommand string
	InitialText   string

	UseScratch bool
	ScratchExt string

	Classifier syntax.Classifier
	Format     FormatFunc
	Filter     FilterFunc
}

// Validate reports whether p can drive a session.
func (p *Profile) Validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: missing name", ErrInvalidProfile)
	case p.Command == "":
		return fmt.Errorf("%w: %s: missing command", ErrInvalidProfile, p.Name)
	case p.Prompt == 0:
		return fmt.Errorf("%w: %s: missing prompt sentinel", ErrInvalidProfile, p.Name)
	case p.Separator == p.Prompt:
		return fmt.Errorf("%w: %s: separator equals prompt sentinel", ErrInvalidProfile, p.Name)
	case p.Classifier == nil:
		return fmt.Errorf("%w: %s: missing classifier", ErrInvalidProfile, p.Name)
	case p.Format == nil:
		return fmt.Errorf("%w: %s: missing command format", ErrInvalidProfile, p.Name)
	}
	return nil
}

// Title returns the display name, falling back to Name.
func (p *Profile) Title() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

// CellLabel replaces the scratch file path in output with a label naming
// the cell, so error messages point at the notebook rather than /tmp.
func CellLabel(seq int, output, scratchPath string) string {
	if scratchPath == "" {
		return output
	}
	return strings.ReplaceAll(output, scratchPath, fmt.Sprintf("cell %d", seq))
}
