package dialect

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"cas-bridge/internal/syntax"
)

// FileProfile is the JSON form of a profile in a profiles file. Template may
// use the placeholders {code}, {file}, {seq} and {prompt}, where {prompt} is
// PromptCommand. InitialText may use {prompt} and {sentinel}.
type FileProfile struct {
	Name          string   `json:"name"`
	DisplayName   string   `json:"displayName"`
	Command       string   `json:"command"`
	Args          []string `json:"args"`
	Env           []string `json:"env"`
	Prompt        string   `json:"prompt"`
	Separator     string   `json:"separator"`
	PromptCommand string   `json:"promptCommand"`
	InitialText   string   `json:"initialText"`
	Scratch       bool     `json:"scratch"`
	ScratchExt    string   `json:"scratchExt"`
	Classifier    string   `json:"classifier"`
	Template      string   `json:"template"`
	LabelScratch  *bool    `json:"labelScratch"`
}

// LoadFile reads a JSON array of profiles.
func LoadFile(path string) ([]*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a JSON array of profiles.
func Parse(data []byte) ([]*Profile, error) {
	var raw []FileProfile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}

	profiles := make([]*Profile, 0, len(raw))
	seen := make(map[string]bool)
	for i, fp := range raw {
		p, err := fp.Profile()
		if err != nil {
			return nil, fmt.Errorf("profile %d: %w", i, err)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidProfile, p.Name)
		}
		seen[p.Name] = true
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// Profile converts fp into a validated Profile.
func (fp FileProfile) Profile() (*Profile, error) {
	prompt, err := sentinel(fp.Prompt, PromptChar)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: prompt: %v", ErrInvalidProfile, fp.Name, err)
	}
	sep, err := sentinel(fp.Separator, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: separator: %v", ErrInvalidProfile, fp.Name, err)
	}

	kind := fp.Classifier
	if kind == "" {
		kind = "accept"
	}
	classifier, ok := syntax.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s: unknown classifier %q (want one of %s)",
			ErrInvalidProfile, fp.Name, kind, strings.Join(syntax.Names(), ", "))
	}

	if fp.Template == "" {
		return nil, fmt.Errorf("%w: %s: missing template", ErrInvalidProfile, fp.Name)
	}
	if strings.Contains(fp.Template, "{file}") && !fp.Scratch {
		return nil, fmt.Errorf("%w: %s: template uses {file} without scratch", ErrInvalidProfile, fp.Name)
	}

	promptStr := string(prompt)
	template := fp.Template
	promptCmd := fp.PromptCommand
	p := &Profile{
		Name:          fp.Name,
		DisplayName:   fp.DisplayName,
		Command:       fp.Command,
		Args:          fp.Args,
		Env:           fp.Env,
		Prompt:        prompt,
		Separator:     sep,
		PromptCommand: promptCmd,
		InitialText:   strings.NewReplacer("{prompt}", promptCmd, "{sentinel}", promptStr).Replace(fp.InitialText),
		UseScratch:    fp.Scratch,
		ScratchExt:    fp.ScratchExt,
		Classifier:    classifier,
		Format: func(seq int, v syntax.Verdict, path string) string {
			return strings.NewReplacer(
				"{code}", v.Code,
				"{file}", path,
				"{seq}", strconv.Itoa(seq),
				"{prompt}", promptCmd,
			).Replace(template)
		},
	}
	if fp.LabelScratch == nil || *fp.LabelScratch {
		p.Filter = CellLabel
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// sentinel decodes a single-character sentinel, returning def when s is empty.
func sentinel(s string, def rune) (rune, error) {
	if s == "" {
		return def, nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return 0, fmt.Errorf("%q is not a single character", s)
	}
	return r, nil
}
