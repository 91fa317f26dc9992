package dialect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"cas-bridge/internal/syntax"
)

// Builtin returns the profiles compiled into the bridge.
func Builtin() []*Profile {
	return []*Profile{
		BC(),
		GAP(),
		Singular(),
		Asir(),
		Macaulay2(),
		Mathematica(),
	}
}

// inline formats a command that sends the code itself followed by the
// prompt command.
func inline(promptCmd string) FormatFunc {
	return func(_ int, v syntax.Verdict, _ string) string {
		return v.Code + "\n" + promptCmd + "\n"
	}
}

// BC drives GNU bc. It is also the reference profile for new engines.
func BC() *Profile {
	promptCmd := fmt.Sprintf("%q", string(PromptChar))
	return &Profile{
		Name:          "bc",
		DisplayName:   "bc",
		Command:       "bc",
		Args:          []string{"--quiet"},
		Prompt:        PromptChar,
		PromptCommand: promptCmd,
		InitialText:   promptCmd + "\n",
		Classifier:    syntax.AcceptAll,
		Format:        inline(promptCmd),
		Filter:        CellLabel,
	}
}

// GAP drives the GAP system, sending classified statements inline.
func GAP() *Profile {
	promptCmd := fmt.Sprintf("Print(%q);", string(PromptChar))
	return &Profile{
		Name:          "gap",
		DisplayName:   "GAP",
		Command:       "gap",
		Args:          []string{"-q", "-n", "-T"},
		Prompt:        PromptChar,
		PromptCommand: promptCmd,
		InitialText:   promptCmd + "\n",
		Classifier:    syntax.GAP,
		Format: func(_ int, v syntax.Verdict, _ string) string {
			if len(v.Statements) == 0 {
				return promptCmd + "\n"
			}
			return strings.Join(v.Statements, "\n") + "\n" + promptCmd + "\n"
		},
		Filter: CellLabel,
	}
}

// Singular drives Singular through a scratch file read with `<`.
func Singular() *Profile {
	promptCmd := fmt.Sprintf("print(%q);", string(PromptChar))
	return &Profile{
		Name:          "singular",
		DisplayName:   "Singular",
		Command:       "Singular",
		Args:          []string{"--quiet", "--no-tty", "-c", "option(noprompt);" + promptCmd},
		Prompt:        PromptChar,
		PromptCommand: promptCmd,
		UseScratch:    true,
		ScratchExt:    ".sing",
		Classifier:    syntax.Singular,
		Format: func(_ int, _ syntax.Verdict, path string) string {
			return fmt.Sprintf("< %q;\n%s\n", path, promptCmd)
		},
		Filter: CellLabel,
	}
}

// Asir drives Risa/Asir through a scratch file read with load().
func Asir() *Profile {
	promptCmd := fmt.Sprintf("print(%q,2)$", string(PromptChar))
	return &Profile{
		Name:          "asir",
		DisplayName:   "Risa/Asir",
		Command:       "asir",
		Args:          []string{"-quiet"},
		Prompt:        PromptChar,
		PromptCommand: promptCmd,
		InitialText:   promptCmd + "\n",
		UseScratch:    true,
		ScratchExt:    ".rr",
		Classifier:    syntax.Asir,
		Format: func(_ int, _ syntax.Verdict, path string) string {
			return fmt.Sprintf("load(%q)$\n%s\n", path, promptCmd)
		},
		Filter: CellLabel,
	}
}

// Macaulay2 drives M2, passing each cell to `value` as a string literal.
func Macaulay2() *Profile {
	promptCmd := fmt.Sprintf("<< utf8 %d << flush;", PromptChar)
	return &Profile{
		Name:        "macaulay2",
		DisplayName: "Macaulay2",
		Command:     "M2",
		Args: []string{
			"--silent", "--no-prompts", "--no-debug",
			"-e", "clearEcho stdio",
			"-e", "Thing#{Standard,Print} = x -> ( << x << endl )",
			"-e", promptCmd,
		},
		Prompt:        PromptChar,
		PromptCommand: promptCmd,
		Classifier:    syntax.AcceptAll,
		Format: func(_ int, v syntax.Verdict, _ string) string {
			term := ""
			if strings.HasSuffix(v.Code, ";") {
				term = ";"
			}
			return fmt.Sprintf("value %s%s\n%s\n", m2String(v.Code), term, promptCmd)
		},
		Filter: m2Filter,
	}
}

// m2String quotes code as a string literal M2 accepts.
func m2String(code string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(code); err != nil {
		return fmt.Sprintf("%q", code)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

var m2OutputLabel = regexp.MustCompile(`^\s*o\d*\s*:\s*`)

// m2Filter drops leading blank lines and the "oN : Type" label M2 prints
// after a blank line at the end of a result.
func m2Filter(_ int, output, _ string) string {
	lines := strings.Split(strings.TrimSuffix(output, "\n"), "\n")
	if n := len(lines); n > 2 && lines[n-2] == "" {
		lines[n-1] = m2OutputLabel.ReplaceAllString(lines[n-1], "")
	}
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}

// mathematicaLoop turns the kernel into a loop that reads a file name per
// line, evaluates the file with Get and prints the result. Graphics are
// exported as a PNG bundle in a separate segment.
const mathematicaLoop = `SetOptions[ $Output[[1]],
    PageWidth -> Infinity,
    PageHeight -> Infinity
];
bridgeRenderGraphics[ x0_ ] := Module[ {x=x0},
    x = ExportString[x, "PNG"];
    x = ExportString[x, "Base64"];
    x = StringReplace[x, "\n" -> ""];
    x = "{\"text/plain\": \"-Graphics-\", \"image/png\": \"" <> x <> "\"}";
    x = "\:0001" <> x;
    x
];
While[True,
    Print["\:2192"];
    bridgeInput = InputString[""];
    bridgeInput = Get[bridgeInput];
    If[ bridgeInput =!= Null,
        If[ Head[bridgeInput] === Graphics,
            bridgeInput = bridgeRenderGraphics[bridgeInput];
        ]
        If[ Head[bridgeInput] === Graphics3D,
            bridgeInput = bridgeRenderGraphics[bridgeInput];
        ]
        Print[bridgeInput]
    ]
]
`

// Mathematica drives the Wolfram kernel through the loop above.
func Mathematica() *Profile {
	return &Profile{
		Name:        "mathematica",
		DisplayName: "Mathematica",
		Command:     "mathematica",
		Prompt:      PromptChar,
		Separator:   '\u0001',
		InitialText: mathematicaLoop,
		UseScratch:  true,
		ScratchExt:  ".m",
		Classifier:  syntax.AcceptAll,
		Format: func(_ int, _ syntax.Verdict, path string) string {
			return path + "\n"
		},
		Filter: CellLabel,
	}
}
