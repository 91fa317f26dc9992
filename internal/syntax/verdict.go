// Package syntax decides whether a code fragment is ready to be sent to a
// mathematics engine, and splits it into top-level statements where the
// engine needs them one at a time.
package syntax

import "strings"

// Status is the outcome of classifying a fragment.
type Status string

const (
	Complete   Status = "complete"
	Incomplete Status = "incomplete"
	Invalid    Status = "invalid"
)

// Verdict is the result of classifying one fragment.
type Verdict struct {
	Status Status `json:"status"`
	// Code is the fragment to submit, possibly trimmed.
	Code string `json:"code"`
	// Statements holds the top-level statements in source order. A trailing
	// unterminated statement is included for information only; it does not
	// make an incomplete verdict executable.
	Statements []string `json:"statements,omitempty"`
	Message    string   `json:"message,omitempty"`
}

// Classifier classifies code fragments. Implementations must be pure: the
// same input always yields the same verdict and no state is kept between
// calls, so one value can be shared by every session.
type Classifier interface {
	Classify(code string) Verdict
}

// ClassifierFunc adapts an ordinary function to the Classifier interface.
type ClassifierFunc func(code string) Verdict

// Classify calls f(code).
func (f ClassifierFunc) Classify(code string) Verdict {
	return f(code)
}

// AcceptAll treats every fragment as a single complete statement. It is used
// by engines that have no statement grammar worth checking.
var AcceptAll Classifier = ClassifierFunc(func(code string) Verdict {
	code = strings.TrimSpace(code)
	v := Verdict{Status: Complete, Code: code}
	if code != "" {
		v.Statements = []string{code}
	}
	return v
})

// classifiers maps the names usable in profile files to classifiers.
var classifiers = map[string]Classifier{
	"accept":   AcceptAll,
	"gap":      GAP,
	"singular": Singular,
	"asir":     Asir,
}

// Lookup returns the named classifier.
func Lookup(name string) (Classifier, bool) {
	c, ok := classifiers[name]
	return c, ok
}

// Names returns the classifier names accepted by Lookup.
func Names() []string {
	return []string{"accept", "asir", "gap", "singular"}
}
