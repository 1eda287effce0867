package analysis

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Step names, in dependency order.
const (
	StepMarket  = "market"
	StepRivals  = "rivals"
	StepSynergy = "synergy"
)

// Steps is the fixed execution order. Later steps see earlier findings.
var Steps = []string{StepMarket, StepRivals, StepSynergy}

var stepTitles = map[string]string{
	StepMarket:  "Market overview",
	StepRivals:  "Competitors",
	StepSynergy: "Synergy assessment",
}

// StepTitle returns the section heading for a step.
func StepTitle(step string) string {
	if t, ok := stepTitles[step]; ok {
		return t
	}
	return step
}

// UnknownSubject is used when the request names no subject.
const UnknownSubject = "unknown subject"

// Request is the parsed intent of a free-text analysis query.
type Request struct {
	Subject string          `json:"subject"`
	Steps   map[string]bool `json:"steps"`
}

// Enabled reports whether step should run.
func (r Request) Enabled(step string) bool { return r.Steps[step] }

// EnabledSteps returns the enabled steps in execution order.
func (r Request) EnabledSteps() []string {
	var out []string
	for _, s := range Steps {
		if r.Enabled(s) {
			out = append(out, s)
		}
	}
	return out
}

// FallbackRequest is used when the parse call fails or returns garbage.
func FallbackRequest() Request {
	return Request{Subject: UnknownSubject, Steps: allSteps()}
}

func allSteps() map[string]bool {
	m := make(map[string]bool, len(Steps))
	for _, s := range Steps {
		m[s] = true
	}
	return m
}

// ParseFailure reports model output that could not be read as a request.
// It is always recovered with FallbackRequest.
type ParseFailure struct {
	Raw    string
	Reason string
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("analysis: cannot parse request: %s", e.Reason)
}

// ParseRequest reads the model's reply to the parse prompt. The reply may
// wrap the JSON object in prose or code fences; the text between the first
// '{' and the last '}' is used. A reply that enables no step enables all.
func ParseRequest(raw string) (Request, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return FallbackRequest(), &ParseFailure{Raw: raw, Reason: "no JSON object"}
	}
	doc := raw[start : end+1]
	if !gjson.Valid(doc) {
		return FallbackRequest(), &ParseFailure{Raw: raw, Reason: "invalid JSON"}
	}

	res := gjson.Parse(doc)
	subject := strings.TrimSpace(res.Get("subject").String())
	if subject == "" {
		subject = strings.TrimSpace(res.Get("company").String())
	}
	if subject == "" {
		subject = UnknownSubject
	}

	req := Request{Subject: subject, Steps: make(map[string]bool, len(Steps))}
	enabled := false
	for _, s := range Steps {
		if flagSet(res.Get(s)) {
			req.Steps[s] = true
			enabled = true
		}
	}
	if !enabled {
		req.Steps = allSteps()
	}
	return req, nil
}

func flagSet(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return v.Num != 0
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(v.Str)) {
		case "1", "true", "yes", "y":
			return true
		}
	}
	return false
}
