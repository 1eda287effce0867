package analysis

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// DefaultBlockRunes bounds a single rendered block. Chat transports reject
// messages much longer than this.
const DefaultBlockRunes = 4000

// MarkdownMIME is the MIME type of rendered reports.
const MarkdownMIME = "text/markdown; charset=utf-8"

// QAEntry is one follow-up question and its answer.
type QAEntry struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	AskedAt  time.Time `json:"askedAt"`
}

// Section is one rendered pipeline step.
type Section struct {
	Step  string `json:"step"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Report is the deliverable assembled from an outcome and the Q&A list.
type Report struct {
	Subject     string    `json:"subject"`
	Topic       string    `json:"topic,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Sections    []Section `json:"sections"`
	QA          []QAEntry `json:"qa"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// NewReport builds a report from the successful steps of out and a copy of qa.
func NewReport(out *Outcome, topic string, qa []QAEntry, now time.Time) *Report {
	r := &Report{
		Subject:     out.Request.Subject,
		Topic:       topic,
		Summary:     out.Summary,
		GeneratedAt: now,
	}
	for _, step := range out.Succeeded() {
		r.Sections = append(r.Sections, Section{Step: step, Title: StepTitle(step), Body: out.Result[step]})
	}
	r.QA = append([]QAEntry(nil), qa...)
	return r
}

// units returns the header, every section, and every Q&A entry, unsplit.
func (r *Report) units() []string {
	header := fmt.Sprintf("# Analysis report: %s\n\nGenerated %s", r.Subject, r.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))
	if r.Summary != "" && r.Summary != SummaryUnavailable {
		header += "\n\n## Summary\n\n" + r.Summary
	}
	units := []string{header}
	for _, s := range r.Sections {
		units = append(units, fmt.Sprintf("## %s\n\n%s", s.Title, s.Body))
	}
	for i, qa := range r.QA {
		units = append(units, fmt.Sprintf("## Question %d\n\n**Q:** %s\n\n**A:** %s", i+1, qa.Question, qa.Answer))
	}
	return units
}

// Blocks renders the report as ordered chat-sized text blocks of at most
// maxRunes runes each. The header, every section, and every Q&A entry
// start a new block.
func (r *Report) Blocks(maxRunes int) []string {
	if maxRunes <= 0 {
		maxRunes = DefaultBlockRunes
	}
	var blocks []string
	for _, u := range r.units() {
		blocks = append(blocks, SplitText(u, maxRunes)...)
	}
	return blocks
}

// Markdown renders the whole report as one document. Section and answer
// bodies are copied verbatim, never split.
func (r *Report) Markdown() string {
	return strings.Join(r.units(), "\n\n") + "\n"
}

// Filename returns "<subject-slug>-YYYY-MM-DD.md".
func (r *Report) Filename() string {
	slug := slugify(r.Subject)
	if slug == "" {
		slug = "report"
	}
	return fmt.Sprintf("%s-%s.md", slug, r.GeneratedAt.Format("2006-01-02"))
}

// Artifact renders the report for delivery.
func (r *Report) Artifact() *Artifact {
	return &Artifact{
		Filename: r.Filename(),
		MIME:     MarkdownMIME,
		Data:     []byte(r.Markdown()),
	}
}

// Artifact is a rendered document ready to download or mail.
type Artifact struct {
	Filename string
	MIME     string
	Data     []byte
}

// SplitText splits s on line boundaries into chunks of at most max runes.
// Lines longer than max are split by rune count.
func SplitText(s string, max int) []string {
	if runeLen(s) <= max {
		return []string{s}
	}

	var out []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			out = append(out, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
			curLen = 0
		}
	}

	for _, line := range strings.SplitAfter(s, "\n") {
		n := runeLen(line)
		if n > max {
			flush()
			r := []rune(line)
			for len(r) > max {
				out = append(out, string(r[:max]))
				r = r[max:]
			}
			line = string(r)
			n = len(r)
		}
		if curLen+n > max {
			flush()
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return out
}

func runeLen(s string) int { return len([]rune(s)) }

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
