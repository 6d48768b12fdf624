package executor

import "strings"

const limitationsSection = "CHALLENGES AND LIMITATIONS\n" +
	"1. Operational overhead: A durable execution cluster is more infrastructure to run and upgrade\n" +
	"2. Learning curve: Deterministic workflow code constrains how orchestration logic is written\n" +
	"3. Latency: Persisted state transitions add overhead that real-time inference paths may not tolerate"

// directive is a recognised feedback request. Matching is a case-insensitive substring test.
type directive struct {
	match    string
	change   string
	question string
	section  string // Appended to a report when the feedback is applied
}

var directives = []directive{
	{
		match:   "limitations",
		change:  "Add a section on challenges and limitations",
		section: limitationsSection,
	},
	{
		match:    "implementation examples",
		change:   "Add specific implementation examples to the recommendations section",
		question: "Which workloads should the examples be drawn from?",
	},
	{
		match:    "timeline",
		change:   "Rework the timeline",
		question: "Which phase should absorb the extra time?",
	},
}

func matchDirectives(feedback string) []directive {
	lower := strings.ToLower(feedback)
	var out []directive
	for _, d := range directives {
		if strings.Contains(lower, d.match) {
			out = append(out, d)
		}
	}
	return out
}

// applyFeedback appends the sections requested by feedback to doc.
func applyFeedback(doc, feedback string) string {
	for _, d := range matchDirectives(feedback) {
		if d.section != "" {
			doc += "\n\n" + d.section
		}
	}
	return doc
}
