package parse

import (
	"strings"

	"github.com/coldwine/intelwatch/pkg/intel"
)

// Exact phrases that count as an all-clear on their own.
var clearPhrases = map[string]struct{}{
	"BLUE":       {},
	"BLUES ONLY": {},
	"ONLY BLUE":  {},
	"STILL BLUE": {},
	"ALL BLUES":  {},
}

// StatusForRuns classifies the literal text runs of a message. The
// first run (in document order) that satisfies any rule decides; with
// no match anywhere the text is treated as an alarm report.
//
// Evaluation order matters: "clear?" is a request, not a clear.
func StatusForRuns(runs []string) intel.Status {
	for _, run := range runs {
		if st, ok := statusForRun(run); ok {
			return st
		}
	}
	return intel.StatusAlarm
}

// StatusFor classifies a single flat text, a convenience for callers
// that have not built a rich-text body yet.
func StatusFor(text string) intel.Status {
	return StatusForRuns([]string{text})
}

func statusForRun(run string) (intel.Status, bool) {
	trimmed := strings.TrimSpace(run)
	upper := strings.ToUpper(trimmed)
	question := strings.HasSuffix(trimmed, "?")

	words := strings.Fields(strings.ToUpper(Strip(trimmed)))
	var clear, status bool
	for _, w := range words {
		switch w {
		case "CLEAR", "CLR":
			clear = true
		case "STAT", "STATUS":
			status = true
		}
	}

	switch {
	case clear && !question:
		return intel.StatusClear, true
	case status || (clear && question):
		return intel.StatusRequest, true
	case strings.Contains(trimmed, "?"):
		return intel.StatusRequest, true
	}

	if _, ok := clearPhrases[upper]; ok {
		return intel.StatusClear, true
	}
	return intel.StatusUnknown, false
}
