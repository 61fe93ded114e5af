package annotate

import (
	"context"
	"strings"

	"github.com/coldwine/intelwatch/pkg/intel"
)

// URLPass links http(s) URLs. A URL runs to the next space or the end
// of the run.
type URLPass struct{}

func (URLPass) Name() string { return "url" }

// Apply makes at most one substitution and reports whether it did; the
// runner's rescan picks up further URLs.
func (URLPass) Apply(_ context.Context, m *intel.Message) bool {
	body := m.Body()
	for _, idx := range body.Runs() {
		text, ok := body.Run(idx)
		if !ok {
			continue
		}
		start := urlStart(text)
		if start < 0 {
			continue
		}
		end := strings.IndexByte(text[start:], ' ')
		if end < 0 {
			end = len(text)
		} else {
			end += start
		}
		url := text[start:end]
		if err := body.Substitute(idx, start, end, intel.Link{Target: "link/" + url}); err != nil {
			return false
		}
		return true
	}
	return false
}

func urlStart(text string) int {
	https := strings.Index(text, "https://")
	http := strings.Index(text, "http://")
	switch {
	case https < 0:
		return http
	case http < 0:
		return https
	case http < https:
		return http
	default:
		return https
	}
}
