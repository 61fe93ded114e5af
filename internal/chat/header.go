package chat

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/coldwine/intelwatch/internal/parse"
)

const (
	// headerLines is how deep into a fresh log the header block may
	// reach.
	headerLines = 13

	// headerOffset is the consumed-line offset set once the header has
	// been read, just past the header block.
	headerOffset = 12

	// timestampSuffixLen is the fixed-length creation-timestamp suffix
	// EVE appends to log filenames.
	timestampSuffixLen = 20
)

// localNames is the localized set of "Local" channel names. This list
// is a constant of the log format, not configuration.
var localNames = map[string]struct{}{
	"Local":     {},
	"Lokal":     {},
	"Локальный": {},
}

// IsLocalRoom reports whether the room is a Local channel in any
// supported client language.
func IsLocalRoom(room string) bool {
	_, ok := localNames[room]
	return ok
}

// RoomName derives the chat room from a log file path by stripping the
// extension and the trailing timestamp suffix.
func RoomName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if len(base) > timestampSuffixLen {
		return base[:len(base)-timestampSuffixLen]
	}
	return base
}

// header is the per-file metadata block EVE writes before any chat.
type header struct {
	character string
	session   time.Time
}

// scanHeader looks for the Listener and Session started fields in the
// first lines of a log. Both must be present for the file to be a
// usable chat log.
func scanHeader(lines []string) (header, bool) {
	var h header
	var haveSession bool

	limit := len(lines)
	if limit > headerLines {
		limit = headerLines
	}
	for _, line := range lines[:limit] {
		line = strings.TrimSpace(line)
		if value, ok := headerField(line, "Listener:"); ok {
			h.character = value
			continue
		}
		if value, ok := headerField(line, "Session started:"); ok {
			session, err := time.ParseInLocation(parse.TimeLayout, value, time.UTC)
			if err != nil {
				continue
			}
			h.session = session
			haveSession = true
		}
	}

	if h.character == "" || !haveSession {
		return header{}, false
	}
	return h, true
}

func headerField(line, key string) (string, bool) {
	if !strings.HasPrefix(line, key) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, key)), true
}
