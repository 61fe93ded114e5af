// Package chat ingests EVE chat logs: per-file workers tail the logs,
// classify new lines into intel messages, and a supervisor owns the
// worker pool.
package chat

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// readLines reads a whole chat log and returns its lines. EVE writes
// logs as UTF-16 little-endian with a BOM; plain UTF-8 files (tests,
// hand-made fixtures) are accepted too.
func readLines(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text, err := decodeLog(raw)
	if err != nil {
		return nil, fmt.Errorf("chat: decode %s: %w", path, err)
	}

	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	// A trailing newline yields one empty phantom line; drop it.
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines, nil
}

func decodeLog(raw []byte) (string, error) {
	if len(raw) >= 2 && raw[0] == 0xFF && raw[1] == 0xFE {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, raw)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	return string(raw), nil
}
