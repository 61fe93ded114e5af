package chat

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// LoadOffsets reads the consumed-line state file written on shutdown.
// A missing file is an empty state, not an error.
func LoadOffsets(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]int), nil
		}
		return nil, err
	}
	parsed := gjson.ParseBytes(data)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("chat: offsets file %s is not a JSON object", path)
	}

	offsets := make(map[string]int)
	parsed.ForEach(func(key, value gjson.Result) bool {
		offsets[key.String()] = int(value.Int())
		return true
	})
	return offsets, nil
}

// SaveOffsets writes offset state to disk for replay avoidance across
// restarts.
func SaveOffsets(path string, offsets map[string]int) error {
	paths := make([]string, 0, len(offsets))
	for p := range offsets {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	doc := []byte("{}")
	var err error
	for _, p := range paths {
		// Log paths contain dots and wildcards; escape them so sjson
		// treats each path as one flat key.
		doc, err = sjson.SetBytesOptions(doc, escapeKey(p), offsets[p], &sjson.Options{ReplaceInPlace: true})
		if err != nil {
			return fmt.Errorf("chat: encode offsets: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, doc, 0o644)
}

var keyEscaper = strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)

func escapeKey(p string) string {
	return keyEscaper.Replace(p)
}
