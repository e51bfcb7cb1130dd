package media

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Saver writes debug copies of payloads under a base directory. A zero-value
// Saver (empty Dir) disables saving without erroring.
type Saver struct {
	Dir string
}

// Save writes data to a timestamped file and returns its path. Filenames
// follow timestamp_hash_snippet.ext, where the snippet is derived from the
// label (typically the spoken text or the original upload name).
func (s Saver) Save(data []byte, label, ext string) (string, error) {
	if s.Dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("media: create output dir: %w", err)
	}

	sum := md5.Sum([]byte(label))
	name := fmt.Sprintf("%s_%s_%s%s",
		time.Now().UTC().Format("20060102_150405"),
		hex.EncodeToString(sum[:])[:8],
		snippet(label),
		ext,
	)
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("media: write %s: %w", path, err)
	}
	return path, nil
}

// snippet reduces a label to a short filesystem-safe fragment.
func snippet(label string) string {
	if len(label) > 30 {
		label = label[:30]
	}
	var b strings.Builder
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
