package recognizer

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ExpectedKeys is the size of the table the bundled CRNN model was trained
// with, blank slot included.
const ExpectedKeys = 5531

// Keys maps recognition class indexes to text. Index 0 is the CTC blank and
// is never emitted.
type Keys []string

// LoadKeys reads one key per line. Lines are kept verbatim apart from a
// trailing carriage return and a leading byte order mark, and are normalized
// to NFC. Empty lines are kept so that indexes stay aligned with the model.
func LoadKeys(path string) (Keys, error) {
	if path == "" {
		return nil, errors.New("keys path cannot be empty")
	}
	f, err := os.Open(path) //nolint:gosec // G304: user-provided keys file
	if err != nil {
		return nil, fmt.Errorf("failed to open keys: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("Error closing keys file", "path", path, "error", err)
		}
	}()

	keys := make(Keys, 0, ExpectedKeys)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if len(keys) == 0 {
			line = strings.TrimPrefix(line, "\uFEFF")
		}
		keys = append(keys, norm.NFC.String(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed reading keys: %w", err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("keys file is empty: %s", path)
	}

	if len(keys) != ExpectedKeys {
		slog.Warn("Unexpected keys table size", "path", path, "keys", len(keys), "expected", ExpectedKeys)
	}
	return keys, nil
}
