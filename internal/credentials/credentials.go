// Package credentials resolves service-account credentials supplied as a single value:
// either a path to a JSON file or the base64-encoded JSON document itself.
package credentials

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalid is returned when the value is neither a readable file nor base64 JSON.
var ErrInvalid = errors.New("credentials must be a file path or base64-encoded JSON")

// Resolve returns the credentials JSON for value. Decoded documents stay in memory,
// nothing is written to disk.
func Resolve(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("credentials are empty: %w", ErrInvalid)
	}

	if info, err := os.Stat(value); err == nil && !info.IsDir() {
		data, err := os.ReadFile(filepath.Clean(value))
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("credentials file %s is not JSON: %w", value, ErrInvalid)
		}
		return data, nil
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		data, err := enc.DecodeString(value)
		if err == nil && json.Valid(data) {
			return data, nil
		}
	}

	return nil, ErrInvalid
}
