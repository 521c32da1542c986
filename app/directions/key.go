package directions

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrCredentialLoad returned when the API key file is missing, unreadable or empty
var ErrCredentialLoad = errors.New("can't load api key")

// LoadKey reads API key from the file, surrounding whitespace ignored
func LoadKey(fname string) (string, error) {
	data, err := os.ReadFile(fname) //nolint:gosec // key location comes from the command line
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCredentialLoad, err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrCredentialLoad, fname)
	}
	return key, nil
}
