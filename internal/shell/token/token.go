// Package token splits command text into an argument vector using
// POSIX-style shell quoting rules. There is no glob expansion and no
// pipe/redirection interpretation; commands execute as a plain argv.
package token

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// Split tokenizes command text into an argument vector.
func Split(text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("command text is required")
	}
	argv, err := shlex.Split(text)
	if err != nil {
		return nil, fmt.Errorf("tokenize command: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("command text is required")
	}
	return argv, nil
}
