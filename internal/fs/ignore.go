package fs

import (
	"bufio"
	"fmt"
	"os"

	"dbk-go/internal/sourcefile"
)

// defaultIgnorePatterns are always applied regardless of config or .dbkignore.
// Sidecars are read alongside their file and never backed up themselves.
var defaultIgnorePatterns = []string{IgnoreFileName, "*" + sourcefile.MetaSuffix}

// ParseIgnoreFile reads a .dbkignore file and returns the raw pattern strings.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}

