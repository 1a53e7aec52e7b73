package fetcher

import (
	"bufio"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// ReadLines reads a plain-text file into trimmed lines, skipping blanks.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: open text file")
	}
	defer f.Close() //nolint:errcheck

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "fetcher: scan text file")
	}

	return lines, nil
}
