package utils

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/okleinschmidt/pyadm/pkg/utils/file"
)

// ReadListFile reads one entry per line. Blank lines and lines starting
// with # are skipped.
func ReadListFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("list file does not exist: %w", err)
		}
		return nil, fmt.Errorf("open list file: %w", err)
	}
	defer f.Close()

	var entries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read list file: %w", err)
	}
	return entries, nil
}

// WriteListFile writes one entry per line.
func WriteListFile(path string, entries []string) error {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	return file.Write(path, []byte(b.String()), 0o755, 0o644)
}
