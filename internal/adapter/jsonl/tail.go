package jsonl

import (
	"bufio"
	"errors"
	"fmt"
	"os"
)

// maxLineBytes bounds one record line; tool inputs can get large.
const maxLineBytes = 4 * 1024 * 1024

// ReadTail returns the last n raw lines of a JSON Lines file.
// A missing file yields nil.
func ReadTail(path string, n int) ([]string, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Rotate rewrites the file keeping only the last keep lines, replacing it
// atomically. Returns the number of trimmed lines; a file at or under the
// cap, or absent entirely, is left untouched.
func Rotate(path string, keep int) (int, error) {
	lines, err := readLines(path)
	if err != nil {
		return 0, err
	}
	if len(lines) <= keep {
		return 0, nil
	}
	trimmed := len(lines) - keep
	kept := lines[trimmed:]

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open rotation file: %w", err)
	}
	bw := bufio.NewWriter(f)
	for _, line := range kept {
		if _, err := bw.WriteString(line + "\n"); err != nil {
			f.Close()
			return 0, fmt.Errorf("write rotation file: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return 0, fmt.Errorf("flush rotation file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close rotation file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, fmt.Errorf("replace log file: %w", err)
	}
	return trimmed, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan log file: %w", err)
	}
	return lines, nil
}
