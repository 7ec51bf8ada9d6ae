package model

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

var (
	ErrMissingLabelFile = errors.New("label file not found")
	ErrInvalidLabelFile = errors.New("invalid label file")
)

// LoadLabels reads a label file with one "<index> <name>" entry per line.
// The index must match the line's position among non-blank lines.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingLabelFile, path)
		}
		return nil, fmt.Errorf("failed to open label file: %w", err)
	}
	defer f.Close()

	return ParseLabels(f)
}

func ParseLabels(r io.Reader) ([]string, error) {
	var labels []string
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		idx, name, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: expected \"<index> <name>\", got %q", ErrInvalidLabelFile, lineNo, line)
		}
		n, err := strconv.Atoi(idx)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad index %q", ErrInvalidLabelFile, lineNo, idx)
		}
		if n != len(labels) {
			return nil, fmt.Errorf("%w: line %d: index %d out of order, expected %d", ErrInvalidLabelFile, lineNo, n, len(labels))
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: line %d: empty class name", ErrInvalidLabelFile, lineNo)
		}
		labels = append(labels, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read label file: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: no labels", ErrInvalidLabelFile)
	}
	return labels, nil
}
