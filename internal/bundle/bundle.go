// Package bundle reads and writes the source lists behind multi-file bodies.
//
// A bundle is either a JSON array of sources or JSON Lines with one source
// per line:
//
//	[{"name": "part-0.bin"}, {"name": "part-1.bin", "range": {"start": 0, "end": 512}}]
package bundle

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/pithecene-io/spool/spool"
)

// json is a drop-in replacement for encoding/json with better performance.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Decode reads a bundle from r. A document whose first non-space byte is
// '[' is read as a JSON array; anything else is read as JSON Lines, where
// blank lines are skipped. Every source is validated before returning.
func Decode(r io.Reader) ([]spool.Source, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sources []spool.Source
	if first == '[' {
		if err := json.NewDecoder(br).Decode(&sources); err != nil {
			return nil, fmt.Errorf("bundle: %w", err)
		}
	} else {
		sources, err = decodeLines(br)
		if err != nil {
			return nil, err
		}
	}

	if err := Validate(sources); err != nil {
		return nil, err
	}
	return sources, nil
}

func decodeLines(r io.Reader) ([]spool.Source, error) {
	var sources []spool.Source
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		var src spool.Source
		if err := json.Unmarshal(b, &src); err != nil {
			return nil, fmt.Errorf("bundle: line %d: %w", line, err)
		}
		sources = append(sources, src)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return sources, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

// Validate checks that every source names a file and that every range is
// well formed. Ranges are checked against file sizes only when streamed.
func Validate(sources []spool.Source) error {
	for i, src := range sources {
		if src.Name == "" {
			return fmt.Errorf("bundle: source %d: %w", i, spool.ErrInvalidPath)
		}
		if src.Range != nil {
			if err := src.Range.Validate(-1); err != nil {
				return fmt.Errorf("bundle: source %d (%s): %w", i, src.Name, err)
			}
		}
	}
	return nil
}

// Encode writes sources as JSON Lines to w.
func Encode(w io.Writer, sources []spool.Source) error {
	if err := Validate(sources); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for _, src := range sources {
		if err := enc.Encode(src); err != nil {
			return err
		}
	}
	return nil
}
