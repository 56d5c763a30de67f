// Package records reads, discovers and stores per-subject record documents.
//
// A record is one JSON object per subject, kept as a generic decoded map so
// that any section layout can be tabulated. Numbers are decoded as
// json.Number to keep their source text in exported cells.
package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Document is a decoded record.
type Document = map[string]any

// Load reads and decodes the record stored at path.
func Load(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Decode(raw)
}

// Decode parses one record document. Input that is not valid UTF-8 is
// decoded as ISO-8859-1, and a leading UTF-8 byte order mark is ignored.
func Decode(raw []byte) (Document, error) {
	var reader io.Reader
	if utf8.Valid(raw) {
		reader = unicode.UTF8BOM.NewDecoder().Reader(bytes.NewReader(raw))
	} else {
		reader = charmap.ISO8859_1.NewDecoder().Reader(bytes.NewReader(raw))
	}

	dec := json.NewDecoder(reader)
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid record JSON: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("record is null")
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after record object")
	}

	return doc, nil
}
