// Package validation checks identifiers and field names that end up in file
// paths or column names. Clinical values themselves are never validated.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxRecordIDLength  = 64
	maxFieldNameLength = 128
)

var (
	// Record identifiers become directory and file names.
	recordIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

	// Field names become JSON keys and, after flattening, column names.
	fieldNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)
)

// ValidateRecordID checks that a subject identifier is a safe path segment.
func ValidateRecordID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("record id cannot be empty")
	}

	if len(id) != len(trimmed) {
		return fmt.Errorf("record id cannot contain surrounding whitespace")
	}

	if len(id) > maxRecordIDLength {
		return fmt.Errorf("record id too long: maximum %d characters", maxRecordIDLength)
	}

	if !recordIDRegex.MatchString(id) {
		return fmt.Errorf("record id contains invalid characters. Only letters, numbers, hyphens and underscores are allowed")
	}

	return nil
}

// ValidateFieldName checks a submitted form field name.
func ValidateFieldName(name string) error {
	if name == "" {
		return fmt.Errorf("field name cannot be empty")
	}

	if len(name) > maxFieldNameLength {
		return fmt.Errorf("field name too long: maximum %d characters", maxFieldNameLength)
	}

	if !fieldNameRegex.MatchString(name) {
		return fmt.Errorf("field name %q contains invalid characters", name)
	}

	if hasExcessiveRepetition(name) {
		return fmt.Errorf("field name contains excessive character repetition")
	}

	return nil
}

// ValidateOutputName checks the base name used for exported files.
func ValidateOutputName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("output name cannot be empty")
	}

	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("output name must be a plain file name, got: %s", name)
	}

	return nil
}

// hasExcessiveRepetition reports a run of more than 10 identical bytes.
func hasExcessiveRepetition(input string) bool {
	for i := 0; i < len(input)-10; i++ {
		allSame := true
		for j := 1; j <= 10; j++ {
			if input[i] != input[i+j] {
				allSame = false
				break
			}
		}
		if allSame {
			return true
		}
	}
	return false
}
