package tabulate

import (
	"errors"
	"fmt"
	"path/filepath"
)

var (
	// ErrMalformedRecord marks a record file that could not be tabulated.
	// It is recoverable: the file is skipped and the batch continues.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrNoRows is returned when no file produced any row.
	ErrNoRows = errors.New("no data extracted from record files")
)

// FileError is the recorded failure of one record file. It matches both
// ErrMalformedRecord and the underlying cause with errors.Is.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("error processing %s: %v", filepath.Base(e.Path), e.Err)
}

func (e *FileError) Unwrap() []error {
	return []error{ErrMalformedRecord, e.Err}
}
