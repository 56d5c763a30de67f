package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/giygas/patient-records/atomicfile"
	"github.com/giygas/patient-records/logging"
	"github.com/giygas/patient-records/validation"
)

// SavedAtField is stamped on stored records that do not carry it already.
const SavedAtField = "saved_at"

// ErrRecordNotFound is returned by Store.Get for an unknown identifier.
var ErrRecordNotFound = errors.New("record not found")

// Store persists submitted records under Dir using the naming convention
// matched by DefaultPattern. A later submission for the same subject
// replaces the earlier one.
type Store struct {
	Dir string
	now func() time.Time
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir, now: time.Now}
}

// PathFor returns the file a record with the given identifier is stored in.
func (s *Store) PathFor(id string) string {
	name := "patient_" + id
	return filepath.Join(s.Dir, name, name+".json")
}

// Save writes doc as the record of subject id and returns its path.
func (s *Store) Save(id string, doc Document) (string, error) {
	if err := validation.ValidateRecordID(id); err != nil {
		return "", err
	}

	if _, ok := doc[SavedAtField]; !ok {
		doc[SavedAtField] = s.now().Format(time.RFC3339)
	}

	path := s.PathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", fmt.Errorf("failed to create record directory: %w", err)
	}

	err := atomicfile.Write(path, 0644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "    ")
		return enc.Encode(doc)
	})
	if err != nil {
		return "", fmt.Errorf("failed to store record %s: %w", id, err)
	}

	logging.Info("Record stored", "id", id, "path", path)
	return path, nil
}

// Get loads the stored record of subject id.
func (s *Store) Get(id string) (Document, error) {
	if err := validation.ValidateRecordID(id); err != nil {
		return nil, err
	}

	path := s.PathFor(id)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return Load(path)
}
