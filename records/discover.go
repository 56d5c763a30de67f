package records

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DefaultPattern is the naming convention of stored records, relative to
// the data directory.
const DefaultPattern = "patient_*/patient_*.json"

// Discover lists the regular files under dir matching pattern, sorted by
// path. Files that do not match are outside the corpus and ignored.
func Discover(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid file pattern %q: %w", pattern, err)
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, m)
	}

	sort.Strings(files)
	return files, nil
}
