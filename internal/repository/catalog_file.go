package repository

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-academy/internal/model"
)

// catalogFile is the on-disk JSON shape of a test catalog.
type catalogFile struct {
	Tests []model.Test `json:"tests"`
}

// LoadTestsFile reads a JSON test catalog. Tests without an id get a
// random one; every test must pass validation.
func LoadTestsFile(path string) ([]model.Test, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var f catalogFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode catalog file: %w", err)
	}

	for i := range f.Tests {
		t := &f.Tests[i]
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("test %q: %w", t.Title, err)
		}
	}
	return f.Tests, nil
}
