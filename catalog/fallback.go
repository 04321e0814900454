package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/signalsfoundry/orbitdeck/model"
)

// fallbackEntryJSON is the on-disk shape of one fallback object. Kept
// unexported so the file format can evolve independently of the model.
type fallbackEntryJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Line1    string `json:"line1"`
	Line2    string `json:"line2"`
}

// LoadFallback reads the bundled minimal catalog served when every category
// fetch fails. Each record must carry a valid TLE pair; a record that fails
// to parse fails the load, since a broken fallback defeats its purpose.
func LoadFallback(r io.Reader) ([]model.CatalogEntry, error) {
	var payload []fallbackEntryJSON
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode fallback catalog: %w", err)
	}

	entries := make([]model.CatalogEntry, 0, len(payload))
	for _, raw := range payload {
		entry, err := parseRecord(raw.Name, raw.Line1, raw.Line2, model.Category(raw.Category))
		if err != nil {
			return nil, fmt.Errorf("fallback entry %q: %w", raw.ID, err)
		}
		if raw.ID != "" && raw.ID != entry.ID {
			return nil, fmt.Errorf("%w: fallback entry id %q does not match TLE %q", ErrParse, raw.ID, entry.ID)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// LoadFallbackFile is LoadFallback over a file path.
func LoadFallbackFile(path string) ([]model.CatalogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fallback catalog: %w", err)
	}
	defer f.Close()
	return LoadFallback(f)
}
