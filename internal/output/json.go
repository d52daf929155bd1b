// Package output renders acquired property records for files and
// terminals.
package output

import (
	"encoding/json"
	"io"
	"os"

	"github.com/propscout/propscout/pkg/models"
)

// WriteJSON writes an indented JSON export of a record.
func WriteJSON(w io.Writer, rec *models.PropertyRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(rec)
}

// SaveJSON writes a record's JSON export to a file.
func SaveJSON(path string, rec *models.PropertyRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteJSON(f, rec)
}
