package glossary

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// fileFormat is the on-disk shape: three named groups, human-editable
// between runs.
type fileFormat struct {
	Characters map[string]string `json:"characters"`
	Places     map[string]string `json:"places"`
	Terms      map[string]string `json:"terms"`
}

// Load reads a glossary file. A missing file is not an error: it
// returns an empty glossary so the caller can decide to build one.
func Load(path string) (*Glossary, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read glossary file: %w", err)
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("failed to parse glossary file %s: %w", path, err)
	}

	g := New()
	for term, rendering := range ff.Characters {
		g.Add(CategoryCharacters, term, rendering)
	}
	for term, rendering := range ff.Places {
		g.Add(CategoryPlaces, term, rendering)
	}
	for term, rendering := range ff.Terms {
		g.Add(CategoryTerms, term, rendering)
	}
	return g, nil
}

// Save writes the glossary as indented JSON with source-language
// terms left unescaped, so the file stays readable and editable.
func Save(path string, g *Glossary) error {
	ff := fileFormat{
		Characters: g.Category(CategoryCharacters),
		Places:     g.Category(CategoryPlaces),
		Terms:      g.Category(CategoryTerms),
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ff); err != nil {
		return fmt.Errorf("failed to encode glossary: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create glossary directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write glossary file: %w", err)
	}
	return nil
}
