package deck

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CardMetadata describes one indexed card. ID equals the card's row position in
// the index: the metadata array and the index are parallel and must be written
// together in the same order.
type CardMetadata struct {
	ID       int    `json:"id"`
	Filename string `json:"filename"`
	CardName string `json:"card_name"`
}

// IsImageFile reports whether name has a recognized image extension.
func IsImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// ListImages returns the image filenames in dir in sorted order. Non-image files
// and subdirectories are skipped.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read image directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !IsImageFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// DeriveCardName converts an image filename into a display name: the extension is
// stripped and underscore/hyphen separators become spaces ("01_fool.jpg" -> "01 fool").
func DeriveCardName(filename string) string {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return name
}

// SaveMetadata writes records as a JSON array to path, creating the parent
// directory if needed.
func SaveMetadata(path string, records []CardMetadata) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// LoadMetadata reads the JSON metadata array at path.
func LoadMetadata(path string) ([]CardMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var records []CardMetadata
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return records, nil
}
