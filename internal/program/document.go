package program

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ZoneSet names a combination of zones that runs together.
type ZoneSet struct {
	Name  string `json:"name"`
	Zones []int  `json:"zones"`
}

// Document is the persisted configuration: zone display names, optional zone
// set names and the watering program.
type Document struct {
	Zones    []string  `json:"zones"`
	ZoneSets []ZoneSet `json:"zoneSets,omitempty"`
	Program  Program   `json:"program"`
}

// Default returns an empty document, written at first start when no
// configuration file exists yet.
func Default() *Document {
	return &Document{Program: Program{Cycles: []Cycle{}}}
}

// LoadDocument reads and decodes the document at path.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse program document: %w", err)
	}
	return &doc, nil
}

// Save encodes and atomically replaces the document at path.
func (d *Document) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode program document: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write program document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace program document: %w", err)
	}
	return nil
}

// ZoneName returns the display name of a zone, falling back to its index.
func (d *Document) ZoneName(index int) string {
	if index >= 0 && index < len(d.Zones) {
		return d.Zones[index]
	}
	return strconv.Itoa(index)
}

// ZoneNames renders a zone list as comma-separated display names.
func (d *Document) ZoneNames(zones []int) string {
	names := make([]string, len(zones))
	for i, z := range zones {
		names[i] = d.ZoneName(z)
	}
	return strings.Join(names, ", ")
}

// CycleName derives a display name for a zone combination: the matching zone
// set name if one is declared, otherwise the joined zone names.
func (d *Document) CycleName(zones []int) string {
	switch {
	case len(zones) == 0:
		return "<none>"
	case len(zones) == 1:
		return d.ZoneName(zones[0])
	}
	for _, set := range d.ZoneSets {
		if equalZones(set.Zones, zones) {
			return set.Name
		}
	}
	return d.ZoneNames(zones)
}

func equalZones(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
