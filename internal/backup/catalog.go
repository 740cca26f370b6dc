package backup

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rowjay/collection-backup/internal/store"
)

// MatchRule is the declarative form of a Predicate: the record's Field must
// equal one of Values, case-insensitively. An empty value matches records
// where the field is absent or blank.
type MatchRule struct {
	Field  string   `yaml:"field"`
	Values []string `yaml:"values"`
}

// Predicate compiles the rule.
func (m MatchRule) Predicate() Predicate {
	field := m.Field
	if field == "" {
		field = "type"
	}
	want := make(map[string]bool, len(m.Values))
	for _, v := range m.Values {
		want[strings.ToLower(strings.TrimSpace(v))] = true
	}
	return func(record store.Record) bool {
		value, _ := record[field].(string)
		return want[strings.ToLower(strings.TrimSpace(value))]
	}
}

type tileSpec struct {
	Key         string               `yaml:"key"`
	Label       string               `yaml:"label"`
	Collections []string             `yaml:"collections"`
	Filters     map[string]MatchRule `yaml:"filters"`
}

type catalogFile struct {
	Tiles []tileSpec `yaml:"tiles"`
}

// DefaultTiles is the built-in catalog. Calendar parts orders and ordinary
// events live in the same collection and are told apart by their type.
func DefaultTiles(eventsCollection string) []Tile {
	if eventsCollection == "" {
		eventsCollection = "calendarEvents"
	}
	return []Tile{
		{Key: "customers", Label: "Customers", Collections: []string{"customers"}},
		{Key: "workOrders", Label: "Work orders", Collections: []string{"workOrders", "workOrderNotes"}},
		{Key: "technicians", Label: "Technicians", Collections: []string{"technicians", "technicianAvailability"}},
		{Key: "inventory", Label: "Inventory", Collections: []string{"inventory"}},
		{Key: "sales", Label: "Sales", Collections: []string{"sales"}},
		{
			Key:         "calendarParts",
			Label:       "Parts orders",
			Collections: []string{eventsCollection},
			Predicates: map[string]Predicate{
				eventsCollection: MatchRule{Field: "type", Values: []string{"parts"}}.Predicate(),
			},
		},
		{
			Key:         "calendarEvents",
			Label:       "Calendar events",
			Collections: []string{eventsCollection},
			Predicates: map[string]Predicate{
				eventsCollection: MatchRule{Field: "type", Values: []string{"event", ""}}.Predicate(),
			},
		},
	}
}

// ParseTiles decodes a YAML tile catalog.
func ParseTiles(data []byte) ([]Tile, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tiles: %w", err)
	}
	tiles := make([]Tile, 0, len(file.Tiles))
	for _, spec := range file.Tiles {
		tile := Tile{Key: spec.Key, Label: spec.Label, Collections: spec.Collections}
		if len(spec.Filters) > 0 {
			tile.Predicates = make(map[string]Predicate, len(spec.Filters))
			for name, rule := range spec.Filters {
				tile.Predicates[name] = rule.Predicate()
			}
		}
		tiles = append(tiles, tile)
	}
	if err := ValidateTiles(tiles); err != nil {
		return nil, err
	}
	return tiles, nil
}

// LoadTiles reads the catalog at path, falling back to DefaultTiles when path is empty.
func LoadTiles(path, eventsCollection string) ([]Tile, error) {
	if path == "" {
		return DefaultTiles(eventsCollection), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tiles: %w", err)
	}
	return ParseTiles(data)
}
