// Package jig provides alignment jig definitions and management.
package jig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"laser-align/pkg/geometry"
)

// MinMarkers is the number of markers a jig needs for a homography fit.
const MinMarkers = 4

// ConfigError reports a missing or malformed jig configuration.
type ConfigError struct {
	Path  string // Source file, empty for in-memory configs
	Field string // Offending field, empty when the whole file is bad
	Err   error
}

func (e *ConfigError) Error() string {
	src := e.Path
	if src == "" {
		src = "jig config"
	}
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", src, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", src, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Dictionaries lists the marker dictionary names a jig may declare.
var Dictionaries = []string{
	"DICT_4X4_50", "DICT_4X4_100", "DICT_4X4_250", "DICT_4X4_1000",
	"DICT_5X5_50", "DICT_5X5_100", "DICT_5X5_250", "DICT_5X5_1000",
	"DICT_6X6_50", "DICT_6X6_100", "DICT_6X6_250", "DICT_6X6_1000",
	"DICT_7X7_50", "DICT_7X7_100", "DICT_7X7_250", "DICT_7X7_1000",
	"DICT_ARUCO_ORIGINAL",
	"DICT_APRILTAG_16h5", "DICT_APRILTAG_25h9", "DICT_APRILTAG_36h10", "DICT_APRILTAG_36h11",
}

// Marker is a fiducial marker mounted on the jig.
type Marker struct {
	ID         int
	PositionMM geometry.Point2D // Marker center, origin at the bottom-left marker, Y up
	Corner     string           // Free-form label such as "bottom-left"
}

// Config describes a jig. It is immutable once built and safe for
// concurrent readers.
type Config struct {
	name         string
	boardSizeMM  float64
	markerSizeMM float64
	dictionary   string
	markers      map[int]Marker
}

// Name returns the jig name.
func (c *Config) Name() string { return c.name }

// BoardSizeMM returns the edge length of the square engraving area.
func (c *Config) BoardSizeMM() float64 { return c.boardSizeMM }

// MarkerSizeMM returns the printed marker edge length.
func (c *Config) MarkerSizeMM() float64 { return c.markerSizeMM }

// Dictionary returns the marker dictionary name, e.g. "DICT_4X4_50".
func (c *Config) Dictionary() string { return c.dictionary }

// BoardRect returns the engraving area in millimetres.
func (c *Config) BoardRect() geometry.Rect {
	return geometry.NewRect(0, 0, c.boardSizeMM, c.boardSizeMM)
}

// Marker looks up a configured marker by id.
func (c *Config) Marker(id int) (Marker, bool) {
	m, ok := c.markers[id]
	return m, ok
}

// MarkerIDs returns the configured marker ids in ascending order.
func (c *Config) MarkerIDs() []int {
	ids := make([]int, 0, len(c.markers))
	for id := range c.markers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Markers returns the configured markers ordered by id.
func (c *Config) Markers() []Marker {
	out := make([]Marker, 0, len(c.markers))
	for _, id := range c.MarkerIDs() {
		out = append(out, c.markers[id])
	}
	return out
}

// New builds and validates a config from explicit values.
func New(name string, boardSizeMM, markerSizeMM float64, dictionary string, markers []Marker) (*Config, error) {
	c := &Config{
		name:         name,
		boardSizeMM:  boardSizeMM,
		markerSizeMM: markerSizeMM,
		dictionary:   dictionary,
		markers:      make(map[int]Marker, len(markers)),
	}
	for _, m := range markers {
		if _, dup := c.markers[m.ID]; dup {
			return nil, &ConfigError{Field: "markers." + strconv.Itoa(m.ID), Err: errors.New("duplicate marker id")}
		}
		c.markers[m.ID] = m
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.name == "" {
		return &ConfigError{Field: "jig_name", Err: errors.New("is required")}
	}
	if !(c.boardSizeMM > 0) {
		return &ConfigError{Field: "board_size_mm", Err: fmt.Errorf("must be positive, got %v", c.boardSizeMM)}
	}
	if !(c.markerSizeMM > 0) {
		return &ConfigError{Field: "marker_size_mm", Err: fmt.Errorf("must be positive, got %v", c.markerSizeMM)}
	}
	if !knownDictionary(c.dictionary) {
		return &ConfigError{Field: "dictionary", Err: fmt.Errorf("unknown marker dictionary %q", c.dictionary)}
	}
	if len(c.markers) < MinMarkers {
		return &ConfigError{Field: "markers", Err: fmt.Errorf("need at least %d markers, got %d", MinMarkers, len(c.markers))}
	}
	for id, m := range c.markers {
		if id < 0 {
			return &ConfigError{Field: "markers." + strconv.Itoa(id), Err: errors.New("marker id must be non-negative")}
		}
		if !m.PositionMM.IsFinite() {
			return &ConfigError{Field: "markers." + strconv.Itoa(id) + ".position_mm", Err: errors.New("must be finite")}
		}
	}
	return nil
}

func knownDictionary(name string) bool {
	for _, d := range Dictionaries {
		if d == name {
			return true
		}
	}
	return false
}

// fileConfig is the on-disk JSON layout.
type fileConfig struct {
	JigName      *string               `json:"jig_name"`
	BoardSizeMM  *float64              `json:"board_size_mm"`
	MarkerSizeMM *float64              `json:"marker_size_mm"`
	Dictionary   *string               `json:"dictionary"`
	Markers      map[string]fileMarker `json:"markers"`
}

type fileMarker struct {
	PositionMM []float64 `json:"position_mm"`
	Corner     string    `json:"corner"`
}

// Parse decodes and validates a jig config from JSON.
func Parse(data []byte) (*Config, error) {
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("malformed JSON: %w", err)}
	}

	switch {
	case fc.JigName == nil:
		return nil, &ConfigError{Field: "jig_name", Err: errors.New("is required")}
	case fc.BoardSizeMM == nil:
		return nil, &ConfigError{Field: "board_size_mm", Err: errors.New("is required")}
	case fc.MarkerSizeMM == nil:
		return nil, &ConfigError{Field: "marker_size_mm", Err: errors.New("is required")}
	case fc.Dictionary == nil:
		return nil, &ConfigError{Field: "dictionary", Err: errors.New("is required")}
	case fc.Markers == nil:
		return nil, &ConfigError{Field: "markers", Err: errors.New("is required")}
	}

	markers := make([]Marker, 0, len(fc.Markers))
	for key, fm := range fc.Markers {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, &ConfigError{Field: "markers." + key, Err: errors.New("marker id must be an integer")}
		}
		if len(fm.PositionMM) != 2 {
			return nil, &ConfigError{Field: "markers." + key + ".position_mm", Err: fmt.Errorf("want [x, y], got %d values", len(fm.PositionMM))}
		}
		markers = append(markers, Marker{
			ID:         id,
			PositionMM: geometry.NewPoint2D(fm.PositionMM[0], fm.PositionMM[1]),
			Corner:     fm.Corner,
		})
	}

	return New(*fc.JigName, *fc.BoardSizeMM, *fc.MarkerSizeMM, *fc.Dictionary, markers)
}

// LoadFromFile loads a jig config from a JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

// MarshalJSON writes the config in the on-disk layout.
func (c *Config) MarshalJSON() ([]byte, error) {
	fc := fileConfig{
		JigName:      &c.name,
		BoardSizeMM:  &c.boardSizeMM,
		MarkerSizeMM: &c.markerSizeMM,
		Dictionary:   &c.dictionary,
		Markers:      make(map[string]fileMarker, len(c.markers)),
	}
	for id, m := range c.markers {
		fc.Markers[strconv.Itoa(id)] = fileMarker{
			PositionMM: []float64{m.PositionMM.X, m.PositionMM.Y},
			Corner:     m.Corner,
		}
	}
	return json.Marshal(fc)
}

// SaveToFile saves the config to a JSON file.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Registry of known jigs
var (
	registryMu sync.RWMutex
	registry   = make(map[string]*Config)
)

// Register adds a jig to the registry.
func Register(c *Config) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[c.Name()] = c
}

// Get returns a registered jig by name.
func Get(name string) *Config {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[name]
}

// List returns all registered jig names, sorted.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the registered jig called nameOrPath, or loads it from
// disk when no such jig is registered.
func Resolve(nameOrPath string) (*Config, error) {
	if c := Get(nameOrPath); c != nil {
		return c, nil
	}
	return LoadFromFile(nameOrPath)
}

func init() {
	Register(DefaultJig())
}
