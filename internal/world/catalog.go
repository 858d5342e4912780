package world

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/emberrealm/worldserver/pkg/core"
)

// MapEntry describes one map known to the server.
type MapEntry struct {
	ID           core.MapID `yaml:"id"`
	Name         string     `yaml:"name"`
	Instanceable bool       `yaml:"instanceable"`
}

type catalogFile struct {
	Maps []MapEntry `yaml:"maps"`
}

// Catalog is the static list of maps loaded at startup.
type Catalog struct {
	maps map[core.MapID]MapEntry
}

// LoadCatalog reads a catalog from a yaml file.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open map catalog: %w", err)
	}
	defer f.Close()
	return ParseCatalog(f)
}

// ParseCatalog decodes a catalog document. Duplicate ids are rejected.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	var doc catalogFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode map catalog: %w", err)
	}

	c := &Catalog{maps: make(map[core.MapID]MapEntry, len(doc.Maps))}
	for _, m := range doc.Maps {
		if _, dup := c.maps[m.ID]; dup {
			return nil, fmt.Errorf("map catalog: duplicate map id %d", m.ID)
		}
		c.maps[m.ID] = m
	}
	return c, nil
}

// Lookup returns the entry for id.
func (c *Catalog) Lookup(id core.MapID) (MapEntry, bool) {
	m, ok := c.maps[id]
	return m, ok
}

// Len returns the number of maps in the catalog.
func (c *Catalog) Len() int { return len(c.maps) }
