package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/geodispatch/core/model"
)

// SeedFile is the on-disk format used to seed a store and the geofence
// monitor, e.g. for the tick command or the simulator.
type SeedFile struct {
	Drivers    []model.Driver       `json:"drivers" yaml:"drivers"`
	Deliveries []model.Delivery     `json:"deliveries" yaml:"deliveries"`
	Zones      []model.GeofenceZone `json:"zones" yaml:"zones"`
}

// LoadSeedFile decodes a JSON or YAML seed file chosen by extension.
func LoadSeedFile(path string) (SeedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return SeedFile{}, err
	}
	defer func() { _ = f.Close() }()
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return DecodeSeed(f, ext)
}

// DecodeSeed reads a seed from r in the given format ("yaml", "yml" or "json").
func DecodeSeed(r io.Reader, format string) (SeedFile, error) {
	var seed SeedFile
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&seed); err != nil {
			return seed, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&seed); err != nil {
			return seed, err
		}
	default:
		return seed, fmt.Errorf("unsupported seed format: %s", format)
	}
	return seed, nil
}

// Apply writes every driver and delivery of the seed into s.
func (f SeedFile) Apply(ctx context.Context, s Store) error {
	for _, d := range f.Drivers {
		if err := s.UpsertDriver(ctx, d); err != nil {
			return fmt.Errorf("seed driver: %w", err)
		}
	}
	for _, d := range f.Deliveries {
		if d.Status == "" {
			d.Status = model.StatusPending
		}
		if err := s.UpsertDelivery(ctx, d); err != nil {
			return fmt.Errorf("seed delivery: %w", err)
		}
	}
	return nil
}
