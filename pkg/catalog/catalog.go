// Package catalog loads and serves the field catalog: the fixed,
// versioned configuration mapping each curated field key to its
// accountability coefficient, acceptance thresholds and essential flag.
// The catalog is read-only to the engine.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opencurate/curation-engine/pkg/apperrors"
)

// FieldDescriptor describes one curated field.
type FieldDescriptor struct {
	Key string `yaml:"key"`

	// Coefficient is the field's accountability weight, the basis of
	// genesis weight and rewards.
	Coefficient int64 `yaml:"coefficient"`

	// Essential fields gate project publication and are the only fields
	// whose acceptance pays a submitter reward.
	Essential bool `yaml:"essential"`

	// Quorum is the minimum distinct voters the leader needs for the
	// field to be accepted. Defaults to 1.
	Quorum int `yaml:"quorum"`

	// MinWeight is the minimum aggregate weight the leader needs for the
	// field to be accepted. Defaults to 1.
	MinWeight int64 `yaml:"min_weight"`
}

// file is the on-disk shape of the catalog YAML.
type file struct {
	WeightUnit    int64             `yaml:"weight_unit"`
	RewardPercent int64             `yaml:"reward_percent"`
	Fields        []FieldDescriptor `yaml:"fields"`
}

// Catalog is the loaded, immutable field catalog.
type Catalog struct {
	fields        map[string]FieldDescriptor
	order         []string
	weightUnit    int64
	rewardPercent int64
}

// Load reads the catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	return New(f.Fields, f.WeightUnit, f.RewardPercent)
}

// New builds a catalog from descriptors. Used directly by tests and by
// Load. Zero or negative quorum and min_weight default to 1; a zero
// weight unit defaults to 1.
func New(fields []FieldDescriptor, weightUnit, rewardPercent int64) (*Catalog, error) {
	if weightUnit <= 0 {
		weightUnit = 1
	}
	if rewardPercent < 0 {
		return nil, fmt.Errorf("reward_percent must not be negative, got %d", rewardPercent)
	}

	c := &Catalog{
		fields:        make(map[string]FieldDescriptor, len(fields)),
		weightUnit:    weightUnit,
		rewardPercent: rewardPercent,
	}

	for _, fd := range fields {
		if fd.Key == "" {
			return nil, fmt.Errorf("catalog field with empty key")
		}
		if fd.Coefficient <= 0 {
			return nil, fmt.Errorf("catalog field %q has non-positive coefficient %d", fd.Key, fd.Coefficient)
		}
		if _, dup := c.fields[fd.Key]; dup {
			return nil, fmt.Errorf("duplicate catalog field %q", fd.Key)
		}
		if fd.Quorum < 1 {
			fd.Quorum = 1
		}
		if fd.MinWeight < 1 {
			fd.MinWeight = 1
		}
		c.fields[fd.Key] = fd
		c.order = append(c.order, fd.Key)
	}

	return c, nil
}

// Contains reports whether the key is a catalog field.
func (c *Catalog) Contains(key string) bool {
	_, ok := c.fields[key]
	return ok
}

// Descriptor returns the descriptor for a field key.
func (c *Catalog) Descriptor(key string) (FieldDescriptor, error) {
	fd, ok := c.fields[key]
	if !ok {
		return FieldDescriptor{}, fmt.Errorf("%w: %q", apperrors.ErrUnknownFieldKey, key)
	}
	return fd, nil
}

// Keys returns the field keys in catalog order.
func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.order))
	copy(keys, c.order)
	return keys
}

// EssentialKeys returns the keys of essential fields in catalog order.
func (c *Catalog) EssentialKeys() []string {
	var keys []string
	for _, key := range c.order {
		if c.fields[key].Essential {
			keys = append(keys, key)
		}
	}
	return keys
}

// WeightUnit returns the configured weight unit.
func (c *Catalog) WeightUnit() int64 {
	return c.weightUnit
}

// GenesisWeight returns coefficient × weight unit for one field.
func (c *Catalog) GenesisWeight(key string) (int64, error) {
	fd, err := c.Descriptor(key)
	if err != nil {
		return 0, err
	}
	return fd.Coefficient * c.weightUnit, nil
}

// TotalGenesisWeight sums coefficient × weight unit over every catalog
// field: the denominator of the transparency percentage.
func (c *Catalog) TotalGenesisWeight() int64 {
	var total int64
	for _, fd := range c.fields {
		total += fd.Coefficient * c.weightUnit
	}
	return total
}

// AcceptanceReward returns the weight reward paid when a submitter's
// candidate is first accepted on the field.
func (c *Catalog) AcceptanceReward(key string) (int64, error) {
	genesis, err := c.GenesisWeight(key)
	if err != nil {
		return 0, err
	}
	return genesis * c.rewardPercent / 100, nil
}
