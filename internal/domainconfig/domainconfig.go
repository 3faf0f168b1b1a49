// Package domainconfig supplies per-domain dispatch settings, optionally read from YAML.
package domainconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/dispatch-service/internal/config"
)

// Domain is one entry of the domains map.
type Domain struct {
	Strategy    string `yaml:"dispatching_strategy"`
	MaxCapacity int    `yaml:"max_capacity"`
}

type document struct {
	DefaultDomain      string            `yaml:"default_domain"`
	MinTrainingRecords *int              `yaml:"min_training_records"`
	Domains            map[string]Domain `yaml:"domains"`
}

// Config implements dispatching.DomainConfig.
type Config struct {
	defaultDomain   string
	defaultStrategy string
	defaultMax      int
	minRecords      int
	domains         map[string]Domain
}

// FromDispatchConfig builds a single-domain configuration from env settings.
func FromDispatchConfig(cfg config.DispatchConfig) *Config {
	c := &Config{
		defaultDomain:   cfg.DefaultDomain,
		defaultStrategy: cfg.DefaultStrategy,
		defaultMax:      cfg.MaxAssignedTicketsPerAgent,
		minRecords:      cfg.MinTrainingRecords,
		domains:         map[string]Domain{},
	}
	if c.defaultDomain != "" {
		c.domains[c.defaultDomain] = Domain{Strategy: cfg.DefaultStrategy, MaxCapacity: cfg.MaxAssignedTicketsPerAgent}
	}
	return c
}

// Load reads the YAML file at path. A blank path or a missing file yields the
// env-derived configuration.
func Load(path string, base config.DispatchConfig) (*Config, error) {
	if path == "" {
		return FromDispatchConfig(base), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return FromDispatchConfig(base), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read domain config: %w", err)
	}
	return Parse(data, base)
}

// Parse decodes a YAML document over the env defaults. Unknown keys are rejected.
func Parse(data []byte, base config.DispatchConfig) (*Config, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse domain config: %w", err)
	}

	c := FromDispatchConfig(base)
	if doc.DefaultDomain != "" {
		delete(c.domains, c.defaultDomain)
		c.defaultDomain = doc.DefaultDomain
	}
	if doc.MinTrainingRecords != nil {
		if *doc.MinTrainingRecords < 0 {
			return nil, fmt.Errorf("min_training_records must not be negative")
		}
		c.minRecords = *doc.MinTrainingRecords
	}
	for id, d := range doc.Domains {
		if d.MaxCapacity < 0 {
			return nil, fmt.Errorf("domain %q: max_capacity must not be negative", id)
		}
		c.domains[id] = d
	}
	if _, ok := c.domains[c.defaultDomain]; !ok {
		c.domains[c.defaultDomain] = Domain{}
	}
	return c, nil
}

func (c *Config) DefaultDomainID() string { return c.defaultDomain }

// DomainIDs returns configured domains in sorted order.
func (c *Config) DomainIDs() []string {
	ids := make([]string, 0, len(c.domains))
	for id := range c.domains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StrategyName falls back to the env default for unknown domains or blank entries.
func (c *Config) StrategyName(domainID string) string {
	if d, ok := c.domains[domainID]; ok && d.Strategy != "" {
		return d.Strategy
	}
	return c.defaultStrategy
}

func (c *Config) MaxCapacity(domainID string) int {
	if d, ok := c.domains[domainID]; ok && d.MaxCapacity > 0 {
		return d.MaxCapacity
	}
	return c.defaultMax
}

func (c *Config) MinTrainingRecords() int { return c.minRecords }
