// Package config loads the YAML bus/node topology consumed by the
// cmd/j1939-demo harness.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

/*------------------------------------------------------------------
 *
 * Purpose:	Parse and validate the demo harness's topology file.
 *
 * Description:	This harness's configuration surface is small enough
 *		to express directly as a YAML document: fail fast, naming
 *		the offending field.
 *
 *---------------------------------------------------------------*/

// BusKind names which Port implementation backs the demo harness.
type BusKind string

const (
	BusVirtual   BusKind = "virtual"
	BusSocketCAN BusKind = "socketcan"
	BusSerial    BusKind = "serial"
)

// NodeConfig describes one node to create on the bus.
type NodeConfig struct {
	Name    string `yaml:"name"`
	Address int    `yaml:"address"`
	TxFIFO  int    `yaml:"tx_fifo"`
}

// Config is the top-level demo harness topology.
type Config struct {
	Bus       BusKind      `yaml:"bus"`
	Interface string       `yaml:"interface"`
	Baud      int          `yaml:"baud"`
	Nodes     []NodeConfig `yaml:"nodes"`
}

// Load reads and validates the YAML configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Bus {
	case BusVirtual, BusSocketCAN, BusSerial:
	default:
		return fmt.Errorf("unknown bus kind %q", c.Bus)
	}

	if c.Bus != BusVirtual && c.Interface == "" {
		return fmt.Errorf("bus %q requires an interface", c.Bus)
	}

	if len(c.Nodes) == 0 {
		return fmt.Errorf("at least one node is required")
	}

	seen := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.Name == "" {
			return fmt.Errorf("node with empty name")
		}
		if seen[n.Name] {
			return fmt.Errorf("duplicate node name %q", n.Name)
		}
		seen[n.Name] = true

		if n.Address < 0 || n.Address > 0xFF {
			return fmt.Errorf("node %q: address %d does not fit a byte", n.Name, n.Address)
		}
		if n.TxFIFO <= 0 {
			return fmt.Errorf("node %q: tx_fifo must be positive, got %d", n.Name, n.TxFIFO)
		}
	}

	return nil
}
