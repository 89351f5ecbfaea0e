// config64.go - optional device-map configuration for the host CLI
//
// Grounded on rcornwell-S370's YAML config-file layer: a declarative list of
// port ranges wired to named stub devices, parsed with gopkg.in/yaml.v3. The
// core itself has no notion of configuration files; this only feeds
// cmd/x64run's device wiring.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package x64core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PortMapEntry binds an inclusive port range to a stub device name.
type PortMapEntry struct {
	Name  string `yaml:"name"`
	Start uint16 `yaml:"start"`
	End   uint16 `yaml:"end"`
}

// DeviceMapConfig is the top-level shape of a --config YAML file.
type DeviceMapConfig struct {
	Ports []PortMapEntry `yaml:"ports"`
}

// LoadDeviceMapConfig reads and parses a device-map YAML file.
func LoadDeviceMapConfig(path string) (*DeviceMapConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg DeviceMapConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Apply wires every configured port range to a NullDevice stub on bus,
// logging what was mapped.
func (c *DeviceMapConfig) Apply(bus *Bus, logf func(string, ...any)) {
	for _, p := range c.Ports {
		bus.RegisterRange(p.Start, p.End, NullDevice{})
		logf("config: mapped ports 0x%x-0x%x to stub device %q", p.Start, p.End, p.Name)
	}
}
