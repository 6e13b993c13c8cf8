package sender

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPort is the standard Zabbix trapper port.
const DefaultPort = 10051

// Destination is the host/key pair a sample is attributed to.
type Destination struct {
	HostName string `yaml:"host_name"`
	Key      string `yaml:"key"`
}

// Config holds the server to send to and the named destinations.
type Config struct {
	Server   string                 `yaml:"server"`
	Port     int                    `yaml:"port"`
	Disabled bool                   `yaml:"disabled"`
	Hosts    map[string]Destination `yaml:"hosts"`
}

// LoadConfig reads a YAML config file, applies defaults and validates it.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read file: %v", err)
	}

	cfg, err := ParseConfig(raw)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ParseConfig unmarshals raw YAML and applies defaults without validating.
func ParseConfig(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse yaml: %v", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
}

// Validate checks the server address and every configured destination.
func (c *Config) Validate() error {
	if err := validateServer(c.Server, c.Port); err != nil {
		return err
	}
	for _, name := range c.DestinationNames() {
		if err := validateDestination(name, c.Hosts[name]); err != nil {
			return err
		}
	}
	return nil
}

// DestinationNames returns the configured destination names, sorted.
func (c *Config) DestinationNames() []string {
	names := make([]string, 0, len(c.Hosts))
	for name := range c.Hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Destination looks up a named destination.
func (c *Config) Destination(name string) (Destination, error) {
	d, ok := c.Hosts[name]
	if !ok {
		return Destination{}, validationErrorf(
			"invalid configuration, destination %q not found. Configured hosts are: %s",
			name, strings.Join(c.DestinationNames(), ", "))
	}
	if err := validateDestination(name, d); err != nil {
		return Destination{}, err
	}
	return d, nil
}

// Sample returns a new Sample addressed to the named destination.
func (c *Config) Sample(name string) (*Sample, error) {
	d, err := c.Destination(name)
	if err != nil {
		return nil, err
	}
	return NewSample().UsingDestination(d), nil
}

func validateDestination(name string, d Destination) error {
	if d.HostName == "" {
		return validationErrorf(`destination %q does not contain the "host_name" key`, name)
	}
	if d.Key == "" {
		return validationErrorf(`destination %q does not contain the "key" key`, name)
	}
	return nil
}

func validateServer(address string, port int) error {
	if address == "" {
		return validationErrorf(`the "server" configuration value is empty`)
	}
	if port <= 0 || port > 65535 {
		return validationErrorf("invalid server port %d", port)
	}
	return nil
}
