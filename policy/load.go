package policy

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
)

// FromYAML parses a policy table from YAML. The document shape is:
//
//	sign_in_route: /auth/signin
//	roles:
//	  merchant:
//	    label: Merchant
//	    routes: [/dashboard/merchant, /wallet, /payments]
//	  ...
//
// Every role in the enumeration must appear.
func FromYAML(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("policy: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("policy: parse config: %w", err)
	}
	return New(cfg)
}

// LoadFile reads a policy table from a YAML file.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("policy: open config: %w", err)
	}
	defer func() { _ = f.Close() }()

	return FromYAML(f)
}
