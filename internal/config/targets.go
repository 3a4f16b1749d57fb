package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Target is one named benchmark endpoint.
type Target struct {
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	Description string `yaml:"description,omitempty"`
}

type TargetCatalog struct {
	Targets []Target `yaml:"targets"`
}

// BuiltinTargets are always available, even without a catalog file.
var BuiltinTargets = []Target{
	{Name: "local", URL: "local:", Description: "In-process generator, unbounded"},
	{Name: "local-100", URL: "local:?mb=100", Description: "In-process generator, 100MB per transfer"},
	{Name: "localhost", URL: "http://127.0.0.1:8080/speed/down", Description: "speedo serve on this machine, unbounded"},
	{Name: "localhost-1g", URL: "http://127.0.0.1:8080/speed/down?mb=1024", Description: "speedo serve on this machine, 1GB per transfer"},
}

// LoadTargets reads a YAML catalog of the form
//
//	targets:
//	  - name: eu-1
//	    url: https://example.net/speed/down?mb=500
//
// and appends the built-in targets. An empty path yields only the built-ins.
func LoadTargets(path string) (*TargetCatalog, error) {
	catalog := &TargetCatalog{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading targets file: %w", err)
		}
		if err := yaml.Unmarshal(data, catalog); err != nil {
			return nil, fmt.Errorf("error parsing targets file: %w", err)
		}
		for i, t := range catalog.Targets {
			if strings.TrimSpace(t.Name) == "" || strings.TrimSpace(t.URL) == "" {
				return nil, fmt.Errorf("targets file entry %d: name and url are required", i+1)
			}
		}
	}
	for _, b := range BuiltinTargets {
		if _, ok := catalog.Lookup(b.Name); !ok {
			catalog.Targets = append(catalog.Targets, b)
		}
	}
	return catalog, nil
}

func (c *TargetCatalog) Lookup(name string) (Target, bool) {
	for _, t := range c.Targets {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Target{}, false
}

// Resolve turns a target name or a literal URL into a URL.
func (c *TargetCatalog) Resolve(nameOrURL string) string {
	if t, ok := c.Lookup(nameOrURL); ok {
		return t.URL
	}
	return nameOrURL
}
