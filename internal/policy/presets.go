// Package policy provides the method allowlist, built-in presets and the CEL rule
// engine applied to every call before it is forwarded.
package policy

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultPreset is used when neither a preset nor a policy file is configured.
const DefaultPreset = "default"

//go:embed presets/*.yaml
var presetFS embed.FS

// presetFiles maps preset names to embedded file paths
var presetFiles = map[string]string{
	"default":  "presets/default.yaml",
	"readonly": "presets/readonly.yaml",
}

var (
	presetMu    sync.Mutex
	presetCache = map[string]*Config{}
)

// GetPreset returns a policy preset by name, or nil if not found
func GetPreset(name string) *Config {
	presetMu.Lock()
	defer presetMu.Unlock()

	if cached, ok := presetCache[name]; ok {
		return cached
	}

	path, ok := presetFiles[name]
	if !ok {
		return nil
	}

	data, err := presetFS.ReadFile(path)
	if err != nil {
		return nil
	}

	config, err := Parse(data)
	if err != nil {
		return nil
	}

	presetCache[name] = config
	return config
}

// ListPresetNames returns the names of all available presets, sorted.
func ListPresetNames() []string {
	names := make([]string, 0, len(presetFiles))
	for name := range presetFiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MustGetPreset returns a preset or panics (for tests)
func MustGetPreset(name string) *Config {
	p := GetPreset(name)
	if p == nil {
		panic(fmt.Sprintf("preset %q not found", name))
	}
	return p
}

// LoadFile reads a policy document from disk.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse policy %s: %w", path, err)
	}
	return config, nil
}

// Parse decodes a YAML policy document. Unknown keys are rejected so typos such as
// "method:" do not silently produce an empty allowlist.
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var config Config
	if err := dec.Decode(&config); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty policy document")
		}
		return nil, err
	}
	if len(config.Methods) == 0 {
		return nil, errors.New("policy must list at least one method")
	}
	for i, r := range config.Rules {
		if r.Name == "" {
			return nil, fmt.Errorf("rule %d has no name", i)
		}
		if r.Expr == "" {
			return nil, fmt.Errorf("rule %q has no expr", r.Name)
		}
	}
	return &config, nil
}

// Resolve picks the policy file when set, otherwise the named preset.
func Resolve(preset, file string) (*Config, error) {
	if file != "" {
		return LoadFile(file)
	}
	if preset == "" {
		preset = DefaultPreset
	}
	config := GetPreset(preset)
	if config == nil {
		return nil, fmt.Errorf("policy preset %q not found (available: %v)", preset, ListPresetNames())
	}
	return config, nil
}
