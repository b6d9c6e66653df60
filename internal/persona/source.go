package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"vtuber/internal/logging"
)

// Source supplies parsed profile dictionaries.
type Source interface {
	Profiles() ([]map[string]any, error)
}

// SliceSource is an in-memory Source.
type SliceSource []map[string]any

func (s SliceSource) Profiles() ([]map[string]any, error) {
	return s, nil
}

// DirSource reads every *.yaml, *.yml and *.json file in a directory.
// Files that fail to parse are logged and skipped.
type DirSource struct {
	Dir string
}

// IsProfileFile reports whether path has a profile file extension.
func IsProfileFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

func (d DirSource) Profiles() ([]map[string]any, error) {
	entries, err := os.ReadDir(d.Dir)
	if os.IsNotExist(err) {
		logging.PersonaWarn("persona directory not found: %s", d.Dir)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persona: reading %s: %w", d.Dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsProfileFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]map[string]any, 0, len(names))
	for _, name := range names {
		path := filepath.Join(d.Dir, name)
		data, err := readProfileFile(path)
		if err != nil {
			logging.PersonaError("failed to load persona from %s: %v", path, err)
			continue
		}
		out = append(out, data)
	}
	return out, nil
}

func readProfileFile(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(raw, &data)
	} else {
		err = yaml.Unmarshal(raw, &data)
	}
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("empty document")
	}
	return data, nil
}

// SaveProfile writes p to dir/<lower-cased name>.yaml and returns the path.
func SaveProfile(dir string, p Profile) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("persona: creating %s: %w", dir, err)
	}
	raw, err := yaml.Marshal(p.document())
	if err != nil {
		return "", fmt.Errorf("persona: encoding %s: %w", p.Name, err)
	}
	path := filepath.Join(dir, p.Key()+".yaml")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("persona: writing %s: %w", path, err)
	}
	return path, nil
}

// EnsureDefaults writes DefaultProfiles into dir when it contains no profile
// files. It reports whether anything was written.
func EnsureDefaults(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}
	for _, e := range entries {
		if !e.IsDir() && IsProfileFile(e.Name()) {
			return false, nil
		}
	}
	for _, p := range DefaultProfiles() {
		if _, err := SaveProfile(dir, p); err != nil {
			return false, err
		}
	}
	logging.Persona("created default personas in %s", dir)
	return true, nil
}
