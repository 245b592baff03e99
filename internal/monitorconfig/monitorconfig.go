// Package monitorconfig loads the on-disk monitor/network/trigger
// directories: one JSON file per entity, strict-field decoding, with
// referential integrity checked at load time. Staged the same way as a
// typical config loader (defaults, then parse, then validate), but over a
// directory tree of JSON documents rather than a single file.
package monitorconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/openzeppelin-fork/monitor-go/pkg/model"
)

// Set is everything loaded from one configuration root.
type Set struct {
	Monitors []model.Monitor
	Networks []model.Network
	Triggers []model.Trigger
}

// Load reads <root>/monitors, <root>/networks, <root>/triggers and
// validates referential integrity across them.
func Load(root string) (*Set, error) {
	var set Set

	if err := decodeDir(filepath.Join(root, "monitors"), &set.Monitors); err != nil {
		return nil, err
	}
	if err := decodeDir(filepath.Join(root, "networks"), &set.Networks); err != nil {
		return nil, err
	}
	if err := decodeDir(filepath.Join(root, "triggers"), &set.Triggers); err != nil {
		return nil, err
	}

	if err := set.validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

// decodeDir strict-decodes every *.json file directly under dir into one
// element of *out appended in filename order (deterministic load order),
// rejecting unknown fields.
func decodeDir[T any](dir string, out *[]T) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("monitorconfig: reading %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("monitorconfig: reading %s: %w", path, err)
		}
		var v T
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("monitorconfig: decoding %s: %w", path, err)
		}
		*out = append(*out, v)
	}
	return nil
}

// validate requires every monitor's referenced networks and triggers to
// resolve to a loaded definition.
func (s *Set) validate() error {
	networkIDs := make(map[string]struct{}, len(s.Networks))
	for _, n := range s.Networks {
		networkIDs[n.ID] = struct{}{}
	}
	triggerIDs := make(map[string]struct{}, len(s.Triggers))
	for _, t := range s.Triggers {
		triggerIDs[t.ID] = struct{}{}
	}

	for _, m := range s.Monitors {
		for _, netID := range m.Networks {
			if _, ok := networkIDs[netID]; !ok {
				return fmt.Errorf("monitorconfig: monitor %q references unknown network %q", m.Name, netID)
			}
		}
		for _, trigID := range m.Triggers {
			if _, ok := triggerIDs[trigID]; !ok {
				return fmt.Errorf("monitorconfig: monitor %q references unknown trigger %q", m.Name, trigID)
			}
		}
	}
	return nil
}

// NetworksByID indexes Networks for lookup by id.
func (s *Set) NetworksByID() map[string]model.Network {
	out := make(map[string]model.Network, len(s.Networks))
	for _, n := range s.Networks {
		out[n.ID] = n
	}
	return out
}

// MonitorsForNetwork returns every non-paused monitor that watches netID.
func (s *Set) MonitorsForNetwork(netID string) []model.Monitor {
	var out []model.Monitor
	for _, m := range s.Monitors {
		if m.Paused {
			continue
		}
		for _, n := range m.Networks {
			if n == netID {
				out = append(out, m)
				break
			}
		}
	}
	return out
}
