package storymap

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/grovetools/storymap/errors"
	"gopkg.in/yaml.v3"
)

// LoadSnapshot reads a FlatParentMap from path. Files ending in .yml or
// .yaml are parsed as YAML, anything else as JSON.
func LoadSnapshot(path string) (FlatParentMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FlatParentMap{}, errors.SnapshotError(path, err)
	}
	return ParseSnapshot(data, isYAML(path))
}

// ParseSnapshot decodes a snapshot document.
func ParseSnapshot(data []byte, yamlFormat bool) (FlatParentMap, error) {
	var flat FlatParentMap
	if yamlFormat {
		var doc snapshotYAML
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return flat, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to parse snapshot")
		}
		return doc.toFlat(), nil
	}
	if err := json.Unmarshal(data, &flat); err != nil {
		return flat, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to parse snapshot")
	}
	return flat, nil
}

// SaveSnapshot writes flat to path, replacing any previous file atomically.
func SaveSnapshot(path string, flat FlatParentMap) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(fromFlat(flat))
	} else {
		data, err = json.MarshalIndent(flat, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to encode snapshot")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.SnapshotError(path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.SnapshotError(tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.SnapshotError(path, err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yml" || ext == ".yaml"
}

// snapshotYAML mirrors FlatParentMap with yaml tags so hand-written
// snapshots read naturally.
type snapshotYAML struct {
	Root   string `yaml:"root"`
	Groups []struct {
		ParentNodeType string `yaml:"parent_node_type"`
		ParentNodeName string `yaml:"parent_node_name"`
		Children       []struct {
			Name            string `yaml:"name"`
			Type            string `yaml:"type"`
			SequentialOrder *int   `yaml:"sequential_order,omitempty"`
		} `yaml:"children"`
	} `yaml:"groups"`
}

func (s snapshotYAML) toFlat() FlatParentMap {
	flat := FlatParentMap{Root: s.Root}
	for _, g := range s.Groups {
		group := ChildGroup{ParentNodeType: g.ParentNodeType, ParentNodeName: g.ParentNodeName}
		for _, c := range g.Children {
			group.Children = append(group.Children, SnapshotNode{
				Name:            c.Name,
				Type:            c.Type,
				SequentialOrder: copyInt(c.SequentialOrder),
			})
		}
		flat.Groups = append(flat.Groups, group)
	}
	return flat
}

func fromFlat(flat FlatParentMap) map[string]interface{} {
	groups := make([]map[string]interface{}, 0, len(flat.Groups))
	for _, g := range flat.Groups {
		children := make([]map[string]interface{}, 0, len(g.Children))
		for _, c := range g.Children {
			child := map[string]interface{}{"name": c.Name, "type": c.Type}
			if c.SequentialOrder != nil {
				child["sequential_order"] = *c.SequentialOrder
			}
			children = append(children, child)
		}
		groups = append(groups, map[string]interface{}{
			"parent_node_type": g.ParentNodeType,
			"parent_node_name": g.ParentNodeName,
			"children":         children,
		})
	}
	return map[string]interface{}{"root": flat.Root, "groups": groups}
}
