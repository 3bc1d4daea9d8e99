package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Get resolves a dotted key in the configuration file and returns its
// value. Scalars render bare; mappings and sequences render as YAML.
func Get(path, key string) (string, error) {
	root, err := loadRaw(path)
	if err != nil {
		return "", err
	}
	node, err := findKey(root, key, false)
	if err != nil {
		return "", err
	}
	if node.Kind == yaml.ScalarNode {
		return node.Value, nil
	}
	out, err := yaml.Marshal(node)
	if err != nil {
		return "", NewParseError(path, err)
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// Set assigns a dotted key in the configuration file, creating
// intermediate mappings as needed. The value is parsed as YAML and
// falls back to a literal string.
func Set(path, key, value string) error {
	root, err := loadRaw(path)
	if err != nil {
		return err
	}
	node, err := findKey(root, key, true)
	if err != nil {
		return err
	}
	*node = parseValue(value)
	return saveRaw(path, root)
}

// Unset removes a dotted key from the configuration file.
func Unset(path, key string) error {
	root, err := loadRaw(path)
	if err != nil {
		return err
	}

	parent := root
	name := key
	if idx := strings.LastIndex(key, "."); idx >= 0 {
		parent, err = findKey(root, key[:idx], false)
		if err != nil {
			return err
		}
		name = key[idx+1:]
	}
	if parent.Kind != yaml.MappingNode {
		return NewNoSuchKeyError(key)
	}
	for i := 0; i+1 < len(parent.Content); i += 2 {
		if parent.Content[i].Value == name {
			parent.Content = append(parent.Content[:i], parent.Content[i+2:]...)
			return saveRaw(path, root)
		}
	}
	return NewNoSuchKeyError(key)
}

// findKey walks a dotted key through the node tree. Mapping segments
// select by key, sequence segments by numeric index. With create,
// missing mapping entries are added as empty mappings.
func findKey(root *yaml.Node, key string, create bool) (*yaml.Node, error) {
	node := root
	for _, seg := range strings.Split(key, ".") {
		switch node.Kind {
		case yaml.MappingNode:
			found := false
			for i := 0; i+1 < len(node.Content); i += 2 {
				if node.Content[i].Value == seg {
					node = node.Content[i+1]
					found = true
					break
				}
			}
			if found {
				continue
			}
			if !create {
				return nil, NewNoSuchKeyError(key)
			}
			k := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: seg}
			v := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			node.Content = append(node.Content, k, v)
			node = v
		case yaml.SequenceNode:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node.Content) {
				return nil, NewNoSuchKeyError(key)
			}
			node = node.Content[idx]
		default:
			return nil, NewNoSuchKeyError(key)
		}
	}
	return node, nil
}

// parseValue decodes a user-supplied value as YAML, keeping it a
// literal string when it does not parse on its own.
func parseValue(value string) yaml.Node {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(value), &doc); err == nil &&
		len(doc.Content) == 1 {
		return *doc.Content[0]
	}
	return yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

// loadRaw parses the configuration file into a raw node tree. A
// missing file yields an empty mapping so edits bootstrap the file.
func loadRaw(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}, nil
		}
		return nil, NewIOError(path, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, NewParseError(path, err)
	}
	if len(doc.Content) == 0 {
		return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, NewParseError(path, fmt.Errorf("top level is not a mapping"))
	}
	return root, nil
}

// saveRaw writes the raw node tree back to the configuration file.
func saveRaw(path string, root *yaml.Node) error {
	data, err := yaml.Marshal(root)
	if err != nil {
		return NewParseError(path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return NewIOError(path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return NewIOError(path, err)
	}
	return nil
}
