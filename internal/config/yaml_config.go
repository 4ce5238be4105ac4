package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SetYamlConfig validates and writes key=value into the project's
// config.yaml, creating .novelflow/config.yaml in the working directory
// when no project exists yet. Dotted keys become nested mappings.
func SetYamlConfig(key, value string) (string, error) {
	if err := ValidateKey(key, value); err != nil {
		return "", err
	}
	configPath, err := FindConfigYAMLPath()
	if err != nil {
		dir, derr := FindProjectDir()
		if derr != nil {
			dir = ProjectDirName
		}
		if err := os.MkdirAll(dir, 0750); err != nil {
			return "", fmt.Errorf("failed to create %s: %w", dir, err)
		}
		configPath = filepath.Join(dir, "config.yaml")
	}
	if err := SetInYAML(configPath, key, value); err != nil {
		return "", err
	}
	return configPath, nil
}

// SetInYAML writes key=value into the YAML file at configPath, preserving
// other keys and comments where possible.
func SetInYAML(configPath, key, value string) error {
	data, err := os.ReadFile(configPath) // #nosec G304 - config file path from caller
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read config.yaml: %w", err)
	}

	// Parse into yaml.Node to preserve structure
	var root yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &root); err != nil {
			return fmt.Errorf("failed to parse config.yaml: %w", err)
		}
	}

	// Empty or comment-only files get a fresh document
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		root = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	}
	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		root.Content[0] = &yaml.Node{Kind: yaml.MappingNode}
		mapping = root.Content[0]
	}

	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		mapping = childMapping(mapping, part)
	}
	setScalar(mapping, parts[len(parts)-1], value)

	var buf strings.Builder
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&root); err != nil {
		return fmt.Errorf("failed to encode config.yaml: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to close encoder: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config.yaml: %w", err)
	}

	// Reload so changes take effect immediately
	if v != nil && v.ConfigFileUsed() == configPath {
		_ = v.ReadInConfig() // on disk either way; picked up next run
	}
	return nil
}

// childMapping returns the mapping stored under name, replacing a
// non-mapping value or appending a new one.
func childMapping(mapping *yaml.Node, name string) *yaml.Node {
	for i := 0; i < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == name {
			if mapping.Content[i+1].Kind != yaml.MappingNode {
				mapping.Content[i+1] = &yaml.Node{Kind: yaml.MappingNode}
			}
			return mapping.Content[i+1]
		}
	}
	child := &yaml.Node{Kind: yaml.MappingNode}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: name},
		child,
	)
	return child
}

func setScalar(mapping *yaml.Node, name, value string) {
	node := &yaml.Node{Kind: yaml.ScalarNode, Value: value}
	for i := 0; i < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == name {
			mapping.Content[i+1] = node
			return
		}
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: name},
		node,
	)
}
