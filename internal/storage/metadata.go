package storage

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// validMetadataKeyRe validates history metadata key names.
// Allows alphanumeric, underscore, and dot (for nested names like "review.round").
var validMetadataKeyRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// ValidateMetadataKey checks that a metadata key is a plain dotted name.
// Keys must start with a letter or underscore and contain only
// alphanumeric characters, underscores, and dots.
func ValidateMetadataKey(key string) error {
	if !validMetadataKeyRe.MatchString(key) {
		return fmt.Errorf("invalid metadata key %q: must match [a-zA-Z_][a-zA-Z0-9_.]*", key)
	}
	return nil
}

// ValidateMetadata checks every key of a transition's metadata and that the
// map survives a JSON round trip, since that is how history stores it.
func ValidateMetadata(meta map[string]any) error {
	for k := range meta {
		if err := ValidateMetadataKey(k); err != nil {
			return err
		}
	}
	if _, err := json.Marshal(meta); err != nil {
		return fmt.Errorf("metadata is not JSON-encodable: %w", err)
	}
	return nil
}
