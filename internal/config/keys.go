package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultModel  = "claude-haiku-4-5"
	defaultDBName = "novelflow.db"
)

// Key describes a configuration key nf understands.
type Key struct {
	Key         string      // Full key name (e.g., "analysis.concurrency")
	Description string      // Human-readable description
	Default     interface{} // Default value (nil = no default)
	Secret      bool        // Never echoed back by `nf config list`
	Validate    func(string) error
}

// EnvVar is the NF_* environment variable bound to the key.
func (k Key) EnvVar() string {
	return "NF_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(k.Key))
}

// Keys defines all known configuration keys.
var Keys = []Key{
	{
		Key:         "db",
		Description: "Database path (default: .novelflow/novelflow.db)",
		Default:     "",
	},
	{
		Key:         "actor",
		Description: "Name recorded in transition metadata",
		Default:     "",
	},
	{
		Key:         "json",
		Description: "Emit JSON instead of styled text",
		Default:     false,
		Validate:    validateBool,
	},
	{
		Key:         "ai.model",
		Description: "Anthropic model used by the consistency oracle",
		Default:     defaultModel,
	},
	{
		Key:         "ai.api-key",
		Description: "Anthropic API key (ANTHROPIC_API_KEY takes precedence)",
		Secret:      true,
	},
	{
		Key:         "analysis.concurrency",
		Description: "Oracle calls issued in parallel per analysis",
		Default:     5,
		Validate:    validatePositiveInt,
	},
	{
		Key:         "analysis.call-timeout",
		Description: "Timeout for one oracle call (e.g., 30s)",
		Default:     30 * time.Second,
		Validate:    validateDuration,
	},
	{
		Key:         "analysis.max-retries",
		Description: "Retries for a rate-limited or failing oracle call",
		Default:     2,
		Validate:    validateNonNegativeInt,
	},
	{
		Key:         "analysis.excerpt-chars",
		Description: "Characters of each prior chapter quoted in prompts",
		Default:     600,
		Validate:    validatePositiveInt,
	},
	{
		Key:         "audit.enabled",
		Description: "Append oracle prompts and replies to .novelflow/interactions.jsonl",
		Default:     false,
		Validate:    validateBool,
	},
	{
		Key:         "history.default-limit",
		Description: "Rows shown by `nf history` without --limit",
		Default:     50,
		Validate:    validatePositiveInt,
	},
}

var keyMap map[string]*Key

func init() {
	keyMap = make(map[string]*Key, len(Keys))
	for i := range Keys {
		keyMap[Keys[i].Key] = &Keys[i]
	}
}

// LookupKey returns the definition of a known key, or nil.
func LookupKey(key string) *Key {
	return keyMap[key]
}

// ValidateKey checks whether key is known and value is acceptable for it.
func ValidateKey(key, value string) error {
	k := keyMap[key]
	if k == nil {
		known := make([]string, 0, len(Keys))
		for _, k := range Keys {
			known = append(known, k.Key)
		}
		sort.Strings(known)
		return fmt.Errorf("unknown config key %q; valid keys: %s", key, strings.Join(known, ", "))
	}
	if k.Validate != nil {
		if err := k.Validate(value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}
	return nil
}

// Validation helpers

func validateBool(value string) error {
	switch strings.ToLower(value) {
	case "true", "false", "1", "0", "yes", "no":
		return nil
	default:
		return fmt.Errorf("must be true or false, got %q", value)
	}
}

func validatePositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be a number, got %q", value)
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1, got %d", n)
	}
	return nil
}

func validateNonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be a number, got %q", value)
	}
	if n < 0 {
		return fmt.Errorf("cannot be negative, got %d", n)
	}
	return nil
}

func validateDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("must be a duration like 30s or 2m, got %q", value)
	}
	if d <= 0 {
		return fmt.Errorf("must be positive, got %s", d)
	}
	return nil
}
