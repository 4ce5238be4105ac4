// Package config provides layered configuration for nf: command-line flags,
// NF_* environment variables, .novelflow/config.yaml and built-in defaults,
// in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProjectDirName is the per-project directory holding the database, config
// and audit log.
const ProjectDirName = ".novelflow"

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
func Initialize() error {
	v = viper.New()

	v.SetConfigType("yaml")

	// Project config wins over the user-level one.
	configFileSet := false
	if path, err := FindConfigYAMLPath(); err == nil {
		v.SetConfigFile(path)
		configFileSet = true
	}
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			userPath := filepath.Join(configDir, "novelflow", "config.yaml")
			if _, err := os.Stat(userPath); err == nil {
				v.SetConfigFile(userPath)
				configFileSet = true
			}
		}
	}

	// NF_ANALYSIS_CALL_TIMEOUT -> analysis.call-timeout
	v.SetEnvPrefix("NF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for _, k := range Keys {
		if k.Default != nil {
			v.SetDefault(k.Key, k.Default)
		}
	}

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// ResetForTesting drops the singleton so the next Initialize starts clean.
func ResetForTesting() {
	v = nil
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetFloat64 retrieves a float configuration value
func GetFloat64(key string) float64 {
	if v == nil {
		return 0
	}
	return v.GetFloat64(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice retrieves a string slice configuration value
func GetStringSlice(key string) []string {
	if v == nil {
		return []string{}
	}
	return v.GetStringSlice(key)
}

// IsSet reports whether key has a value from any source other than defaults.
func IsSet(key string) bool {
	if v == nil {
		return false
	}
	return v.IsSet(key)
}

// Set sets a configuration value (runtime override, not persisted)
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns all configuration settings as a map
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// DefaultAIModel returns the model used for consistency analysis.
func DefaultAIModel() string {
	if m := GetString("ai.model"); m != "" {
		return m
	}
	return defaultModel
}

// AIAPIKey returns the Anthropic API key. ANTHROPIC_API_KEY takes
// precedence over the ai.api-key setting.
func AIAPIKey() string {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key
	}
	return GetString("ai.api-key")
}

// DatabasePath resolves the db setting. An empty setting places the
// database in the nearest .novelflow directory, or the current one.
func DatabasePath() string {
	if p := GetString("db"); p != "" {
		return p
	}
	if dir, err := FindProjectDir(); err == nil {
		return filepath.Join(dir, defaultDBName)
	}
	return filepath.Join(ProjectDirName, defaultDBName)
}

// FindProjectDir walks up from the working directory looking for a
// .novelflow directory.
func FindProjectDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, ProjectDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		if dir == filepath.Dir(dir) {
			break
		}
	}
	return "", fmt.Errorf("no %s directory found in current directory or parents", ProjectDirName)
}

// FindConfigYAMLPath finds .novelflow/config.yaml, walking up from the CWD.
func FindConfigYAMLPath() (string, error) {
	dir, err := FindProjectDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("no %s/config.yaml found: %w", ProjectDirName, err)
	}
	return path, nil
}
