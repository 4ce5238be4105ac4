package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeProjectConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, ProjectDirName)
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.Fatalf("failed to create %s: %v", dir, err)
	}
	if content != "" {
		if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}
	}
	t.Chdir(tmpDir)
	return dir
}

func TestInitialize(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if v == nil {
		t.Fatal("viper instance is nil after Initialize()")
	}
}

func TestDefaults(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	tests := []struct {
		key      string
		expected interface{}
		getter   func(string) interface{}
	}{
		{"json", false, func(k string) interface{} { return GetBool(k) }},
		{"db", "", func(k string) interface{} { return GetString(k) }},
		{"actor", "", func(k string) interface{} { return GetString(k) }},
		{"ai.model", "claude-haiku-4-5", func(k string) interface{} { return GetString(k) }},
		{"analysis.concurrency", 5, func(k string) interface{} { return GetInt(k) }},
		{"analysis.call-timeout", 30 * time.Second, func(k string) interface{} { return GetDuration(k) }},
		{"analysis.max-retries", 2, func(k string) interface{} { return GetInt(k) }},
		{"analysis.excerpt-chars", 600, func(k string) interface{} { return GetInt(k) }},
		{"audit.enabled", false, func(k string) interface{} { return GetBool(k) }},
		{"history.default-limit", 50, func(k string) interface{} { return GetInt(k) }},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := tt.getter(tt.key); got != tt.expected {
				t.Errorf("Get(%q) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestEnvironmentBinding(t *testing.T) {
	tests := []struct {
		envVar   string
		key      string
		value    string
		expected interface{}
		getter   func(string) interface{}
	}{
		{"NF_JSON", "json", "true", true, func(k string) interface{} { return GetBool(k) }},
		{"NF_ACTOR", "actor", "testuser", "testuser", func(k string) interface{} { return GetString(k) }},
		{"NF_DB", "db", "/tmp/test.db", "/tmp/test.db", func(k string) interface{} { return GetString(k) }},
		{"NF_ANALYSIS_CALL_TIMEOUT", "analysis.call-timeout", "10s", 10 * time.Second, func(k string) interface{} { return GetDuration(k) }},
		{"NF_ANALYSIS_CONCURRENCY", "analysis.concurrency", "2", 2, func(k string) interface{} { return GetInt(k) }},
	}

	for _, tt := range tests {
		t.Run(tt.envVar, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.value)
			if err := Initialize(); err != nil {
				t.Fatalf("Initialize() returned error: %v", err)
			}
			if got := tt.getter(tt.key); got != tt.expected {
				t.Errorf("Get(%q) with %s=%s = %v, want %v", tt.key, tt.envVar, tt.value, got, tt.expected)
			}
		})
	}
}

func TestEnvVarNames(t *testing.T) {
	if got := LookupKey("analysis.call-timeout").EnvVar(); got != "NF_ANALYSIS_CALL_TIMEOUT" {
		t.Errorf("EnvVar() = %q", got)
	}
}

func TestConfigFile(t *testing.T) {
	writeProjectConfig(t, `
json: true
actor: configuser
analysis:
  call-timeout: 15s
  concurrency: 3
`)
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	if got := GetBool("json"); got != true {
		t.Errorf("GetBool(json) = %v, want true", got)
	}
	if got := GetString("actor"); got != "configuser" {
		t.Errorf("GetString(actor) = %q, want \"configuser\"", got)
	}
	if got := GetDuration("analysis.call-timeout"); got != 15*time.Second {
		t.Errorf("GetDuration(analysis.call-timeout) = %v, want 15s", got)
	}
	if got := GetInt("analysis.concurrency"); got != 3 {
		t.Errorf("GetInt(analysis.concurrency) = %d, want 3", got)
	}
	if !strings.HasSuffix(ConfigFileUsed(), filepath.Join(ProjectDirName, "config.yaml")) {
		t.Errorf("ConfigFileUsed() = %q", ConfigFileUsed())
	}
}

func TestConfigPrecedence(t *testing.T) {
	writeProjectConfig(t, `json: false`)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetBool("json"); got != false {
		t.Errorf("GetBool(json) from config file = %v, want false", got)
	}

	t.Setenv("NF_JSON", "true")
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetBool("json"); got != true {
		t.Errorf("GetBool(json) with env var = %v, want true (env should override config)", got)
	}
}

func TestDatabasePath(t *testing.T) {
	dir := writeProjectConfig(t, "")
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	got := DatabasePath()
	want := filepath.Join(dir, "novelflow.db")
	// macOS temp dirs resolve through /private
	if !strings.HasSuffix(got, filepath.Join(filepath.Base(filepath.Dir(dir)), ProjectDirName, "novelflow.db")) {
		t.Errorf("DatabasePath() = %q, want %q", got, want)
	}

	Set("db", "/elsewhere/x.db")
	if got := DatabasePath(); got != "/elsewhere/x.db" {
		t.Errorf("DatabasePath() with db set = %q", got)
	}
}

func TestAIAPIKeyPrecedence(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	Set("ai.api-key", "from-config")
	if got := AIAPIKey(); got != "from-config" {
		t.Errorf("AIAPIKey() = %q, want from-config", got)
	}
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	if got := AIAPIKey(); got != "from-env" {
		t.Errorf("AIAPIKey() = %q, want from-env", got)
	}
}

func TestSetAndGet(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	Set("test-key", "test-value")
	if got := GetString("test-key"); got != "test-value" {
		t.Errorf("GetString(test-key) = %q, want \"test-value\"", got)
	}
	Set("test-int", 42)
	if got := GetInt("test-int"); got != 42 {
		t.Errorf("GetInt(test-int) = %d, want 42", got)
	}
	if settings := AllSettings(); settings["test-key"] != "test-value" {
		t.Errorf("AllSettings() missing test-key: %v", settings["test-key"])
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key, value string
		wantErr    bool
	}{
		{"analysis.concurrency", "4", false},
		{"analysis.concurrency", "0", true},
		{"analysis.concurrency", "many", true},
		{"analysis.call-timeout", "45s", false},
		{"analysis.call-timeout", "soon", true},
		{"analysis.max-retries", "0", false},
		{"audit.enabled", "yes", false},
		{"audit.enabled", "maybe", true},
		{"ai.model", "claude-sonnet-4-5", false},
		{"no.such.key", "x", true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			err := ValidateKey(tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKey(%q, %q) error = %v, wantErr %v", tt.key, tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestSetYamlConfig(t *testing.T) {
	dir := writeProjectConfig(t, "# project settings\nactor: sam\n")
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	path, err := SetYamlConfig("analysis.concurrency", "7")
	if err != nil {
		t.Fatalf("SetYamlConfig: %v", err)
	}
	if filepath.Base(filepath.Dir(path)) != filepath.Base(dir) {
		t.Errorf("wrote %q, want a file under %q", path, dir)
	}
	if _, err := SetYamlConfig("analysis.call-timeout", "1m"); err != nil {
		t.Fatalf("SetYamlConfig: %v", err)
	}
	if _, err := SetYamlConfig("analysis.concurrency", "zero"); err == nil {
		t.Error("expected validation error")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	content := string(data)
	for _, want := range []string{"# project settings", "actor: sam", "concurrency: 7", "call-timeout: 1m"} {
		if !strings.Contains(content, want) {
			t.Errorf("config.yaml missing %q:\n%s", want, content)
		}
	}

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetInt("analysis.concurrency"); got != 7 {
		t.Errorf("GetInt(analysis.concurrency) = %d, want 7", got)
	}
	if got := GetDuration("analysis.call-timeout"); got != time.Minute {
		t.Errorf("GetDuration(analysis.call-timeout) = %v, want 1m", got)
	}
}

func TestNilViperBehavior(t *testing.T) {
	savedV := v
	v = nil
	defer func() { v = savedV }()

	if got := GetString("any-key"); got != "" {
		t.Errorf("GetString with nil viper = %q, want \"\"", got)
	}
	if got := GetBool("any-key"); got != false {
		t.Errorf("GetBool with nil viper = %v, want false", got)
	}
	if got := GetInt("any-key"); got != 0 {
		t.Errorf("GetInt with nil viper = %d, want 0", got)
	}
	if got := GetDuration("any-key"); got != 0 {
		t.Errorf("GetDuration with nil viper = %v, want 0", got)
	}
	if got := GetStringSlice("any-key"); got == nil || len(got) != 0 {
		t.Errorf("GetStringSlice with nil viper = %v, want empty slice", got)
	}
	if got := AllSettings(); got == nil || len(got) != 0 {
		t.Errorf("AllSettings with nil viper = %v, want empty map", got)
	}
	if got := DefaultAIModel(); got != defaultModel {
		t.Errorf("DefaultAIModel with nil viper = %q", got)
	}

	Set("any-key", "any-value") // no-op
}
