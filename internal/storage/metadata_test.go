package storage

import (
	"strings"
	"testing"
	"time"
)

func TestValidateMetadataKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"actor", false},
		{"_private", false},
		{"review.round", false},
		{"editor2", false},
		{"", true},
		{"2nd", true},
		{"has space", true},
		{"dash-key", true},
		{"quote\"", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := ValidateMetadataKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMetadataKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestValidateMetadata(t *testing.T) {
	if err := ValidateMetadata(map[string]any{"actor": "ada", "round": 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateMetadata(map[string]any{"bad key": "x"}); err == nil {
		t.Fatal("expected error for bad key")
	}
	if err := ValidateMetadata(map[string]any{"ch": make(chan int)}); err == nil {
		t.Fatal("expected error for unencodable value")
	}
}

func TestSQLiteConnString(t *testing.T) {
	t.Setenv("NF_LOCK_TIMEOUT", "")

	got := SQLiteConnString("/tmp/nf.db", false)
	for _, want := range []string{"file:/tmp/nf.db?", "foreign_keys(1)", "busy_timeout(5000)", "journal_mode(WAL)"} {
		if !strings.Contains(got, want) {
			t.Errorf("SQLiteConnString() = %q, missing %q", got, want)
		}
	}

	if got := SQLiteConnString("/tmp/nf.db", true); !strings.Contains(got, "mode=ro") || strings.Contains(got, "WAL") {
		t.Errorf("read-only conn string = %q", got)
	}
	if got := SQLiteConnString(":memory:", false); !strings.HasPrefix(got, "file::memory:?") {
		t.Errorf("memory conn string = %q", got)
	}
	if got := SQLiteConnString("  ", false); got != "" {
		t.Errorf("blank path gave %q", got)
	}
}

func TestSQLiteConnStringKeepsExistingPragmas(t *testing.T) {
	got := SQLiteConnString("file:x.db?_pragma=busy_timeout(10)", false)
	if strings.Count(got, "busy_timeout") != 1 {
		t.Errorf("busy_timeout duplicated: %q", got)
	}
	if !strings.Contains(got, "&_pragma=foreign_keys(1)") {
		t.Errorf("foreign_keys not appended: %q", got)
	}
}

func TestLockTimeoutOverride(t *testing.T) {
	t.Setenv("NF_LOCK_TIMEOUT", "250ms")
	if got := busyTimeout(); got != 250*time.Millisecond {
		t.Errorf("busyTimeout() = %v", got)
	}
	if got := SQLiteConnString("a.db", false); !strings.Contains(got, "busy_timeout(250)") {
		t.Errorf("override not applied: %q", got)
	}

	t.Setenv("NF_LOCK_TIMEOUT", "soon")
	if got := busyTimeout(); got != DefaultBusyTimeout {
		t.Errorf("bad override should fall back, got %v", got)
	}
}
