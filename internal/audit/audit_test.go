package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestAppend_CreatesFileAndWritesJSONL(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".novelflow")
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	t.Setenv("NF_DIR", dir)

	id1, err := Append(&Entry{Kind: "llm_call", Model: "test-model", ChapterID: "ch-1", Prompt: "p", Response: "r"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if id1 == "" {
		t.Fatalf("expected id")
	}
	_, err = Append(&Entry{Kind: "label", ParentID: id1, Label: "good", Reason: "ok"})
	if err != nil {
		t.Fatalf("append label: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = f.Close() }()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line is not JSON: %v", err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(entries))
	}
	if entries[0].ID != id1 || entries[0].ChapterID != "ch-1" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].ParentID != id1 {
		t.Errorf("label parent = %q, want %q", entries[1].ParentID, id1)
	}
}

func TestAppend_RequiresKind(t *testing.T) {
	t.Setenv("NF_DIR", t.TempDir())
	if _, err := Append(&Entry{Model: "m"}); err == nil {
		t.Fatal("expected error for entry without kind")
	}
	if _, err := Append(nil); err == nil {
		t.Fatal("expected error for nil entry")
	}
}

func TestAppend_NoProjectDir(t *testing.T) {
	t.Setenv("NF_DIR", "")
	t.Chdir(t.TempDir())
	if _, err := Append(&Entry{Kind: "llm_call"}); err == nil {
		t.Fatal("expected error outside a project")
	}
}
