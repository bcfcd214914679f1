package main

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleMachineJSON = `{
  "id": "door",
  "initial": "closed",
  "states": {
    "closed": {"on": {"OPEN": {"target": "open"}}},
    "open": {"on": {"CLOSE": {"target": "closed"}}}
  }
}`

func writeMachineFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "door.json")
	if err := os.WriteFile(path, []byte(sampleMachineJSON), 0o644); err != nil {
		t.Fatalf("write sample machine: %v", err)
	}
	return path
}

func TestSplitEvents(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"OPEN", []string{"OPEN"}},
		{"OPEN,CLOSE", []string{"OPEN", "CLOSE"}},
		{" OPEN , CLOSE ,", []string{"OPEN", "CLOSE"}},
	}
	for _, c := range cases {
		got := splitEvents(c.in)
		if len(got) != len(c.want) {
			t.Errorf("splitEvents(%q) = %v, want %v", c.in, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("splitEvents(%q)[%d] = %q, want %q", c.in, i, got[i], c.want[i])
			}
		}
	}
}

func TestLoadDocument_And_BuildDynamicMachine(t *testing.T) {
	path := writeMachineFile(t)

	doc, err := loadDocument(path)
	if err != nil {
		t.Fatalf("loadDocument() error = %v", err)
	}
	if doc.ID != "door" {
		t.Errorf("doc.ID = %q, want door", doc.ID)
	}

	machine, err := buildDynamicMachine(doc)
	if err != nil {
		t.Fatalf("buildDynamicMachine() error = %v", err)
	}
	if machine.Initial != "closed" {
		t.Errorf("machine.Initial = %q, want closed", machine.Initial)
	}
}

func TestLoadDocument_MissingFile(t *testing.T) {
	if _, err := loadDocument(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected an error for a missing machine file")
	}
}

func TestValidateCommand_ReportsStructuralErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	// An explicit compound state with no children is structurally invalid.
	if err := os.WriteFile(path, []byte(`{"id":"m","initial":"a","states":{"a":{"type":"compound"}}}`), 0o644); err != nil {
		t.Fatalf("write broken machine: %v", err)
	}
	if err := validateCommand([]string{"-machine", path}); err == nil {
		t.Error("expected validateCommand to report the structural error")
	}
}

func TestValidateCommand_AcceptsWellFormedMachine(t *testing.T) {
	path := writeMachineFile(t)
	if err := validateCommand([]string{"-machine", path}); err != nil {
		t.Errorf("validateCommand() error = %v", err)
	}
}

func TestExportCommand_RoundTripsMachine(t *testing.T) {
	path := writeMachineFile(t)
	if err := exportCommand([]string{"-machine", path, "-pretty=false"}); err != nil {
		t.Errorf("exportCommand() error = %v", err)
	}
}
