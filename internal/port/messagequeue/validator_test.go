package messagequeue

import (
	"strings"
	"testing"
)

func TestValidateValidRepairGroup(t *testing.T) {
	data := []byte(`{"contact_key":"9999999999"}`)
	if err := Validate(SubjectDedupRepair, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRepairGroupMissingKey(t *testing.T) {
	err := Validate(SubjectDedupRepair, []byte(`{"contact_key":""}`))
	if err == nil {
		t.Fatal("expected error for empty contact_key")
	}
	if !strings.Contains(err.Error(), "contact_key is required") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateRepairGroupWrongType(t *testing.T) {
	err := Validate(SubjectDedupRepair, []byte(`{"contact_key":42}`))
	if err == nil {
		t.Fatal("expected schema error")
	}
	if !strings.Contains(err.Error(), "schema validation failed") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateUnknownSubject(t *testing.T) {
	data := []byte(`{"foo":"bar"}`)
	if err := Validate("unknown.subject", data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateInvalidJSON(t *testing.T) {
	err := Validate(SubjectDedupRepair, []byte(`{not valid json`))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if !strings.Contains(err.Error(), "invalid JSON") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDLQSubject(t *testing.T) {
	if got := DLQSubject(SubjectDedupRepair); got != "leads.dedup.repair.dlq" {
		t.Errorf("DLQSubject = %q", got)
	}
}
