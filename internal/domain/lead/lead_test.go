package lead

import (
	"testing"
	"time"
)

func TestChanges_Normalize(t *testing.T) {
	c := Changes{FieldContactKey: "  9999999999 ", FieldName: " Ada "}
	c.Normalize()
	if c[FieldContactKey] != "9999999999" {
		t.Errorf("contact key = %q, want trimmed", c[FieldContactKey])
	}
	if c[FieldName] != " Ada " {
		t.Errorf("name = %q, want untouched", c[FieldName])
	}
}

func TestChanges_NormalizeKeepsInnerSpaces(t *testing.T) {
	c := Changes{FieldContactKey: " 99 99 "}
	c.Normalize()
	if c[FieldContactKey] != "99 99" {
		t.Errorf("contact key = %q, want %q", c[FieldContactKey], "99 99")
	}
}

func TestChanges_Validate(t *testing.T) {
	if err := (Changes{FieldStage: "New", FieldOwner: "alice"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := Changes{"is_latest": "1"}.Validate()
	if err == nil {
		t.Fatal("expected error for non-writable field")
	}
	if got := err.Error(); got != "unknown field: is_latest" {
		t.Errorf("error = %q", got)
	}
}

func TestChanges_Fields(t *testing.T) {
	c := Changes{FieldSource: "", FieldContactKey: "1", FieldPipeline: "x"}
	got := c.Fields()
	want := []Field{FieldContactKey, FieldPipeline, FieldSource}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestLead_SetAndValue(t *testing.T) {
	var l Lead
	for f := range writable {
		l.Set(f, string(f)+"-v")
	}
	for f := range writable {
		if got := l.Value(f); got != string(f)+"-v" {
			t.Errorf("Value(%s) = %q", f, got)
		}
	}
}

func TestSummarizeAndSiblings(t *testing.T) {
	now := time.Now()
	group := []Lead{
		{ID: "L3", CreatedAt: now},
		{ID: "L2", CreatedAt: now.Add(-time.Minute), CreatedBy: "bob", Country: "IN", LandingPage: "/p"},
		{ID: "L1", CreatedAt: now.Add(-2 * time.Minute)},
	}

	sum := Summarize(group)
	if sum.DuplicateCount != 2 || sum.CanonicalID != "L3" {
		t.Errorf("summary = %+v", sum)
	}

	list := Siblings(group)
	if list.CanonicalID != "L3" {
		t.Errorf("canonical = %q", list.CanonicalID)
	}
	if len(list.Rows) != 2 || list.Rows[0].LeadID != "L2" || list.Rows[1].LeadID != "L1" {
		t.Fatalf("rows = %+v", list.Rows)
	}
	if list.Rows[0].Owner != "bob" || list.Rows[0].PageURL != "/p" || list.Rows[0].Country != "IN" {
		t.Errorf("projection = %+v", list.Rows[0])
	}
}

func TestSummarize_Empty(t *testing.T) {
	if got := Summarize(nil); got.DuplicateCount != 0 || got.CanonicalID != "" {
		t.Errorf("got %+v", got)
	}
	if got := Siblings(nil); got.Rows == nil || len(got.Rows) != 0 {
		t.Errorf("got %+v", got)
	}
}
