package onboarding

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func section(t *testing.T, raw string) Section {
	t.Helper()
	var s Section
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("section %s: %v", raw, err)
	}
	return s
}

func TestApply_UnknownSection(t *testing.T) {
	c := DefaultCatalog()
	rec := NewRecord("u1")
	for _, id := range []int{0, -1, 11} {
		if err := rec.Apply(c, id, Section{}); !errors.Is(err, ErrUnknownSection) {
			t.Fatalf("Apply(%d) error = %v, want ErrUnknownSection", id, err)
		}
	}
	if len(rec.CompletedSteps) != 0 || len(rec.Sections) != 0 {
		t.Fatal("rejected section must not touch the record")
	}
}

func TestApply_ShallowMerge(t *testing.T) {
	c := DefaultCatalog()
	rec := NewRecord("u1")

	if err := rec.Apply(c, 1, section(t, `{"name":"Ada","address":{"city":"Paris","zip":"75001"},"tags":["a","b"]}`)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := rec.Apply(c, 1, section(t, `{"address":{"city":"Lyon"},"tags":["c"],"phone":"123"}`)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	got := rec.Sections[1]
	want := section(t, `{"name":"Ada","address":{"city":"Lyon"},"tags":["c"],"phone":"123"}`)
	if len(got) != len(want) {
		t.Fatalf("merged keys = %d, want %d", len(got), len(want))
	}
	for k, v := range want {
		if string(got[k]) != string(v) {
			t.Fatalf("key %q = %s, want %s", k, got[k], v)
		}
	}
}

func TestApply_Idempotent(t *testing.T) {
	c := DefaultCatalog()
	rec := NewRecord("u1")
	partial := section(t, `{"handle":"@ada","followers":1200}`)

	if err := rec.Apply(c, 2, partial); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	firstSteps := append([]int(nil), rec.CompletedSteps...)
	firstBlob, _ := json.Marshal(rec.Sections[2])

	if err := rec.Apply(c, 2, partial); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	secondBlob, _ := json.Marshal(rec.Sections[2])

	if !reflect.DeepEqual(firstSteps, rec.CompletedSteps) {
		t.Fatalf("completed steps changed: %v -> %v", firstSteps, rec.CompletedSteps)
	}
	if string(firstBlob) != string(secondBlob) {
		t.Fatalf("blob changed: %s -> %s", firstBlob, secondBlob)
	}
}

func TestApply_CompletionArithmetic(t *testing.T) {
	c := DefaultCatalog()
	rec := NewRecord("u1")
	for _, id := range []int{1, 2, 3} {
		if err := rec.Apply(c, id, Section{}); err != nil {
			t.Fatalf("Apply(%d) error = %v", id, err)
		}
	}
	if rec.CompletionPercentage != 30 || rec.IsCompleted {
		t.Fatalf("after 3 steps: pct=%d completed=%v", rec.CompletionPercentage, rec.IsCompleted)
	}
	for id := 4; id <= 10; id++ {
		if err := rec.Apply(c, id, Section{}); err != nil {
			t.Fatalf("Apply(%d) error = %v", id, err)
		}
	}
	if rec.CompletionPercentage != 100 || !rec.IsCompleted {
		t.Fatalf("after 10 steps: pct=%d completed=%v", rec.CompletionPercentage, rec.IsCompleted)
	}
	if rec.CurrentStep != 10 {
		t.Fatalf("CurrentStep = %d, want 10", rec.CurrentStep)
	}
}

func TestApply_Rounding(t *testing.T) {
	c, err := NewCatalog([]Step{
		{ID: 1, Key: "a", Stage: "pre-meeting"},
		{ID: 2, Key: "b", Stage: "pre-meeting"},
		{ID: 3, Key: "c", Stage: "post-meeting"},
	})
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	rec := NewRecord("u1")
	_ = rec.Apply(c, 1, nil)
	if rec.CompletionPercentage != 33 {
		t.Fatalf("1/3 = %d, want 33", rec.CompletionPercentage)
	}
	_ = rec.Apply(c, 2, nil)
	if rec.CompletionPercentage != 67 {
		t.Fatalf("2/3 = %d, want 67", rec.CompletionPercentage)
	}
}

func TestApply_CurrentStepNeverRegresses(t *testing.T) {
	c := DefaultCatalog()
	rec := NewRecord("u1")

	_ = rec.Apply(c, 1, nil)
	if rec.CurrentStep != 2 {
		t.Fatalf("CurrentStep = %d, want 2", rec.CurrentStep)
	}
	_ = rec.Apply(c, 5, nil)
	if rec.CurrentStep != 6 {
		t.Fatalf("CurrentStep = %d, want 6", rec.CurrentStep)
	}
	_ = rec.Apply(c, 2, nil)
	if rec.CurrentStep != 6 {
		t.Fatalf("resubmitting an earlier step moved CurrentStep to %d", rec.CurrentStep)
	}
	if !reflect.DeepEqual(rec.CompletedSteps, []int{1, 2, 5}) {
		t.Fatalf("CompletedSteps = %v", rec.CompletedSteps)
	}
}

func TestApply_ZeroRecord(t *testing.T) {
	c := DefaultCatalog()
	var rec Record
	if err := rec.Apply(c, 1, section(t, `{"a":1}`)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if rec.CurrentStep != 2 || rec.Sections[1] == nil {
		t.Fatalf("unexpected record: %+v", rec)
	}
}
