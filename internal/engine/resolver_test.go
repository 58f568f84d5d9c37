package engine_test

import (
	"testing"

	"bonusdesk/internal/domain"
	"bonusdesk/internal/engine"
)

func directory() []domain.Employee {
	return []domain.Employee{
		{ID: "row-1", EmployeeID: "E100", FirstName: "Maria", LastName: "Santos"},
		{ID: "row-2", EmployeeID: "E101", FirstName: "Jose", LastName: "Reyes"},
		{ID: "row-3", EmployeeID: "E102", FirstName: "Ana Luisa", LastName: "Cruz"},
	}
}

func TestResolveByPersonnelNumber(t *testing.T) {
	idx := engine.NewDirectoryIndex(directory())
	if got := idx.Resolve("E101"); got == nil || got.ID != "row-2" {
		t.Fatalf("resolve E101 = %+v", got)
	}
}

func TestResolveBothNameOrderings(t *testing.T) {
	idx := engine.NewDirectoryIndex(directory())
	for _, ref := range []string{"Santos, Maria", "Maria Santos", "santos, maria", "MARIA SANTOS", "  Santos,   Maria  "} {
		got := idx.Resolve(ref)
		if got == nil || got.ID != "row-1" {
			t.Fatalf("resolve %q = %+v", ref, got)
		}
	}
}

func TestResolveFlipsCommaForm(t *testing.T) {
	// "Cruz, Ana Luisa" is not indexed as written with extra spacing quirks,
	// but the comma flip must land on "ana luisa cruz".
	idx := engine.NewDirectoryIndex(directory())
	if got := idx.Resolve("Cruz, Ana Luisa"); got == nil || got.ID != "row-3" {
		t.Fatalf("comma flip failed: %+v", got)
	}
	if got := idx.Resolve("Ana Luisa Cruz"); got == nil || got.ID != "row-3" {
		t.Fatalf("multi-token flip failed: %+v", got)
	}
}

func TestResolveDropsMiddleTokens(t *testing.T) {
	// only the first and last token count, so a middle name or initial
	// in the reference still lands on the directory row
	idx := engine.NewDirectoryIndex(directory())
	for _, ref := range []string{"Maria Elena Santos", "Maria E. Santos"} {
		got := idx.Resolve(ref)
		if got == nil || got.ID != "row-1" {
			t.Fatalf("resolve %q = %+v, want row-1", ref, got)
		}
	}
	// reordering only happens through the comma form
	if got := idx.Resolve("Santos Maria"); got != nil {
		t.Fatalf("reversed reference without comma = %+v, want nil", got)
	}
}

func TestResolveNoFirstNameFallback(t *testing.T) {
	idx := engine.NewDirectoryIndex(directory())
	if got := idx.Resolve("Maria"); got != nil {
		t.Fatalf("lone first name must not match, got %+v", got)
	}
	if got := idx.Resolve("Santos,"); got != nil {
		t.Fatalf("comma form without first name must not match, got %+v", got)
	}
}

func TestResolveNoMatch(t *testing.T) {
	idx := engine.NewDirectoryIndex(directory())
	for _, ref := range []string{"", "  ", "-", "Nobody Known", "Known, Nobody", "E999"} {
		if got := idx.Resolve(ref); got != nil {
			t.Fatalf("resolve %q = %+v, want nil", ref, got)
		}
	}
}

func TestResolveFirstInsertedWinsOnCollision(t *testing.T) {
	dup := append(directory(), domain.Employee{ID: "row-9", EmployeeID: "E199", FirstName: "Maria", LastName: "Santos"})
	idx := engine.NewDirectoryIndex(dup)
	if got := idx.Resolve("Santos, Maria"); got == nil || got.ID != "row-1" {
		t.Fatalf("collision must keep first-indexed employee, got %+v", got)
	}
	// the duplicate still resolves by its own personnel number
	if got := idx.Resolve("E199"); got == nil || got.ID != "row-9" {
		t.Fatalf("resolve E199 = %+v", got)
	}
}
