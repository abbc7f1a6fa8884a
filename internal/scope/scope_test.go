package scope

import "testing"

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		sel  Selection
		want Scope
	}{
		{"nothing selected is global", Selection{}, Global()},
		{"collection only", Selection{CollectionID: "c1"}, Collection("c1")},
		{"content only", Selection{ContentID: "v1"}, Content("v1")},
		{"content wins over collection", Selection{ContentID: "v1", CollectionID: "c1"}, Content("v1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.sel); got != tt.want {
				t.Errorf("Resolve(%+v) = %v, want %v", tt.sel, got, tt.want)
			}
		})
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		sc   Scope
		want string
	}{
		{Global(), "global"},
		{Collection("c1"), "collection:c1"},
		{Content("v1"), "content:v1"},
		{Scope{}, "global"},
	}

	for _, tt := range tests {
		if got := tt.sc.Key(); got != tt.want {
			t.Errorf("Key() = %q, want %q", got, tt.want)
		}
	}
}

func TestStructuralEquality(t *testing.T) {
	if Content("v1") != Content("v1") {
		t.Error("identical scopes should be equal")
	}
	if Content("v1") == Collection("v1") {
		t.Error("same id under different kinds must not be equal")
	}

	// Scopes are map keys; two constructions of the same scope must collide.
	m := map[Scope]int{}
	m[Collection("c1")]++
	m[Collection("c1")]++
	if m[Collection("c1")] != 2 {
		t.Errorf("expected a single map entry, got %d", m[Collection("c1")])
	}
}

func TestIsZero(t *testing.T) {
	if !(Scope{}).IsZero() {
		t.Error("zero value should report IsZero")
	}
	if Global().IsZero() {
		t.Error("global scope is a resolved scope, not zero")
	}
}
