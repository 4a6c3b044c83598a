package metadata

import "testing"

func TestResolveField_AccessorDictionary(t *testing.T) {
	s := Snapshot{UserID: "u-1", Attrs: map[string]any{"credits": float64(7)}}

	v, ok := ResolveField("credits_balance", s)
	if !ok {
		t.Fatal("expected credits_balance to resolve via accessor")
	}
	if v.(float64) != 7 {
		t.Fatalf("expected 7, got %v", v)
	}
}

func TestResolveField_SymbolicNameFallback(t *testing.T) {
	// hand-built contexts store values under the symbolic name itself
	s := Snapshot{UserID: "u-1", Attrs: map[string]any{"credits_balance": float64(3)}}

	v, ok := ResolveField("credits_balance", s)
	if !ok {
		t.Fatal("expected fallback to the symbolic name")
	}
	if v.(float64) != 3 {
		t.Fatalf("expected 3, got %v", v)
	}
}

func TestResolveField_RawAttribute(t *testing.T) {
	s := Snapshot{UserID: "u-1", Attrs: map[string]any{"campaign": "spring"}}

	v, ok := ResolveField("campaign", s)
	if !ok || v.(string) != "spring" {
		t.Fatalf("expected raw attribute lookup, got %v/%v", v, ok)
	}

	if _, ok := ResolveField("missing", s); ok {
		t.Fatal("expected absent attribute to not resolve")
	}

	// nil values count as absent
	s = Snapshot{UserID: "u-1", Attrs: map[string]any{"campaign": nil}}
	if _, ok := ResolveField("campaign", s); ok {
		t.Fatal("expected nil attribute to not resolve")
	}
}

func TestKnownField(t *testing.T) {
	if !KnownField("user_tags") {
		t.Fatal("expected user_tags to be a known field")
	}
	if KnownField("made_up_field") {
		t.Fatal("expected made_up_field to be unknown")
	}
}
