package memory

import (
	"strings"
	"testing"
)

func TestEntityIDStable(t *testing.T) {
	a := EntityID("person", "Avery Quinn")
	b := EntityID("person", "Avery Quinn")
	if a != b {
		t.Fatalf("same input produced different ids: %q vs %q", a, b)
	}
}

func TestEntityIDNormalizesCaseAndSpace(t *testing.T) {
	a := EntityID("person", "Avery Quinn")
	b := EntityID("PERSON", "  avery quinn  ")
	if a != b {
		t.Fatalf("normalization failed: %q vs %q", a, b)
	}
}

func TestEntityIDDistinctByKind(t *testing.T) {
	if EntityID("person", "origin") == EntityID("wallet", "origin") {
		t.Fatal("ids should differ by kind")
	}
}

func TestEntityIDShape(t *testing.T) {
	id := WalletID("avery_quinn", "origin")
	parts := strings.Split(id, ":")
	if len(parts) != 4 {
		t.Fatalf("expected kind:owner:label:digest, got %q", id)
	}
	if parts[0] != "wallet" || parts[1] != "avery_quinn" || parts[2] != "origin" {
		t.Fatalf("unexpected segments in %q", id)
	}
	if len(parts[3]) != 10 {
		t.Fatalf("digest should be 10 hex chars, got %q", parts[3])
	}
}

func TestSlugifyFoldsRuns(t *testing.T) {
	cases := map[string]string{
		"Avery  Quinn!":  "avery_quinn",
		"--- ---":        "item",
		"12 Elm St, Apt": "12_elm_st_apt",
	}
	for in, want := range cases {
		if got := slugify(in); got != want {
			t.Fatalf("slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
