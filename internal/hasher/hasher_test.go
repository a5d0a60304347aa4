package hasher

import (
	"strings"
	"testing"
)

func TestShortIDDeterministic(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"query", "SELECT * WHERE { ?s ?p ?o }"},
		{"graph uri", "http://example.org/graph"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got1 := ShortID("", tt.input)
			got2 := ShortID("", tt.input)
			if got1 != got2 {
				t.Fatalf("ShortID(%q) not deterministic: %q != %q", tt.input, got1, got2)
			}
			if !strings.HasPrefix(got1, Namespace) {
				t.Errorf("ShortID(%q) = %q, want prefix %q", tt.input, got1, Namespace)
			}
			wantLen := len(Namespace) + shortIDLen
			if len(got1) != wantLen {
				t.Errorf("ShortID(%q) length = %d, want %d", tt.input, len(got1), wantLen)
			}
		})
	}
}

func TestShortIDDistinctInputs(t *testing.T) {
	a := ShortID("", "SELECT ?s WHERE { ?s a <http://x> }")
	b := ShortID("", "SELECT ?s WHERE { ?s a <http://y> }")
	if a == b {
		t.Fatalf("distinct inputs hashed to the same ID: %q", a)
	}
}

func TestShortIDCustomNamespace(t *testing.T) {
	got := ShortID("g-", "http://example.org/graph")
	if !strings.HasPrefix(got, "g-") {
		t.Errorf("ShortID with custom namespace = %q, want prefix %q", got, "g-")
	}
}

func TestCanonicalSetIDOrderIndependent(t *testing.T) {
	a := CanonicalSetID("", []string{"qc-1", "qc-2", "qc-3"})
	b := CanonicalSetID("", []string{"qc-3", "qc-1", "qc-2"})
	if a != b {
		t.Fatalf("CanonicalSetID not order-independent: %q != %q", a, b)
	}
}

func TestCanonicalSetIDDedups(t *testing.T) {
	a := CanonicalSetID("", []string{"qc-1", "qc-2"})
	b := CanonicalSetID("", []string{"qc-1", "qc-2", "qc-2", "qc-1"})
	if a != b {
		t.Fatalf("CanonicalSetID not dedup-stable: %q != %q", a, b)
	}
}
