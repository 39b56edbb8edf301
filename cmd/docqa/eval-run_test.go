package main

import "testing"

func TestParseKs(t *testing.T) {
	ks, err := parseKs("1,3,5,8")
	if err != nil {
		t.Fatalf("parseKs: %v", err)
	}
	want := []int{1, 3, 5, 8}
	if len(ks) != len(want) {
		t.Fatalf("got %v want %v", ks, want)
	}
	for i := range want {
		if ks[i] != want[i] {
			t.Fatalf("got %v want %v", ks, want)
		}
	}
}

func TestParseKsRejectsNonPositive(t *testing.T) {
	if _, err := parseKs("1,0,5"); err == nil {
		t.Fatalf("expected error for zero k")
	}
}

func TestParseKsRejectsEmpty(t *testing.T) {
	if _, err := parseKs(""); err == nil {
		t.Fatalf("expected error for empty ks")
	}
}

func TestBackendFromVectorBackend(t *testing.T) {
	if got := backendFromVectorBackend("bm25"); got != "bm25" {
		t.Fatalf("got %q want bm25", got)
	}
	if got := backendFromVectorBackend("faiss"); got != "dense" {
		t.Fatalf("got %q want dense", got)
	}
}
