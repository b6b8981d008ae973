package negfilter

import "testing"

func TestMightContainFalseBeforeAdd(t *testing.T) {
	f := New(1000)
	if f.MightContain("/never/seen.txt") {
		t.Fatalf("expected MightContain to be false for a never-added path")
	}
}

func TestMightContainTrueAfterAdd(t *testing.T) {
	f := New(1000)
	f.Add("/seen.txt")
	if !f.MightContain("/seen.txt") {
		t.Fatalf("expected MightContain to be true after Add")
	}
}

func TestResetClearsEntries(t *testing.T) {
	f := New(1000)
	f.Add("/seen.txt")
	f.Reset(1000)
	if f.MightContain("/seen.txt") {
		t.Fatalf("expected Reset to clear prior entries")
	}
}
