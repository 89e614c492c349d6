package main

import "testing"

func TestShortHashStable(t *testing.T) {
	a, b := shortHash("123:abc"), shortHash("123:abc")
	if a != b || len(a) != 16 {
		t.Fatalf("shortHash = %q / %q", a, b)
	}
	if shortHash("123:abd") == a {
		t.Fatal("different tokens collided")
	}
}
