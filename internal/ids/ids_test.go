package ids

import (
	"sort"
	"testing"
)

func TestNewIsSortableAndUnique(t *testing.T) {
	const n = 1000
	got := make([]string, n)
	seen := make(map[string]bool, n)
	for i := range got {
		id := New()
		if len(id) != 26 {
			t.Fatalf("unexpected id length: %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id: %q", id)
		}
		seen[id] = true
		got[i] = id
	}
	if !sort.StringsAreSorted(got) {
		t.Fatalf("ids generated in sequence must sort in generation order")
	}
}

func TestNewIsSafeForConcurrentUse(t *testing.T) {
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 200; j++ {
				New()
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
