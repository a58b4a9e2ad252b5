package core

import "testing"

func TestNewLinkDefaults(t *testing.T) {
	link := NewLink("a", "b")
	if link.A != "a" || link.B != "b" {
		t.Errorf("unexpected endpoints %s-%s", link.A, link.B)
	}
	if link.Weight != DefaultLinkWeight {
		t.Errorf("expected weight %d, got %d", DefaultLinkWeight, link.Weight)
	}
}

func TestLinkOther(t *testing.T) {
	link := NewLink("a", "b")
	if got := link.Other("a"); got != "b" {
		t.Errorf("Other(a) = %s, want b", got)
	}
	if got := link.Other("b"); got != "a" {
		t.Errorf("Other(b) = %s, want a", got)
	}
}
