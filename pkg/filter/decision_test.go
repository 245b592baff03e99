package filter

import "testing"

func TestDecide_Table(t *testing.T) {
	cases := []struct {
		name             string
		mE, mF, mT       bool
		e, f, t          bool
		want             bool
	}{
		{"unconditional monitor always emits", false, false, false, false, false, false, true},
		{"tx-only, no match", false, false, true, false, false, false, false},
		{"tx-only, match", false, false, true, false, false, true, true},
		{"event-or-function, event hit", true, true, false, true, false, false, true},
		{"event-or-function, function hit", true, true, false, false, true, false, true},
		{"event-or-function, neither hit", true, true, false, false, false, false, false},
		{"event and tx conditions, event and tx hit", true, false, true, true, false, true, true},
		{"event and tx conditions, event without tx", true, false, true, true, false, false, false},
		{"all three, neither event nor function", true, true, true, false, false, true, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := decide(c.mE, c.mF, c.mT, c.e, c.f, c.t)
			if got != c.want {
				t.Errorf("decide(%v,%v,%v,%v,%v,%v) = %v, want %v", c.mE, c.mF, c.mT, c.e, c.f, c.t, got, c.want)
			}
		})
	}
}

func TestParamFor_InfersKinds(t *testing.T) {
	if p := paramFor("0x0000000000000000000000000000000000000000"); p.Kind != 0 {
		t.Errorf("expected address kind for a 42-char hex string, got %v", p.Kind)
	}
	if p := paramFor("hello"); p.Value != "hello" {
		t.Errorf("expected plain strings to pass through unchanged")
	}
	if p := paramFor(true); p.Value != true {
		t.Errorf("expected bool passthrough")
	}
}
