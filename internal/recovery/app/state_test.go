package app

import "testing"

func TestStateEncode(t *testing.T) {
	if got := (State{TokenID: "a1b2"}).Encode(); got != "a1b2" {
		t.Fatalf("expected a1b2, got %q", got)
	}
	if got := (State{TokenID: "a1b2", ObsoletesID: "c3d4"}).Encode(); got != "a1b2,c3d4" {
		t.Fatalf("expected a1b2,c3d4, got %q", got)
	}
}

func TestParseState(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want State
	}{
		{"single id", "a1b2", State{TokenID: "a1b2"}},
		{"with obsoletes", "a1b2,c3d4", State{TokenID: "a1b2", ObsoletesID: "c3d4"}},
		{"empty", "", State{}},
		{"trailing delimiter", "a1b2,", State{TokenID: "a1b2"}},
		{"extra delimiters stay in second part", "a1b2,c3d4,e5f6", State{TokenID: "a1b2", ObsoletesID: "c3d4,e5f6"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseState(tc.raw); got != tc.want {
				t.Fatalf("ParseState(%q) = %+v, want %+v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestStateRoundTrip(t *testing.T) {
	states := []State{
		{TokenID: "a1b2"},
		{TokenID: "a1b2", ObsoletesID: "c3d4"},
	}
	for _, state := range states {
		if got := ParseState(state.Encode()); got != state {
			t.Fatalf("round trip of %+v produced %+v", state, got)
		}
	}
}
