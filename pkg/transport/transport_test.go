package transport

import "testing"

func TestDirection_String(t *testing.T) {
	tests := []struct {
		dir  Direction
		want string
	}{
		{ToImplementation, "towardimplementation"},
		{ToCaller, "towardcaller"},
		{Direction(7), "direction(7)"},
	}

	for _, tt := range tests {
		if got := tt.dir.String(); got != tt.want {
			t.Errorf("transport:transport_test - Direction(%d).String() = %q, want %q", int(tt.dir), got, tt.want)
		}
	}
}

func TestDirections(t *testing.T) {
	dirs := Directions()
	if len(dirs) != 2 {
		t.Fatalf("transport:transport_test - expected 2 directions, got %d", len(dirs))
	}
	if dirs[0] != ToImplementation || dirs[1] != ToCaller {
		t.Errorf("transport:transport_test - unexpected directions %v", dirs)
	}
}
