package editor

import "testing"

func TestParseA1(t *testing.T) {
	tests := []struct {
		addr     string
		row, col int
		wantErr  bool
	}{
		{addr: "C3", row: 2, col: 2},
		{addr: "A1", row: 0, col: 0},
		{addr: "b2", row: 1, col: 1},
		{addr: "Z1", row: 0, col: 25},
		{addr: "AA10", row: 9, col: 26},
		{addr: "A0", wantErr: true},
		{addr: "3C", wantErr: true},
		{addr: "", wantErr: true},
		{addr: "A1B", wantErr: true},
		{addr: "A-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			row, col, err := ParseA1(tt.addr)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseA1(%q) succeeded with (%d,%d)", tt.addr, row, col)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseA1(%q): %v", tt.addr, err)
			}
			if row != tt.row || col != tt.col {
				t.Fatalf("ParseA1(%q) = (%d,%d), want (%d,%d)", tt.addr, row, col, tt.row, tt.col)
			}
		})
	}
}

func TestFormatA1RoundTrip(t *testing.T) {
	for _, addr := range []string{"A1", "C3", "Z9", "AA10", "AZ100", "BA2"} {
		row, col, err := ParseA1(addr)
		if err != nil {
			t.Fatalf("ParseA1(%q): %v", addr, err)
		}
		if got := FormatA1(row, col); got != addr {
			t.Fatalf("FormatA1(%d,%d) = %q, want %q", row, col, got, addr)
		}
	}
}
