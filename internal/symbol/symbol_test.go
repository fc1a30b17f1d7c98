package symbol

import (
	"errors"
	"reflect"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	tests := map[string]string{
		"aapl":    "AAPL",
		"  msft ": "MSFT",
		"brk.b":   "BRK.B",
		"RDS-A":   "RDS-A",
	}
	for in, want := range tests {
		got, err := Parse(in)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Parse(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse("   ")
	if err != ErrEmpty {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestParse_InvalidFormat(t *testing.T) {
	for _, in := range []string{"AA PL", "$AAPL", "TOOLONGTICKER1", "A..B"} {
		_, err := Parse(in)
		if !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("Parse(%q): expected ErrInvalidFormat, got %v", in, err)
		}
	}
}

func TestUnion(t *testing.T) {
	got := Union([]string{"AAPL", "msft"}, []string{"MSFT", "tsla", ""})
	want := []string{"AAPL", "MSFT", "TSLA"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Union = %v, want %v", got, want)
	}
}
