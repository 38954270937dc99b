package money

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParse_RoundsHalfAwayFromZero(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"100.004", "100.00"},
		{"100.005", "100.01"},
		{"19.995", "20.00"},
		{"19.994", "19.99"},
		{"50", "50.00"},
		{"0.1", "0.10"},
		{"-0.125", "-0.13"},
		{"-7.004", "-7.00"},
		{"0", "0.00"},
		{"-0.00", "0.00"},
		{"1.5e2", "150.00"},
		{"0.005", "0.01"},
		{" 42.5 ", "42.50"},
	}

	for _, tc := range testCases {
		got, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v, want nil", tc.in, err)
		}
		if got.String() != tc.want {
			t.Errorf("Parse(%q) = %s, want %s", tc.in, got.String(), tc.want)
		}
	}
}

func TestParse_Deterministic(t *testing.T) {
	first, err := Parse("19.995")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		got, _ := Parse("19.995")
		if !got.Equal(first.Decimal) {
			t.Fatalf("iteration %d: got %s, want %s", i, got, first)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	testCases := []struct {
		in   string
		want error
	}{
		{"", ErrMissingAmount},
		{"abc", ErrInvalidAmount},
		{"12,50", ErrInvalidAmount},
		{"NaN", ErrInvalidAmount},
		{"1000000000000", ErrOutOfRange},
		{"-1000000000000.00", ErrOutOfRange},
		{"999999999999.995", ErrOutOfRange},
		{"1e13", ErrOutOfRange},
		{"0.004", ErrOutOfRange},
		{"-0.0049", ErrOutOfRange},
		{"1e-42", ErrOutOfRange},
		{"12345678901234567890123456789012345678901", ErrInvalidAmount},
	}

	for _, tc := range testCases {
		_, err := Parse(tc.in)
		if !errors.Is(err, tc.want) {
			t.Errorf("Parse(%q) error = %v, want %v", tc.in, err, tc.want)
		}
	}
}

func TestParseJSON(t *testing.T) {
	testCases := []struct {
		raw     string
		want    string
		wantErr error
	}{
		{`100.004`, "100.00", nil},
		{`"19.995"`, "20.00", nil},
		{`null`, "", ErrMissingAmount},
		{``, "", ErrMissingAmount},
		{`"abc"`, "", ErrInvalidAmount},
		{`""`, "", ErrInvalidAmount},
		{`true`, "", ErrInvalidAmount},
	}

	for _, tc := range testCases {
		got, err := ParseJSON(json.RawMessage(tc.raw))
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ParseJSON(%s) error = %v, want %v", tc.raw, err, tc.wantErr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseJSON(%s) error = %v", tc.raw, err)
		}
		if got.String() != tc.want {
			t.Errorf("ParseJSON(%s) = %s, want %s", tc.raw, got.String(), tc.want)
		}
	}
}

func TestAmount_JSON(t *testing.T) {
	var payload struct {
		Amount Amount `json:"amount"`
	}
	if err := json.Unmarshal([]byte(`{"amount": 45.555}`), &payload); err != nil {
		t.Fatal(err)
	}
	out, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"amount":45.56}` {
		t.Errorf("Marshal = %s, want {\"amount\":45.56}", out)
	}
}

func TestFromFloat(t *testing.T) {
	if got := FromFloat(100.004).String(); got != "100.00" {
		t.Errorf("FromFloat(100.004) = %s, want 100.00", got)
	}
}

func TestParse_ExtremeExponents(t *testing.T) {
	testCases := []struct {
		in      string
		want    string
		wantErr error
	}{
		{"1e-30000000", "", ErrOutOfRange},
		{"-1e-2147483647", "", ErrOutOfRange},
		{"1e10000000", "", ErrOutOfRange},
		{"9e2147483647", "", ErrOutOfRange},
		{"0e-30000000", "0.00", nil},
		{"0e10000000", "0.00", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			start := time.Now()
			got, err := Parse(tc.in)
			if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
				t.Errorf("Parse(%q) took %v", tc.in, elapsed)
			}
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Parse(%q) error = %v, want %v", tc.in, err, tc.wantErr)
				}
				if len(err.Error()) > 200 {
					t.Errorf("error message is %d bytes long", len(err.Error()))
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tc.in, err)
			}
			if got.String() != tc.want {
				t.Errorf("Parse(%q) = %s, want %s", tc.in, got.String(), tc.want)
			}
		})
	}
}
