package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"15 000,50", "15000.5", true},
		{"15 000,50", "15000.5", true},
		{"1200", "1200", true},
		{"1200.75", "1200.75", true},
		{" 7,5 ", "7.5", true},
		{"0,01", "0.01", true},
		{"0", "", false},
		{"-10", "", false},
		{"12.5 руб", "", false},
		{"abc", "", false},
		{"1e3", "", false},
		{"1.234,56", "", false},
		{"", "", false},
		{"   ", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error, got %s", tc.in, got)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[string]string{
		"0":         "0.00",
		"15000.5":   "15 000.50",
		"999":       "999.00",
		"1234567.8": "1 234 567.80",
		"-2500":     "-2 500.00",
	}
	for in, want := range cases {
		if got := FormatAmount(decimal.RequireFromString(in)); got != want {
			t.Fatalf("FormatAmount(%s) = %q, want %q", in, got, want)
		}
	}
}
