package services

import (
	"math/rand"
	"testing"

	"bitrush/models"
)

func TestNormalizeAnswer_Hex(t *testing.T) {
	cases := []struct {
		name string
		mode string
		raw  string
		want string
	}{
		{"already canonical", models.ModeStandard, "ff", "ff"},
		{"uppercase", models.ModeStandard, "FF", "ff"},
		{"0x prefix", models.ModeStandard, "0xff", "ff"},
		{"prefix and case", models.ModeStandard, "0XA3", "a3"},
		{"short gets padded", models.ModeStandard, "f", "0f"},
		{"whitespace", models.ModeStandard, "  2b ", "2b"},
		{"nibble single digit", models.ModeNibble, "C", "c"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeAnswer(models.ConversionHex, tc.mode, tc.raw)
			if got != tc.want {
				t.Errorf("NormalizeAnswer(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestNormalizeAnswer_Hextet(t *testing.T) {
	cases := []struct{ raw, want string }{
		{"0xCAFE", "cafe"},
		{"1a", "001a"},
		{"0001", "0001"},
	}
	for _, tc := range cases {
		got := NormalizeAnswer(models.ConversionHextet, models.ModeStandard, tc.raw)
		if got != tc.want {
			t.Errorf("NormalizeAnswer(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeAnswer_Binary(t *testing.T) {
	cases := []struct {
		name string
		mode string
		raw  string
		want string
	}{
		{"canonical", models.ModeStandard, "10100101", "10100101"},
		{"short bit string padded", models.ModeStandard, "101", "00000101"},
		{"spaced groups", models.ModeStandard, "1010 0101", "10100101"},
		{"decimal converted", models.ModeStandard, "165", "10100101"},
		{"decimal zero", models.ModeStandard, "0", "00000000"},
		{"decimal out of range kept as-is", models.ModeStandard, "256", "256"},
		{"garbage kept as-is", models.ModeStandard, "hello", "hello"},
		{"nibble decimal", models.ModeNibble, "5", "0101"},
		{"nibble bits padded", models.ModeNibble, "11", "0011"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeAnswer(models.ConversionBinary, tc.mode, tc.raw)
			if got != tc.want {
				t.Errorf("NormalizeAnswer(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestNormalizeAnswer_IPv4(t *testing.T) {
	got := NormalizeAnswer(models.ConversionIPv4, models.ModeStandard, " 192.168.0.1 ")
	if got != "192.168.0.1" {
		t.Errorf("NormalizeAnswer = %q", got)
	}
}

// Canonical answers must survive normalization untouched, for every
// representable value of every conversion type and mode.
func TestNormalizeAnswer_CanonicalIsFixpoint(t *testing.T) {
	check := func(conv, mode, canonical string) {
		t.Helper()
		if got := NormalizeAnswer(conv, mode, canonical); got != canonical {
			t.Fatalf("%s/%s: canonical %q changed to %q", conv, mode, canonical, got)
		}
	}

	for n := 0; n <= 255; n++ {
		check(models.ConversionBinary, models.ModeStandard, encodeBinary(n, 8))
		check(models.ConversionHex, models.ModeStandard, encodeHex(n, 2))
	}
	for n := 0; n <= 15; n++ {
		check(models.ConversionBinary, models.ModeNibble, encodeBinary(n, 4))
		check(models.ConversionHex, models.ModeNibble, encodeHex(n, 1))
	}
	for n := 0; n <= 65535; n++ {
		check(models.ConversionHextet, models.ModeStandard, encodeHex(n, 4))
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		q := GenerateQuestion(rng, models.ConversionIPv4, models.ModeStandard)
		check(models.ConversionIPv4, models.ModeStandard, q.Answer)
	}
}
