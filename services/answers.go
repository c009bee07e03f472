package services

import (
	"strconv"
	"strings"

	"bitrush/models"
)

// NormalizeAnswer rewrites a raw client answer into the canonical form
// stored on the question, so comparison is a plain string equality.
// Normalizing an already-canonical answer is a no-op.
func NormalizeAnswer(conversionType, mode, raw string) string {
	trimmed := strings.TrimSpace(raw)

	switch conversionType {
	case models.ConversionHex, models.ConversionHextet:
		return normalizeHex(trimmed, hexWidth(conversionType, mode))
	case models.ConversionBinary:
		return normalizeBinary(trimmed, bitWidth(conversionType, mode))
	case models.ConversionIPv4:
		return strings.ToLower(trimmed)
	default:
		return strings.ToLower(trimmed)
	}
}

func normalizeHex(s string, width int) string {
	s = strings.ToLower(s)
	s = strings.TrimPrefix(s, "0x")
	return padLeft(s, width)
}

// normalizeBinary accepts either a literal bit-string (any separators are
// stripped) or a plain decimal numeral, which is range-checked against
// the bit width and re-encoded.
func normalizeBinary(s string, width int) string {
	var bits strings.Builder
	onlyBits := true
	for _, r := range s {
		switch r {
		case '0', '1':
			bits.WriteRune(r)
		case '2', '3', '4', '5', '6', '7', '8', '9':
			onlyBits = false
		default:
			// separators like spaces or dots are masked out
		}
	}

	if onlyBits && bits.Len() > 0 {
		return padLeft(bits.String(), width)
	}

	// Not a bit-string: try a decimal numeral.
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n >= 1<<width {
		return s
	}
	return encodeBinary(n, width)
}

func padLeft(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}
