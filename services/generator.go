package services

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"bitrush/models"
)

// Value ranges per conversion type. IPv4 edge octets avoid reserved
// ranges: the first octet stays below multicast space and the last
// octet avoids .0 and .255.
const (
	byteMax       = 255
	nibbleMax     = 15
	hextetMax     = 65535
	ipv4FirstMin  = 1
	ipv4FirstMax  = 223
	ipv4LastMin   = 1
	ipv4LastMax   = 254
)

// GenerateQuestion produces one value/answer pair for the requested
// conversion type and mode, drawing randomness from rng.
func GenerateQuestion(rng *rand.Rand, conversionType, mode string) models.Question {
	switch conversionType {
	case models.ConversionBinary:
		n := drawValue(rng, mode)
		return models.Question{
			Value:  strconv.Itoa(n),
			Answer: encodeBinary(n, bitWidth(conversionType, mode)),
		}
	case models.ConversionHex:
		n := drawValue(rng, mode)
		return models.Question{
			Value:  strconv.Itoa(n),
			Answer: encodeHex(n, hexWidth(conversionType, mode)),
		}
	case models.ConversionHextet:
		n := rng.Intn(hextetMax + 1)
		return models.Question{
			Value:  strconv.Itoa(n),
			Answer: encodeHex(n, hexWidth(conversionType, mode)),
		}
	case models.ConversionIPv4:
		octets := [4]int{
			ipv4FirstMin + rng.Intn(ipv4FirstMax-ipv4FirstMin+1),
			rng.Intn(byteMax + 1),
			rng.Intn(byteMax + 1),
			ipv4LastMin + rng.Intn(ipv4LastMax-ipv4LastMin+1),
		}
		bits := make([]string, 4)
		decs := make([]string, 4)
		for i, o := range octets {
			bits[i] = encodeBinary(o, 8)
			decs[i] = strconv.Itoa(o)
		}
		return models.Question{
			Value:  strings.Join(bits, "."),
			Answer: strings.Join(decs, "."),
		}
	default:
		// Unknown conversion types are a validation error upstream;
		// fall back to binary so the generator never panics.
		n := drawValue(rng, mode)
		return models.Question{
			Value:  strconv.Itoa(n),
			Answer: encodeBinary(n, bitWidth(models.ConversionBinary, mode)),
		}
	}
}

// GenerateSequence produces a deduplicated ordered question sequence.
// Deduplication is on the (value, answer) pair; if 2×count draws do not
// yield count unique questions the shorter sequence is returned.
func GenerateSequence(conversionType, mode string, count int) []models.Question {
	return generate(rand.New(rand.NewSource(time.Now().UnixNano())), conversionType, mode, count)
}

// GenerateSeededSequence is the reproducible variant: the same seed
// always regenerates the exact same sequence. Tournament brackets use
// this so a restarted process can rebuild bracket questions.
func GenerateSeededSequence(conversionType, mode string, count int, seed int64) []models.Question {
	return generate(rand.New(rand.NewSource(seed)), conversionType, mode, count)
}

func generate(rng *rand.Rand, conversionType, mode string, count int) []models.Question {
	questions := make([]models.Question, 0, count)
	seen := make(map[string]bool, count)

	for attempts := 0; len(questions) < count && attempts < 2*count; attempts++ {
		q := GenerateQuestion(rng, conversionType, mode)
		key := fmt.Sprintf("%s|%s", q.Value, q.Answer)
		if seen[key] {
			continue
		}
		seen[key] = true
		q.Index = len(questions)
		questions = append(questions, q)
	}

	return questions
}

func drawValue(rng *rand.Rand, mode string) int {
	if mode == models.ModeNibble {
		return rng.Intn(nibbleMax + 1)
	}
	return rng.Intn(byteMax + 1)
}

// bitWidth is the answer width in bits for binary conversions.
func bitWidth(conversionType, mode string) int {
	if conversionType == models.ConversionHextet {
		return 16
	}
	if mode == models.ModeNibble {
		return 4
	}
	return 8
}

// hexWidth is the answer width in hex digits.
func hexWidth(conversionType, mode string) int {
	if conversionType == models.ConversionHextet {
		return 4
	}
	if mode == models.ModeNibble {
		return 1
	}
	return 2
}

func encodeBinary(n, width int) string {
	return fmt.Sprintf("%0*b", width, n)
}

func encodeHex(n, width int) string {
	return fmt.Sprintf("%0*x", width, n)
}
