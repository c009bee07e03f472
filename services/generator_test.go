package services

import (
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"bitrush/models"
)

func TestGenerateSeededSequence_Reproducible(t *testing.T) {
	a := GenerateSeededSequence(models.ConversionBinary, models.ModeStandard, 50, 42)
	b := GenerateSeededSequence(models.ConversionBinary, models.ModeStandard, 50, 42)

	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Value != b[i].Value || a[i].Answer != b[i].Answer {
			t.Errorf("question %d differs: (%s,%s) vs (%s,%s)", i, a[i].Value, a[i].Answer, b[i].Value, b[i].Answer)
		}
	}
}

func TestGenerateSeededSequence_DifferentSeeds(t *testing.T) {
	a := GenerateSeededSequence(models.ConversionHextet, models.ModeStandard, 50, 42)
	b := GenerateSeededSequence(models.ConversionHextet, models.ModeStandard, 50, 43)

	same := 0
	for i := range a {
		if i < len(b) && a[i].Value == b[i].Value {
			same++
		}
	}
	if same == len(a) {
		t.Error("different seeds produced identical sequences")
	}
}

func TestGenerateSequence_NoDuplicates(t *testing.T) {
	questions := GenerateSequence(models.ConversionHex, models.ModeStandard, 100)

	seen := make(map[string]bool)
	for _, q := range questions {
		key := q.Value + "|" + q.Answer
		if seen[key] {
			t.Errorf("duplicate question %q", key)
		}
		seen[key] = true
	}
}

func TestGenerateSequence_IndexesAreOrdinal(t *testing.T) {
	questions := GenerateSequence(models.ConversionBinary, models.ModeStandard, 30)
	for i, q := range questions {
		if q.Index != i {
			t.Errorf("question at position %d has index %d", i, q.Index)
		}
	}
}

func TestGenerateSequence_NibbleSpaceIsExhaustible(t *testing.T) {
	// Only 16 distinct nibble values exist, so asking for more must
	// return a shorter sequence instead of spinning forever.
	questions := GenerateSequence(models.ConversionBinary, models.ModeNibble, 100)
	if len(questions) > 16 {
		t.Fatalf("got %d nibble questions, only 16 are possible", len(questions))
	}
}

func TestGenerateQuestion_BinaryStandard(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		q := GenerateQuestion(rng, models.ConversionBinary, models.ModeStandard)

		n, err := strconv.Atoi(q.Value)
		if err != nil {
			t.Fatalf("value %q is not decimal: %v", q.Value, err)
		}
		if n < 0 || n > 255 {
			t.Errorf("value %d out of byte range", n)
		}
		if len(q.Answer) != 8 {
			t.Errorf("answer %q is not 8 bits", q.Answer)
		}
		if got, _ := strconv.ParseInt(q.Answer, 2, 32); int(got) != n {
			t.Errorf("answer %q does not encode %d", q.Answer, n)
		}
	}
}

func TestGenerateQuestion_HexNibble(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		q := GenerateQuestion(rng, models.ConversionHex, models.ModeNibble)

		n, _ := strconv.Atoi(q.Value)
		if n < 0 || n > 15 {
			t.Errorf("nibble value %d out of range", n)
		}
		if len(q.Answer) != 1 {
			t.Errorf("nibble hex answer %q should be one digit", q.Answer)
		}
	}
}

func TestGenerateQuestion_Hextet(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		q := GenerateQuestion(rng, models.ConversionHextet, models.ModeStandard)

		n, _ := strconv.Atoi(q.Value)
		if n < 0 || n > 65535 {
			t.Errorf("hextet value %d out of range", n)
		}
		if len(q.Answer) != 4 {
			t.Errorf("hextet answer %q should be four digits", q.Answer)
		}
		if q.Answer != strings.ToLower(q.Answer) {
			t.Errorf("hextet answer %q should be lowercase", q.Answer)
		}
	}
}

func TestGenerateQuestion_IPv4(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		q := GenerateQuestion(rng, models.ConversionIPv4, models.ModeStandard)

		bits := strings.Split(q.Value, ".")
		decs := strings.Split(q.Answer, ".")
		if len(bits) != 4 || len(decs) != 4 {
			t.Fatalf("expected dotted quads, got value %q answer %q", q.Value, q.Answer)
		}

		for j := 0; j < 4; j++ {
			if len(bits[j]) != 8 {
				t.Errorf("octet %d binary %q is not 8 bits", j, bits[j])
			}
			n, err := strconv.Atoi(decs[j])
			if err != nil {
				t.Fatalf("octet %d answer %q not decimal", j, decs[j])
			}
			if got, _ := strconv.ParseInt(bits[j], 2, 32); int(got) != n {
				t.Errorf("octet %d: %q != %d", j, bits[j], n)
			}
		}

		first, _ := strconv.Atoi(decs[0])
		last, _ := strconv.Atoi(decs[3])
		if first < 1 || first > 223 {
			t.Errorf("first octet %d outside unicast range", first)
		}
		if last < 1 || last > 254 {
			t.Errorf("last octet %d is a reserved host value", last)
		}
	}
}
