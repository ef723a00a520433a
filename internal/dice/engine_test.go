package dice

import (
	"errors"
	"math/rand"
	"testing"
)

func TestParseAcceptsValidExpressions(t *testing.T) {
	tests := []struct {
		expression string
		want       Spec
	}{
		{"2d6+3", Spec{Count: 2, Faces: 6, Modifier: 3}},
		{"1d20", Spec{Count: 1, Faces: 20, Modifier: 0}},
		{"4d8-2", Spec{Count: 4, Faces: 8, Modifier: -2}},
		{"20d100+10", Spec{Count: 20, Faces: 100, Modifier: 10}},
		{" 2D6 + 3 ", Spec{Count: 2, Faces: 6, Modifier: 3}},
		{"1d4", Spec{Count: 1, Faces: 4, Modifier: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			got, err := Parse(tt.expression)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.expression, err)
			}
			if got != tt.want {
				t.Fatalf("Parse(%q) = %+v, want %+v", tt.expression, got, tt.want)
			}
		})
	}
}

func TestParseRejectsInvalidExpressions(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		wantErr    error
	}{
		{"empty", "", ErrInvalidExpression},
		{"garbage", "roll me", ErrInvalidExpression},
		{"missing-count", "d20", ErrInvalidExpression},
		{"float", "2.5d6", ErrInvalidExpression},
		{"zero-count", "0d6", ErrCountOutOfRange},
		{"too-many", "21d6", ErrCountOutOfRange},
		{"bad-faces", "2d7", ErrFacesOutOfRange},
		{"huge-faces", "1d1000", ErrFacesOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.expression)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Parse(%q) error = %v, want %v", tt.expression, err, tt.wantErr)
			}
		})
	}
}

func TestRollTotalsAndBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	faces := []int{4, 6, 8, 10, 12, 20, 100}

	for _, f := range faces {
		for count := MinCount; count <= MaxCount; count++ {
			spec := Spec{Count: count, Faces: f, Modifier: count - 3}
			result := Roll(spec, false, false, rng)

			if len(result.Dice) != count {
				t.Fatalf("d%d x%d: got %d dice", f, count, len(result.Dice))
			}
			sum := spec.Modifier
			for _, die := range result.Dice {
				if die.Kind != KindNormal {
					t.Fatalf("d%d: unexpected kind %q", f, die.Kind)
				}
				if len(die.Rolls) != 1 || die.Rolls[0] != die.Final {
					t.Fatalf("d%d: normal die should keep its single draw: %+v", f, die)
				}
				if die.Final < 1 || die.Final > f {
					t.Fatalf("d%d: kept value %d out of range", f, die.Final)
				}
				sum += die.Final
			}
			if result.Total != sum {
				t.Fatalf("d%d x%d: total %d, want %d", f, count, result.Total, sum)
			}
		}
	}
}

func TestRollAdvantageKeepsMax(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		result := Roll(Spec{Count: 1, Faces: 20}, true, false, rng)
		die := result.Dice[0]
		if die.Kind != KindAdvantage {
			t.Fatalf("expected advantage kind, got %q", die.Kind)
		}
		if len(die.Rolls) != 2 {
			t.Fatalf("advantage should record both draws: %+v", die)
		}
		if die.Final != max(die.Rolls[0], die.Rolls[1]) {
			t.Fatalf("advantage should keep the max: %+v", die)
		}
		for _, raw := range die.Rolls {
			if raw < 1 || raw > 20 {
				t.Fatalf("raw draw %d out of range", raw)
			}
		}
	}
}

func TestRollDisadvantageKeepsMin(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 200; i++ {
		result := Roll(Spec{Count: 1, Faces: 12}, false, true, rng)
		die := result.Dice[0]
		if die.Kind != KindDisadvantage {
			t.Fatalf("expected disadvantage kind, got %q", die.Kind)
		}
		if die.Final != min(die.Rolls[0], die.Rolls[1]) {
			t.Fatalf("disadvantage should keep the min: %+v", die)
		}
	}
}

func TestRollAdvantageWinsWhenBothFlagsSet(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	result := Roll(Spec{Count: 5, Faces: 6}, true, true, rng)
	for _, die := range result.Dice {
		if die.Kind != KindAdvantage {
			t.Fatalf("advantage takes precedence over disadvantage, got %q", die.Kind)
		}
	}
}

func TestRollTwoDSixPlusThreeStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 100; i++ {
		result := Roll(Spec{Count: 2, Faces: 6, Modifier: 3}, false, false, rng)
		if result.Total < 5 || result.Total > 15 {
			t.Fatalf("2d6+3 total %d outside [5,15]", result.Total)
		}
		if len(result.Dice) != 2 {
			t.Fatalf("expected 2 dice, got %d", len(result.Dice))
		}
	}
}
