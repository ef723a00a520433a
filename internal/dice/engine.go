// Package dice implements dice-notation parsing and rolling.
package dice

import (
	"errors"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
)

// RollKind tags how a single die outcome was produced.
type RollKind string

const (
	// KindNormal is a single draw.
	KindNormal RollKind = "normal"
	// KindAdvantage keeps the higher of two draws.
	KindAdvantage RollKind = "advantage"
	// KindDisadvantage keeps the lower of two draws.
	KindDisadvantage RollKind = "disadvantage"
)

const (
	// MinCount and MaxCount bound the number of dice in one expression.
	MinCount = 1
	MaxCount = 20
)

// ErrInvalidExpression indicates the notation did not match NdF(+/-M).
var ErrInvalidExpression = errors.New("invalid dice expression, use a format like '2d6+3' or '1d20'")

// ErrCountOutOfRange indicates the dice count is outside [1,20].
var ErrCountOutOfRange = errors.New("number of dice must be between 1 and 20")

// ErrFacesOutOfRange indicates an unsupported die type.
var ErrFacesOutOfRange = errors.New("die type must be one of: d4, d6, d8, d10, d12, d20, d100")

var expressionPattern = regexp.MustCompile(`^(\d+)d(\d+)([+-]\d+)?$`)

var allowedFaces = map[int]bool{4: true, 6: true, 8: true, 10: true, 12: true, 20: true, 100: true}

// Spec is a parsed dice expression.
type Spec struct {
	Count    int
	Faces    int
	Modifier int
}

// Parse validates a dice expression like "2d6+3" or "1d20". Case and spaces
// are ignored.
func Parse(expression string) (Spec, error) {
	cleaned := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(expression)), " ", "")

	match := expressionPattern.FindStringSubmatch(cleaned)
	if match == nil {
		return Spec{}, ErrInvalidExpression
	}

	count, err := strconv.Atoi(match[1])
	if err != nil {
		return Spec{}, ErrInvalidExpression
	}
	faces, err := strconv.Atoi(match[2])
	if err != nil {
		return Spec{}, ErrInvalidExpression
	}
	modifier := 0
	if match[3] != "" {
		modifier, err = strconv.Atoi(match[3])
		if err != nil {
			return Spec{}, ErrInvalidExpression
		}
	}

	if count < MinCount || count > MaxCount {
		return Spec{}, ErrCountOutOfRange
	}
	if !allowedFaces[faces] {
		return Spec{}, ErrFacesOutOfRange
	}

	return Spec{Count: count, Faces: faces, Modifier: modifier}, nil
}

// DieResult captures one die of a roll: every raw draw, the kept value, and
// how it was kept.
type DieResult struct {
	Rolls []int    `json:"rolls"`
	Final int      `json:"final"`
	Kind  RollKind `json:"type"`
}

// Result aggregates a full roll.
type Result struct {
	Dice  []DieResult
	Total int
}

// Roll rolls the spec. With advantage or disadvantage each die draws twice
// and keeps the max or min respectively; advantage takes precedence when both
// flags are set. rng may be nil, in which case the shared source is used.
func Roll(spec Spec, advantage, disadvantage bool, rng *rand.Rand) Result {
	draw := rand.Intn
	if rng != nil {
		draw = rng.Intn
	}

	dice := make([]DieResult, 0, spec.Count)
	for i := 0; i < spec.Count; i++ {
		switch {
		case advantage:
			first, second := draw(spec.Faces)+1, draw(spec.Faces)+1
			dice = append(dice, DieResult{
				Rolls: []int{first, second},
				Final: max(first, second),
				Kind:  KindAdvantage,
			})
		case disadvantage:
			first, second := draw(spec.Faces)+1, draw(spec.Faces)+1
			dice = append(dice, DieResult{
				Rolls: []int{first, second},
				Final: min(first, second),
				Kind:  KindDisadvantage,
			})
		default:
			value := draw(spec.Faces) + 1
			dice = append(dice, DieResult{
				Rolls: []int{value},
				Final: value,
				Kind:  KindNormal,
			})
		}
	}

	total := spec.Modifier
	for _, die := range dice {
		total += die.Final
	}

	return Result{Dice: dice, Total: total}
}
