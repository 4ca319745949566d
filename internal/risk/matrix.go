// Package risk evaluates risk entries on the severity × probability matrix.
//
// Evaluate is pure and total: every (severity, probability) pair maps to a
// level, out-of-range ranks are clamped into the grid.
package risk

// Severity is an ordinal rank 0..3.
type Severity int

// Severity ranks.
const (
	SeverityFaible   Severity = iota // faible
	SeverityMoyen                    // moyen, moyenne
	SeverityEleve                    // eleve, grave
	SeverityCritique                 // critique, mortelle
)

// Probability is an ordinal rank 0..3. The 3-point scale used by some
// forms (faible, moyenne, elevee) maps onto ranks 0..2.
type Probability int

// Probability ranks.
const (
	ProbabilityRare         Probability = iota // rare, faible
	ProbabilityPeuProbable                     // peu_probable, moyenne
	ProbabilityProbable                        // probable, elevee
	ProbabilityTresProbable                    // tres_probable
)

// Level is the derived risk category.
type Level string

// Levels, lowest first.
const (
	LevelFaible      Level = "faible"
	LevelModere      Level = "modere"
	LevelEleve       Level = "eleve"
	LevelIntolerable Level = "intolerable"
)

var levelRank = map[Level]int{
	LevelFaible:      0,
	LevelModere:      1,
	LevelEleve:       2,
	LevelIntolerable: 3,
}

// Rank returns the position of l in faible < modere < eleve < intolerable,
// or -1 for an unknown level.
func (l Level) Rank() int {
	r, ok := levelRank[l]
	if !ok {
		return -1
	}
	return r
}

// Valid reports whether l is one of the four levels.
func (l Level) Valid() bool {
	return l.Rank() >= 0
}

// Compare returns -1, 0 or 1 by level order.
func (l Level) Compare(other Level) int {
	a, b := l.Rank(), other.Rank()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// matrix[severity][probability]. Columns 0..2 are the reference grid;
// column 3 follows the same diagonal thresholds.
var matrix = [4][4]Level{
	{LevelFaible, LevelFaible, LevelModere, LevelEleve},
	{LevelFaible, LevelModere, LevelEleve, LevelIntolerable},
	{LevelModere, LevelEleve, LevelIntolerable, LevelIntolerable},
	{LevelEleve, LevelIntolerable, LevelIntolerable, LevelIntolerable},
}

// Evaluate maps a severity and probability to a risk level.
func Evaluate(s Severity, p Probability) Level {
	return matrix[clamp(int(s))][clamp(int(p))]
}

func clamp(rank int) int {
	if rank < 0 {
		return 0
	}
	if rank > 3 {
		return 3
	}
	return rank
}

// Valid reports whether s is inside the grid.
func (s Severity) Valid() bool { return s >= SeverityFaible && s <= SeverityCritique }

// Valid reports whether p is inside the grid.
func (p Probability) Valid() bool { return p >= ProbabilityRare && p <= ProbabilityTresProbable }
