package risk

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Label aliases as they appear across the risk editors, accent-free and lower-cased.
var (
	severityLabels = map[string]Severity{
		"faible":   SeverityFaible,
		"low":      SeverityFaible,
		"moyen":    SeverityMoyen,
		"moyenne":  SeverityMoyen,
		"eleve":    SeverityEleve,
		"elevee":   SeverityEleve,
		"grave":    SeverityEleve,
		"critique": SeverityCritique,
		"mortelle": SeverityCritique,
		"mortel":   SeverityCritique,
	}

	probabilityLabels = map[string]Probability{
		"rare":          ProbabilityRare,
		"faible":        ProbabilityRare,
		"peu_probable":  ProbabilityPeuProbable,
		"moyenne":       ProbabilityPeuProbable,
		"moyen":         ProbabilityPeuProbable,
		"probable":      ProbabilityProbable,
		"elevee":        ProbabilityProbable,
		"eleve":         ProbabilityProbable,
		"tres_probable": ProbabilityTresProbable,
	}

	levelLabels = map[string]Level{
		"faible":      LevelFaible,
		"modere":      LevelModere,
		"moyen":       LevelModere,
		"eleve":       LevelEleve,
		"intolerable": LevelIntolerable,
		"critique":    LevelIntolerable,
	}
)

var severityNames = [4]string{"faible", "moyen", "eleve", "critique"}

var probabilityNames = [4]string{"rare", "peu_probable", "probable", "tres_probable"}

func (s Severity) String() string {
	if !s.Valid() {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

func (p Probability) String() string {
	if !p.Valid() {
		return fmt.Sprintf("probability(%d)", int(p))
	}
	return probabilityNames[p]
}

// ParseSeverity accepts any severity label variant ("Élevé", "grave", "Mortelle"...).
func ParseSeverity(label string) (Severity, error) {
	if s, ok := severityLabels[normalize(label)]; ok {
		return s, nil
	}
	return 0, fmt.Errorf("unknown severity %q", label)
}

// ParseProbability accepts both the 4-point and the 3-point scale labels.
func ParseProbability(label string) (Probability, error) {
	if p, ok := probabilityLabels[normalize(label)]; ok {
		return p, nil
	}
	return 0, fmt.Errorf("unknown probability %q", label)
}

// ParseLevel accepts the canonical levels and their display aliases.
func ParseLevel(label string) (Level, error) {
	if l, ok := levelLabels[normalize(label)]; ok {
		return l, nil
	}
	return "", fmt.Errorf("unknown risk level %q", label)
}

// normalize strips accents, lower-cases and joins words with underscores:
// "Très probable" -> "tres_probable".
func normalize(label string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, label)
	if err != nil {
		out = label
	}
	out = strings.ToLower(strings.TrimSpace(out))
	out = strings.NewReplacer("-", "_", " ", "_").Replace(out)
	return out
}

// MarshalJSON emits the canonical label.
func (s Severity) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity rank %d", int(s))
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts a rank (0..3) or any label variant.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var rank int
	if err := json.Unmarshal(data, &rank); err == nil {
		if !Severity(rank).Valid() {
			return fmt.Errorf("severity rank %d out of range", rank)
		}
		*s = Severity(rank)
		return nil
	}
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return fmt.Errorf("severity must be a rank or a label: %w", err)
	}
	v, err := ParseSeverity(label)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MarshalJSON emits the canonical label.
func (p Probability) MarshalJSON() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid probability rank %d", int(p))
	}
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts a rank (0..3) or any label variant.
func (p *Probability) UnmarshalJSON(data []byte) error {
	var rank int
	if err := json.Unmarshal(data, &rank); err == nil {
		if !Probability(rank).Valid() {
			return fmt.Errorf("probability rank %d out of range", rank)
		}
		*p = Probability(rank)
		return nil
	}
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return fmt.Errorf("probability must be a rank or a label: %w", err)
	}
	v, err := ParseProbability(label)
	if err != nil {
		return err
	}
	*p = v
	return nil
}
