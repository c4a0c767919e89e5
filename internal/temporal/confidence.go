package temporal

import "time"

// Confidence scores a synthesised embedding's trustworthiness from the
// entity's age and how much supporting evidence (observations,
// relationships) fed its history/neighbourhood components (spec §4.10).
func Confidence(age time.Duration, observationCount, relationshipCount int) float64 {
	confidence := 0.5

	switch {
	case age < 7*24*time.Hour:
		confidence += 0.3
	case age < 30*24*time.Hour:
		confidence += 0.2
	case age < 90*24*time.Hour:
		confidence += 0.1
	}

	switch {
	case observationCount > 5:
		confidence += 0.15
	case observationCount > 0:
		confidence += 0.05
	}

	switch {
	case relationshipCount > 10:
		confidence += 0.15
	case relationshipCount > 0:
		confidence += 0.05
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}
