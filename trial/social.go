package trial

import (
	"rlserver/sequence"
)

// CompareChoices counts how many co-participants chose the same and the
// other option. Values still unset (empty string) are skipped, so before
// anyone else has a value both counts are zero. Only called after a
// phase's values are finalized, never mid-phase.
func CompareChoices(own string, others []string) (with int, against int) {
	if own == "" {
		return 0, 0
	}
	for _, o := range others {
		if o == "" {
			continue
		}
		if o == own {
			with++
		} else {
			against++
		}
	}
	return with, against
}

// CompareFractions normalizes the counts; with no co-participant values
// both fractions are zero.
func CompareFractions(own string, others []string) (float64, float64) {
	with, against := CompareChoices(own, others)
	total := with + against
	if total == 0 {
		return 0, 0
	}
	return float64(with) / float64(total), float64(against) / float64(total)
}

// EncodeChoice maps an option label to its binary representation used in
// the co-participant summaries (option A = 1, option B = 0).
func EncodeChoice(option string) int {
	if option == sequence.OptionA {
		return 1
	}
	return 0
}
