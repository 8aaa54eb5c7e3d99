package trial

import (
	"math"

	"rlserver/models"
	"rlserver/sequence"
)

// Earnings computes one decision slot's payoff for a round: the stake
// times the session unit, won if the chosen option was rewarded and lost
// otherwise.
func Earnings(choice string, bet int, outcome sequence.RoundOutcome, unit int) int {
	reward := outcome.RewardB
	if choice == sequence.OptionA {
		reward = outcome.RewardA
	}
	if reward == 1 {
		return bet * unit
	}
	return -bet * unit
}

// ApplyRoundPayoffs updates a participant's running sums for a completed
// round. bonusSlot (1 or 2) selects which decision slot's earnings feed
// the cumulative bonus score this round. Returns both earnings.
func ApplyRoundPayoffs(p *models.Participant, outcome sequence.RoundOutcome, unit int, bonusSlot int) (int, int) {
	e1 := Earnings(p.Choices[0], p.Bets[0], outcome, unit)
	e2 := Earnings(p.Choices[1], p.Bets[1], outcome, unit)
	p.Choice1Total += e1
	p.Choice2Total += e2
	if bonusSlot == 2 {
		p.BonusScore += e2
	} else {
		p.BonusScore += e1
	}
	return e1, e2
}

// FinalBonus converts a cumulative bonus score into the currency payout:
// a saturating linear transform, never negative, fixed to two decimals.
func FinalBonus(score int, divisor int) float64 {
	if divisor <= 0 || score <= 0 {
		return 0
	}
	bonus := float64(score) / float64(divisor)
	return math.Round(bonus*100) / 100
}
