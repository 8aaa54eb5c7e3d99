package sequence

import (
	"math"
	"math/rand"
)

// Option labels used across the experiment. Groups only ever see these
// two labels; which one is "high probability" at a given round is hidden
// state that reverses at the generated reversal rounds.
const (
	OptionA = "A"
	OptionB = "B"
)

// Config parameterizes one generated reward schedule. The same Config
// always yields the same schedule, which is what makes sessions
// reproducible across groups and restarts.
type Config struct {
	NumRounds      int
	Seed           int64
	HighFraction   float64 // e.g. 0.70 or 0.75
	ReversalMinGap int     // e.g. 8 (or 9 for some providers)
	ReversalMaxGap int     // e.g. 12 (or 11)
}

// DefaultConfig mirrors the standard 60-round 70/30 task.
func DefaultConfig(seed int64) Config {
	return Config{
		NumRounds:      60,
		Seed:           seed,
		HighFraction:   0.70,
		ReversalMinGap: 8,
		ReversalMaxGap: 12,
	}
}

// RoundOutcome is one row of the reward table. Exactly one of
// RewardA/RewardB is 1.
type RoundOutcome struct {
	Index      int    // 1-based round number
	HighOption string // option currently holding the high-probability role
	RewardA    int
	RewardB    int
	Reversal   bool // true if the high-probability role flipped at this round
}

// Sequence is the full pregenerated schedule for a session.
type Sequence struct {
	Rounds     []RoundOutcome
	Reversals  []int
	TargetHigh int
	TargetLow  int
}

// Outcome returns the row for a 1-based round index.
func (s *Sequence) Outcome(round int) RoundOutcome {
	return s.Rounds[round-1]
}

// Generate builds the reward table and reversal rounds for a session.
// Callers must pass NumRounds > 0 and a HighFraction reachable within
// NumRounds; both are preconditions, not runtime checks.
//
// The reward stream and the reversal stream use separate generators
// derived from the seed, so re-rolling one never shifts the other.
func Generate(cfg Config) Sequence {
	rewardRng := rand.New(rand.NewSource(cfg.Seed))
	reversalRng := rand.New(rand.NewSource(cfg.Seed + 1))

	reversals := generateReversals(cfg, reversalRng)
	reversalSet := make(map[int]bool, len(reversals))
	for _, r := range reversals {
		reversalSet[r] = true
	}

	targetHigh := int(math.Round(cfg.HighFraction * float64(cfg.NumRounds)))
	targetLow := cfg.NumRounds - targetHigh

	seq := Sequence{
		Rounds:     make([]RoundOutcome, 0, cfg.NumRounds),
		Reversals:  reversals,
		TargetHigh: targetHigh,
		TargetLow:  targetLow,
	}

	highOption := OptionA
	highCount := 0
	lowCount := 0
	var lastClasses []bool // true = high-class award, last 3 kept

	for i := 1; i <= cfg.NumRounds; i++ {
		reversal := reversalSet[i]
		if reversal {
			highOption = otherOption(highOption)
		}

		remaining := cfg.NumRounds - i + 1
		awardHigh := decideClass(rewardRng, cfg.HighFraction,
			targetHigh-highCount, targetLow-lowCount, remaining, lastClasses)

		if awardHigh {
			highCount++
		} else {
			lowCount++
		}
		lastClasses = append(lastClasses, awardHigh)
		if len(lastClasses) > 3 {
			lastClasses = lastClasses[1:]
		}

		rewarded := highOption
		if !awardHigh {
			rewarded = otherOption(highOption)
		}
		out := RoundOutcome{
			Index:      i,
			HighOption: highOption,
			Reversal:   reversal,
		}
		if rewarded == OptionA {
			out.RewardA = 1
		} else {
			out.RewardB = 1
		}
		seq.Rounds = append(seq.Rounds, out)
	}

	return seq
}

// decideClass picks whether this round awards the high-probability class.
// Correction rules take priority over the weighted draw: first the target
// rescue (remaining rounds must still be able to land on the target
// counts), then the no-4-in-a-row streak breaker.
func decideClass(rng *rand.Rand, highFraction float64, highLeft, lowLeft, remaining int, lastClasses []bool) bool {
	switch {
	case highLeft <= 0:
		return false
	case lowLeft <= 0:
		return true
	case highLeft >= remaining:
		return true
	case lowLeft >= remaining:
		return false
	}
	if streak, class := trailingStreak(lastClasses); streak >= 3 {
		return !class
	}
	return rng.Float64() < highFraction
}

// trailingStreak reports how many identical classes end the window and
// which class it is.
func trailingStreak(classes []bool) (int, bool) {
	if len(classes) == 0 {
		return 0, false
	}
	last := classes[len(classes)-1]
	n := 0
	for i := len(classes) - 1; i >= 0 && classes[i] == last; i-- {
		n++
	}
	return n, last
}

// generateReversals advances a counter by a uniform gap in
// [ReversalMinGap, ReversalMaxGap] until it would pass the final round.
func generateReversals(cfg Config, rng *rand.Rand) []int {
	var reversals []int
	counter := 0
	span := cfg.ReversalMaxGap - cfg.ReversalMinGap + 1
	for {
		counter += cfg.ReversalMinGap + rng.Intn(span)
		if counter > cfg.NumRounds {
			break
		}
		reversals = append(reversals, counter)
	}
	return reversals
}

func otherOption(option string) string {
	if option == OptionA {
		return OptionB
	}
	return OptionA
}

// BonusSlots returns, per round, which decision slot (1 or 2) feeds the
// cumulative bonus score. The policy is session-wide configuration; the
// "random" policy draws a seed-keyed sequence so it reproduces exactly
// like the reward table does.
func BonusSlots(numRounds int, seed int64, policy string) []int {
	slots := make([]int, numRounds)
	rng := rand.New(rand.NewSource(seed + 2))
	for i := range slots {
		switch policy {
		case "first":
			slots[i] = 1
		case "second":
			slots[i] = 2
		case "alternate":
			slots[i] = 1 + i%2
		default: // "random"
			slots[i] = 1 + rng.Intn(2)
		}
	}
	return slots
}
