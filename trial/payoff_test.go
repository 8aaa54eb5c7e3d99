package trial

import (
	"testing"

	"rlserver/models"
	"rlserver/sequence"
)

func TestEarnings(t *testing.T) {
	rewardedA := sequence.RoundOutcome{Index: 1, HighOption: "A", RewardA: 1, RewardB: 0}
	rewardedB := sequence.RoundOutcome{Index: 2, HighOption: "A", RewardA: 0, RewardB: 1}

	if got := Earnings("A", 2, rewardedA, 20); got != 40 {
		t.Errorf("Expected +40 for winning stake of 2, got %d", got)
	}
	if got := Earnings("A", 2, rewardedB, 20); got != -40 {
		t.Errorf("Expected -40 for losing stake of 2, got %d", got)
	}
	if got := Earnings("B", 3, rewardedB, 20); got != 60 {
		t.Errorf("Expected +60 for winning stake of 3, got %d", got)
	}
	if got := Earnings("B", 1, rewardedA, 20); got != -20 {
		t.Errorf("Expected -20 for losing stake of 1, got %d", got)
	}
}

func TestApplyRoundPayoffs(t *testing.T) {
	out := sequence.RoundOutcome{Index: 1, HighOption: "A", RewardA: 1, RewardB: 0}
	p := &models.Participant{Slot: 1}
	p.Choices = [2]string{"A", "B"}
	p.Bets = [2]int{2, 3}

	e1, e2 := ApplyRoundPayoffs(p, out, 20, 1)
	if e1 != 40 || e2 != -60 {
		t.Fatalf("Expected earnings 40/-60, got %d/%d", e1, e2)
	}
	if p.Choice1Total != 40 || p.Choice2Total != -60 {
		t.Errorf("Expected running totals 40/-60, got %d/%d", p.Choice1Total, p.Choice2Total)
	}
	if p.BonusScore != 40 {
		t.Errorf("Expected bonus fed by slot 1 (40), got %d", p.BonusScore)
	}

	// Second round, bonus fed by slot 2.
	out2 := sequence.RoundOutcome{Index: 2, HighOption: "A", RewardA: 0, RewardB: 1}
	p.Choices = [2]string{"B", "B"}
	p.Bets = [2]int{1, 1}
	ApplyRoundPayoffs(p, out2, 20, 2)
	if p.Choice1Total != 60 || p.Choice2Total != -40 {
		t.Errorf("Expected running totals 60/-40, got %d/%d", p.Choice1Total, p.Choice2Total)
	}
	if p.BonusScore != 60 {
		t.Errorf("Expected bonus 40+20=60, got %d", p.BonusScore)
	}
}

func TestFinalBonus(t *testing.T) {
	if got := FinalBonus(250, 100); got != 2.5 {
		t.Errorf("Expected 2.5, got %f", got)
	}
	if got := FinalBonus(-80, 100); got != 0 {
		t.Errorf("Expected negative scores to saturate at 0, got %f", got)
	}
	if got := FinalBonus(0, 100); got != 0 {
		t.Errorf("Expected 0 for zero score, got %f", got)
	}
	// Two-decimal currency rounding.
	if got := FinalBonus(333, 100); got != 3.33 {
		t.Errorf("Expected 3.33, got %f", got)
	}
}
