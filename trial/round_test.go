package trial

import (
	"math/rand"
	"testing"
	"time"

	"rlserver/models"
	"rlserver/sequence"

	"go.uber.org/zap"
)

// newTestGroup builds a 5-slot in-memory group with short phase timers.
// Participants have no connection, so broadcasts are dropped, and db is
// nil, so persistence is skipped.
func newTestGroup(numRounds int) *models.Group {
	cfg := sequence.DefaultConfig(7)
	cfg.NumRounds = numRounds
	seq := sequence.Generate(cfg)

	size := 5
	participants := make([]*models.Participant, size)
	for i := range participants {
		participants[i] = &models.Participant{Slot: i + 1, Online: true}
	}

	return &models.Group{
		SessionID:    1,
		Code:         "test-group",
		Size:         size,
		Participants: participants,
		Seq:          seq,
		BonusSlots:   sequence.BonusSlots(numRounds, 7, "alternate"),
		Settings: models.Settings{
			NumRounds:    numRounds,
			GroupSize:    size,
			ChoiceTime:   60 * time.Millisecond,
			BetTime:      300 * time.Millisecond,
			RevealTime:   30 * time.Millisecond,
			ITIMin:       20 * time.Millisecond,
			ITIMax:       40 * time.Millisecond,
			PayoffUnit:   20,
			BonusDivisor: 100,
		},
		RoundIndex: 1,
		Phase:      models.PhaseAwaitLoad,
		Ready:      make(map[int]bool),
		Done:       make(map[models.Phase]bool),
		RandGen:    rand.New(rand.NewSource(7)),
	}
}

func currentPhase(g *models.Group) models.Phase {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.Phase
}

func loadAll(g *models.Group, logger *zap.Logger) {
	for slot := 1; slot <= g.Size; slot++ {
		HandlePageLoaded(g, slot, nil, logger)
	}
}

func TestPageLoadedQuorumOpensChoice1(t *testing.T) {
	g := newTestGroup(2)
	logger := zap.NewNop()

	for slot := 1; slot <= 4; slot++ {
		HandlePageLoaded(g, slot, nil, logger)
	}
	if ph := currentPhase(g); ph != models.PhaseAwaitLoad {
		t.Fatalf("Expected await_load with 4/5 ready, got %s", ph)
	}

	HandlePageLoaded(g, 5, nil, logger)
	if ph := currentPhase(g); ph != models.PhaseChoice1Open {
		t.Fatalf("Expected choice1_open after full quorum, got %s", ph)
	}

	g.Mu.Lock()
	defer g.Mu.Unlock()
	if !g.Round.OutcomeSet {
		t.Error("Expected round outcome to be fixed at round begin")
	}
	if g.Round.Outcome != g.Seq.Outcome(1) {
		t.Error("Expected round outcome copied from the pregenerated sequence")
	}
	if g.Timer == nil {
		t.Error("Expected a phase timer to be running")
	}
	g.Timer.Cancel()
}

func TestDuplicatePageLoadedNotCounted(t *testing.T) {
	g := newTestGroup(2)
	logger := zap.NewNop()

	for slot := 1; slot <= 4; slot++ {
		HandlePageLoaded(g, slot, nil, logger)
	}
	// Repeats from an already-ready slot must not complete the quorum.
	HandlePageLoaded(g, 1, nil, logger)
	HandlePageLoaded(g, 2, nil, logger)

	if ph := currentPhase(g); ph != models.PhaseAwaitLoad {
		t.Errorf("Expected duplicate page_loaded to be ignored, got phase %s", ph)
	}
}

func TestChoiceQuorumAdvancesImmediately(t *testing.T) {
	g := newTestGroup(2)
	logger := zap.NewNop()
	loadAll(g, logger)

	for slot := 1; slot <= g.Size; slot++ {
		HandleChoice(g, slot, 1, "A", nil, logger)
	}

	if ph := currentPhase(g); ph != models.PhaseBet1Open {
		t.Fatalf("Expected bet1_open after all choices in, got %s", ph)
	}
	g.Mu.Lock()
	for _, p := range g.Participants {
		if p.Choices[0] != "A" {
			t.Errorf("Slot %d: expected manual choice kept, got %q", p.Slot, p.Choices[0])
		}
		if p.ChoiceAuto[0] {
			t.Errorf("Slot %d: expected no fallback flag on quorum completion", p.Slot)
		}
		if p.FallbackCount != 0 {
			t.Errorf("Slot %d: expected fallback count 0, got %d", p.Slot, p.FallbackCount)
		}
	}
	g.Timer.Cancel()
	g.Mu.Unlock()
}

func TestChoiceTimeoutAssignsFallbacks(t *testing.T) {
	g := newTestGroup(2)
	logger := zap.NewNop()
	loadAll(g, logger)

	HandleChoice(g, 1, 1, "A", nil, logger)
	HandleChoice(g, 2, 1, "B", nil, logger)
	HandleChoice(g, 3, 1, "A", nil, logger)

	// Let the 60ms choice timer expire.
	time.Sleep(150 * time.Millisecond)

	if ph := currentPhase(g); ph != models.PhaseBet1Open {
		t.Fatalf("Expected timeout to advance to bet1_open, got %s", ph)
	}

	g.Mu.Lock()
	if got := g.Participants[0].Choices[0]; got != "A" {
		t.Errorf("Expected manual value preserved, got %q", got)
	}
	for _, slot := range []int{4, 5} {
		p := g.ParticipantBySlot(slot)
		if !ValidOption(p.Choices[0]) {
			t.Errorf("Slot %d: expected a fallback option, got %q", slot, p.Choices[0])
		}
		if !p.ChoiceAuto[0] {
			t.Errorf("Slot %d: expected fallback flag set", slot)
		}
		if p.FallbackCount != 1 {
			t.Errorf("Slot %d: expected fallback count 1, got %d", slot, p.FallbackCount)
		}
	}
	for _, slot := range []int{1, 2, 3} {
		if p := g.ParticipantBySlot(slot); p.ChoiceAuto[0] || p.FallbackCount != 0 {
			t.Errorf("Slot %d: manual submission must not count as fallback", slot)
		}
	}
	g.Timer.Cancel()
	g.Mu.Unlock()
}

func TestBetTimeoutAssignsFallbacks(t *testing.T) {
	g := newTestGroup(2)
	g.Settings.RevealTime = 2 * time.Second // hold the next phase while asserting
	logger := zap.NewNop()
	loadAll(g, logger)

	for slot := 1; slot <= g.Size; slot++ {
		HandleChoice(g, slot, 1, "A", nil, logger)
	}
	HandleBet(g, 1, 1, 2, nil, logger)
	HandleBet(g, 2, 1, 3, nil, logger)
	HandleBet(g, 3, 1, 1, nil, logger)

	// Let the 300ms bet timer expire.
	time.Sleep(450 * time.Millisecond)

	if ph := currentPhase(g); ph != models.PhaseRevealOthers {
		t.Fatalf("Expected timeout to advance to reveal_others, got %s", ph)
	}

	g.Mu.Lock()
	for _, tc := range []struct{ slot, stake int }{{1, 2}, {2, 3}, {3, 1}} {
		p := g.ParticipantBySlot(tc.slot)
		if p.Bets[0] != tc.stake || p.BetAuto[0] || p.FallbackCount != 0 {
			t.Errorf("Slot %d: manual stake must survive the timeout, got stake=%d auto=%v count=%d",
				tc.slot, p.Bets[0], p.BetAuto[0], p.FallbackCount)
		}
	}
	for _, slot := range []int{4, 5} {
		p := g.ParticipantBySlot(slot)
		if !ValidStake(p.Bets[0]) {
			t.Errorf("Slot %d: expected a fallback stake in {1,2,3}, got %d", slot, p.Bets[0])
		}
		if !p.BetAuto[0] {
			t.Errorf("Slot %d: expected fallback flag set", slot)
		}
		if p.FallbackCount != 1 {
			t.Errorf("Slot %d: expected fallback count 1, got %d", slot, p.FallbackCount)
		}
	}
	g.Timer.Cancel()
	g.Mu.Unlock()
}

func TestNoSubmissionsTimeoutFillsEverySlot(t *testing.T) {
	g := newTestGroup(2)
	logger := zap.NewNop()
	loadAll(g, logger)

	// Nobody submits; the 60ms choice timer expires.
	time.Sleep(150 * time.Millisecond)

	if ph := currentPhase(g); ph != models.PhaseBet1Open {
		t.Fatalf("Expected bet1_open after the empty choice phase, got %s", ph)
	}

	g.Mu.Lock()
	for _, p := range g.Participants {
		if !ValidOption(p.Choices[0]) {
			t.Errorf("Slot %d: expected a fallback option, got %q", p.Slot, p.Choices[0])
		}
		if !p.ChoiceAuto[0] || p.FallbackCount != 1 {
			t.Errorf("Slot %d: expected exactly one fallback, got auto=%v count=%d",
				p.Slot, p.ChoiceAuto[0], p.FallbackCount)
		}
	}
	g.Timer.Cancel()
	g.Mu.Unlock()
}

func TestLateChoiceDropped(t *testing.T) {
	g := newTestGroup(2)
	logger := zap.NewNop()
	loadAll(g, logger)

	for slot := 1; slot <= g.Size; slot++ {
		HandleChoice(g, slot, 1, "A", nil, logger)
	}
	if ph := currentPhase(g); ph != models.PhaseBet1Open {
		t.Fatalf("Expected bet1_open, got %s", ph)
	}

	// A choice for the already-completed phase arrives late.
	HandleChoice(g, 2, 1, "B", nil, logger)

	g.Mu.Lock()
	if got := g.Participants[1].Choices[0]; got != "A" {
		t.Errorf("Expected late choice dropped, value changed to %q", got)
	}
	if ph := g.Phase; ph != models.PhaseBet1Open {
		t.Errorf("Expected phase unchanged by late event, got %s", ph)
	}
	g.Timer.Cancel()
	g.Mu.Unlock()
}

func TestFullRoundAdvancesToNextRound(t *testing.T) {
	g := newTestGroup(2)
	logger := zap.NewNop()
	loadAll(g, logger)

	for slot := 1; slot <= g.Size; slot++ {
		HandleChoice(g, slot, 1, "A", nil, logger)
	}
	for slot := 1; slot <= g.Size; slot++ {
		HandleBet(g, slot, 1, 2, nil, logger)
	}
	if ph := currentPhase(g); ph != models.PhaseRevealOthers {
		t.Fatalf("Expected reveal_others after first bets, got %s", ph)
	}

	// The reveal display advances on its 30ms delay alone.
	time.Sleep(100 * time.Millisecond)
	if ph := currentPhase(g); ph != models.PhaseChoice2Open {
		t.Fatalf("Expected choice2_open after reveal delay, got %s", ph)
	}

	for slot := 1; slot <= g.Size; slot++ {
		HandleChoice(g, slot, 2, "B", nil, logger)
	}
	for slot := 1; slot <= g.Size; slot++ {
		HandleBet(g, slot, 2, 3, nil, logger)
	}

	// Results are computed synchronously at bet2 completion.
	out := g.Seq.Outcome(1)
	wantE1 := Earnings("A", 2, out, 20)
	wantE2 := Earnings("B", 3, out, 20)

	g.Mu.Lock()
	for _, p := range g.Participants {
		if p.Choice1Total != wantE1 {
			t.Errorf("Slot %d: expected choice1 total %d, got %d", p.Slot, wantE1, p.Choice1Total)
		}
		if p.Choice2Total != wantE2 {
			t.Errorf("Slot %d: expected choice2 total %d, got %d", p.Slot, wantE2, p.Choice2Total)
		}
		// Round 1 of the alternate policy feeds the bonus from decision 1.
		if p.BonusScore != wantE1 {
			t.Errorf("Slot %d: expected bonus score %d, got %d", p.Slot, wantE1, p.BonusScore)
		}
	}
	iti := g.Round.ITI
	g.Mu.Unlock()

	if iti < g.Settings.ITIMin || iti > g.Settings.ITIMax {
		t.Errorf("Expected ITI within [%v,%v], got %v", g.Settings.ITIMin, g.Settings.ITIMax, iti)
	}

	// After the ITI the group must be waiting for round 2 loads.
	time.Sleep(150 * time.Millisecond)
	g.Mu.Lock()
	defer g.Mu.Unlock()
	if g.Phase != models.PhaseAwaitLoad {
		t.Errorf("Expected await_load for next round, got %s", g.Phase)
	}
	if g.RoundIndex != 2 {
		t.Errorf("Expected round index 2, got %d", g.RoundIndex)
	}
	if g.Round.OutcomeSet {
		t.Error("Expected fresh round with no fixed outcome yet")
	}
	if len(g.Done) != 0 || len(g.Ready) != 0 {
		t.Error("Expected phase latches and ready set reset for the new round")
	}
	if g.Finished {
		t.Error("Expected session still running after a non-final round")
	}
}

func TestFinalRoundFinishesSession(t *testing.T) {
	g := newTestGroup(1)
	logger := zap.NewNop()
	loadAll(g, logger)

	for slot := 1; slot <= g.Size; slot++ {
		HandleChoice(g, slot, 1, "A", nil, logger)
	}
	for slot := 1; slot <= g.Size; slot++ {
		HandleBet(g, slot, 1, 1, nil, logger)
	}
	time.Sleep(100 * time.Millisecond) // reveal delay
	for slot := 1; slot <= g.Size; slot++ {
		HandleChoice(g, slot, 2, "B", nil, logger)
	}
	for slot := 1; slot <= g.Size; slot++ {
		HandleBet(g, slot, 2, 1, nil, logger)
	}
	time.Sleep(150 * time.Millisecond) // ITI

	g.Mu.Lock()
	defer g.Mu.Unlock()
	if !g.Finished {
		t.Fatal("Expected session finished after the last round")
	}
	if g.Phase != models.PhaseRoundDone {
		t.Errorf("Expected round_done terminal phase, got %s", g.Phase)
	}

	// A stray page_loaded after the end must be ignored.
	g.Mu.Unlock()
	HandlePageLoaded(g, 1, nil, logger)
	g.Mu.Lock()
	if g.Phase != models.PhaseRoundDone {
		t.Errorf("Expected terminal phase stable, got %s", g.Phase)
	}
}

func TestEventValidators(t *testing.T) {
	if !ValidOption("A") || !ValidOption("B") {
		t.Error("Expected A and B to be valid options")
	}
	if ValidOption("") || ValidOption("C") {
		t.Error("Expected non-task labels rejected")
	}
	for s := 1; s <= 3; s++ {
		if !ValidStake(s) {
			t.Errorf("Expected stake %d valid", s)
		}
	}
	if ValidStake(0) || ValidStake(4) {
		t.Error("Expected stakes outside {1,2,3} rejected")
	}
	if !ValidDecisionPhase(1) || !ValidDecisionPhase(2) {
		t.Error("Expected decision phases 1 and 2 valid")
	}
	if ValidDecisionPhase(0) || ValidDecisionPhase(3) {
		t.Error("Expected decision phases outside {1,2} rejected")
	}

	if _, ok := intFromJSON(2.7); ok {
		t.Error("Expected non-integral JSON number rejected")
	}
	if n, ok := intFromJSON(3); !ok || n != 3 {
		t.Errorf("Expected integral JSON number accepted, got %d/%v", n, ok)
	}
	if n, ok := intFromJSON(2.0); !ok || n != 2 {
		t.Errorf("Expected 2.0 accepted as 2, got %d/%v", n, ok)
	}
}
