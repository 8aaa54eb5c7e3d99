package trial

import (
	"time"

	"rlserver/models"
	"rlserver/sequence"
	"rlserver/trial/broadcast"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// このファイルはグループ単位のラウンド状態機械を実装する。フェーズは
// AWAIT_LOAD → CHOICE1_OPEN → BET1_OPEN → REVEAL_OTHERS → CHOICE2_OPEN →
// BET2_OPEN → RESULTS → ROUND_DONE の順に、各ラウンドで一度だけ遷移する。
// フェーズ完了は「全員の入力が揃う」か「タイマー満了」の早い方。満了時は
// 未入力のスロットに一様乱数の代理値を割り当てる。

// choicePhase maps a decision number (1 or 2) to its choice phase.
func choicePhase(n int) models.Phase {
	if n == 2 {
		return models.PhaseChoice2Open
	}
	return models.PhaseChoice1Open
}

// betPhase maps a decision number (1 or 2) to its bet phase.
func betPhase(n int) models.Phase {
	if n == 2 {
		return models.PhaseBet2Open
	}
	return models.PhaseBet1Open
}

func phaseDuration(g *models.Group, phase models.Phase) time.Duration {
	switch phase {
	case models.PhaseChoice1Open, models.PhaseChoice2Open:
		return g.Settings.ChoiceTime
	case models.PhaseBet1Open, models.PhaseBet2Open:
		return g.Settings.BetTime
	case models.PhaseRevealOthers:
		return g.Settings.RevealTime
	}
	return 0
}

// HandlePageLoaded は page_loaded イベントを処理する。全スロットが報告
// した時点でラウンドの報酬を確定しCHOICE1を開く。同一スロットからの
// 重複報告は準備カウントを増やさない。
func HandlePageLoaded(g *models.Group, slot int, db *gorm.DB, logger *zap.Logger) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.Finished {
		return
	}
	if g.Phase != models.PhaseAwaitLoad {
		logger.Info("Late page_loaded dropped", zap.Int("slot", slot), zap.String("phase", g.Phase.String()))
		return
	}
	if g.ParticipantBySlot(slot) == nil {
		logger.Error("page_loaded for unknown slot", zap.Int("slot", slot))
		return
	}
	if g.Ready[slot] {
		return
	}
	g.Ready[slot] = true
	logger.Info("Participant ready",
		zap.Uint("sessionID", g.SessionID),
		zap.Int("slot", slot),
		zap.Int("ready", len(g.Ready)),
		zap.Int("groupSize", g.Size),
	)

	if len(g.Ready) == g.Size {
		beginRoundLocked(g, db, logger)
	}
}

// beginRoundLocked はラウンドの報酬を生成済み系列から一度だけコピーし、
// 参加者のラウンド入力を初期化してCHOICE1を開く。再実行しても報酬は
// 再抽選されない（OutcomeSetラッチ）。
func beginRoundLocked(g *models.Group, db *gorm.DB, logger *zap.Logger) {
	if g.Round == nil {
		g.Round = &models.Round{Index: g.RoundIndex}
	}
	if !g.Round.OutcomeSet {
		g.Round.Outcome = g.Seq.Outcome(g.Round.Index)
		g.Round.OutcomeSet = true
		for _, p := range g.Participants {
			if p != nil {
				p.ResetRound()
			}
		}
		logger.Info("Round outcome fixed",
			zap.Uint("sessionID", g.SessionID),
			zap.Int("round", g.Round.Index),
			zap.String("highOption", g.Round.Outcome.HighOption),
			zap.Bool("reversal", g.Round.Outcome.Reversal),
		)
	}
	if g.RoundIndex == 1 && db != nil {
		if err := db.Model(&models.ExperimentSession{}).
			Where("id = ?", g.SessionID).Update("state", "running").Error; err != nil {
			logger.Error("Failed to mark session running", zap.Uint("sessionID", g.SessionID), zap.Error(err))
		}
	}
	openPhaseLocked(g, models.PhaseChoice1Open, db, logger)
}

// openPhaseLocked はタイマー付きフェーズを開始する。フェーズ毎に新しい
// タイマーを生成し、満了時は未入力スロットへの代理割当てを経て完了させる。
func openPhaseLocked(g *models.Group, phase models.Phase, db *gorm.DB, logger *zap.Logger) {
	g.Phase = phase
	g.Ready = make(map[int]bool)
	d := phaseDuration(g, phase)
	broadcast.PhaseStart(g, phase, d, logger)

	ph := phase
	g.Timer = models.StartPhaseTimer(d, func() {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		if g.Phase != ph || g.Done[ph] {
			return
		}
		completePhaseLocked(g, ph, true, db, logger)
	})
}

// HandleChoice は choice_submitted イベントを処理する。完了済みフェーズへの
// 遅延イベントは黙って破棄し、既に値を持つフィールドは上書きしない。
func HandleChoice(g *models.Group, slot int, phaseNo int, option string, db *gorm.DB, logger *zap.Logger) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	want := choicePhase(phaseNo)
	if g.Phase != want || g.Done[want] {
		logger.Info("Late choice dropped",
			zap.Int("slot", slot), zap.Int("phase", phaseNo), zap.String("current", g.Phase.String()))
		return
	}
	p := g.ParticipantBySlot(slot)
	if p == nil {
		return
	}
	idx := phaseNo - 1
	if p.Choices[idx] != "" {
		// 手動入力が常に優先、ただし一度だけ
		return
	}
	p.Choices[idx] = option
	p.ChoiceAuto[idx] = false
	g.Ready[slot] = true

	if len(g.Ready) == g.Size && g.Timer.Cancel() {
		completePhaseLocked(g, want, false, db, logger)
	}
}

// HandleBet は bet_submitted イベントを処理する。賭け金は{1,2,3}に
// 検証済みで渡される。
func HandleBet(g *models.Group, slot int, phaseNo int, stake int, db *gorm.DB, logger *zap.Logger) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	want := betPhase(phaseNo)
	if g.Phase != want || g.Done[want] {
		logger.Info("Late bet dropped",
			zap.Int("slot", slot), zap.Int("phase", phaseNo), zap.String("current", g.Phase.String()))
		return
	}
	p := g.ParticipantBySlot(slot)
	if p == nil {
		return
	}
	idx := phaseNo - 1
	if p.Bets[idx] != 0 {
		return
	}
	p.Bets[idx] = stake
	p.BetAuto[idx] = false
	g.Ready[slot] = true

	if len(g.Ready) == g.Size && g.Timer.Cancel() {
		completePhaseLocked(g, want, false, db, logger)
	}
}

// HandleAckDisplay は表示確認イベントを記録するだけで、REVEAL_OTHERSの
// 遷移は固定ディレイのみで決まる。
func HandleAckDisplay(g *models.Group, slot int, logger *zap.Logger) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	logger.Info("Display acknowledged", zap.Int("slot", slot), zap.String("phase", g.Phase.String()))
}

// completePhaseLocked はフェーズ完了アクションを一度だけ実行する。
// 全員入力とタイマー満了が競合しても、ラッチにより二重実行されない。
func completePhaseLocked(g *models.Group, phase models.Phase, timedOut bool, db *gorm.DB, logger *zap.Logger) {
	if g.Done[phase] {
		return
	}
	g.Done[phase] = true
	if timedOut {
		assignFallbacksLocked(g, phase, logger)
	}
	logger.Info("Phase complete",
		zap.Uint("sessionID", g.SessionID),
		zap.Int("round", g.RoundIndex),
		zap.String("phase", phase.String()),
		zap.Bool("timedOut", timedOut),
	)

	switch phase {
	case models.PhaseChoice1Open:
		revealChoicesLocked(g, 1, logger)
		openPhaseLocked(g, models.PhaseBet1Open, db, logger)
	case models.PhaseBet1Open:
		openPhaseLocked(g, models.PhaseRevealOthers, db, logger)
	case models.PhaseRevealOthers:
		openPhaseLocked(g, models.PhaseChoice2Open, db, logger)
	case models.PhaseChoice2Open:
		revealChoicesLocked(g, 2, logger)
		openPhaseLocked(g, models.PhaseBet2Open, db, logger)
	case models.PhaseBet2Open:
		enterResultsLocked(g, db, logger)
	case models.PhaseResults:
		finishRoundLocked(g, db, logger)
	}
}

// assignFallbacksLocked はタイマー満了時、未入力のスロットに一様乱数の
// 代理値を割り当てる。既に値を持つフィールドには触れない。
func assignFallbacksLocked(g *models.Group, phase models.Phase, logger *zap.Logger) {
	for _, p := range g.Participants {
		if p == nil {
			continue
		}
		switch phase {
		case models.PhaseChoice1Open, models.PhaseChoice2Open:
			idx := 0
			if phase == models.PhaseChoice2Open {
				idx = 1
			}
			if p.Choices[idx] == "" {
				option := sequence.OptionA
				if g.RandGen.Intn(2) == 1 {
					option = sequence.OptionB
				}
				p.Choices[idx] = option
				p.ChoiceAuto[idx] = true
				p.FallbackCount++
				logger.Info("Fallback choice assigned", zap.Int("slot", p.Slot), zap.String("option", option))
			}
		case models.PhaseBet1Open, models.PhaseBet2Open:
			idx := 0
			if phase == models.PhaseBet2Open {
				idx = 1
			}
			if p.Bets[idx] == 0 {
				stake := 1 + g.RandGen.Intn(3)
				p.Bets[idx] = stake
				p.BetAuto[idx] = true
				p.FallbackCount++
				logger.Info("Fallback bet assigned", zap.Int("slot", p.Slot), zap.Int("stake", stake))
			}
		}
	}
}

// revealChoicesLocked は受信者毎に他参加者の選択サマリ（二値表現・
// 代理入力フラグ・同調カウント)を組み立てて送信する。
func revealChoicesLocked(g *models.Group, phaseNo int, logger *zap.Logger) {
	idx := phaseNo - 1
	views := make(map[int][]broadcast.ChoiceView, g.Size)
	withCounts := make(map[int]int, g.Size)
	againstCounts := make(map[int]int, g.Size)

	for _, p := range g.Participants {
		if p == nil {
			continue
		}
		others := make([]string, 0, g.Size-1)
		viewList := make([]broadcast.ChoiceView, 0, g.Size-1)
		for _, o := range g.Participants {
			if o == nil || o.Slot == p.Slot {
				continue
			}
			others = append(others, o.Choices[idx])
			viewList = append(viewList, broadcast.ChoiceView{
				Slot:   o.Slot,
				Binary: EncodeChoice(o.Choices[idx]),
				Auto:   o.ChoiceAuto[idx],
			})
		}
		with, against := CompareChoices(p.Choices[idx], others)
		views[p.Slot] = viewList
		withCounts[p.Slot] = with
		againstCounts[p.Slot] = against
	}

	broadcast.ChoiceSummary(g, phaseNo, views, withCounts, againstCounts, logger)
}

// enterResultsLocked は全参加者の報酬を同時に計算し（到着順には依存しない）、
// ラウンド間隔を抽選して結果を送信、ITIタイマーでROUND_DONEへ進む。
func enterResultsLocked(g *models.Group, db *gorm.DB, logger *zap.Logger) {
	g.Phase = models.PhaseResults
	g.Ready = make(map[int]bool)

	out := g.Round.Outcome
	bonusSlot := 1
	if g.RoundIndex-1 < len(g.BonusSlots) {
		bonusSlot = g.BonusSlots[g.RoundIndex-1]
	}

	iti := g.Settings.ITIMin
	if span := int64(g.Settings.ITIMax - g.Settings.ITIMin); span > 0 {
		iti += time.Duration(g.RandGen.Int63n(span + 1))
	}
	g.Round.ITI = iti

	results := make(map[int]broadcast.RoundResult, g.Size)
	for _, p := range g.Participants {
		if p == nil {
			continue
		}
		e1, e2 := ApplyRoundPayoffs(p, out, g.Settings.PayoffUnit, bonusSlot)
		reward2 := out.RewardB
		if p.Choices[1] == sequence.OptionA {
			reward2 = out.RewardA
		}
		results[p.Slot] = broadcast.RoundResult{
			Choice2:       p.Choices[1],
			Reward2:       reward2,
			Earnings1:     e1,
			Earnings2:     e2,
			Choice1Total:  p.Choice1Total,
			Choice2Total:  p.Choice2Total,
			BonusScore:    p.BonusScore,
			WinIndicator:  reward2,
			ITIMillis:     iti.Milliseconds(),
			RoundIndex:    g.RoundIndex,
			FallbackCount: p.FallbackCount,
		}
	}

	persistRoundLocked(g, db, logger)
	broadcast.Results(g, results, logger)

	g.Timer = models.StartPhaseTimer(iti, func() {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		if g.Phase != models.PhaseResults || g.Done[models.PhaseResults] {
			return
		}
		completePhaseLocked(g, models.PhaseResults, false, db, logger)
	})
}

// persistRoundLocked は各参加者の累計をデータベースへ反映する。
func persistRoundLocked(g *models.Group, db *gorm.DB, logger *zap.Logger) {
	if db == nil {
		return
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, p := range g.Participants {
			if p == nil || p.RecordID == 0 {
				continue
			}
			updates := map[string]interface{}{
				"choice1_total":  p.Choice1Total,
				"choice2_total":  p.Choice2Total,
				"bonus_score":    p.BonusScore,
				"rounds_played":  g.RoundIndex,
				"fallback_count": p.FallbackCount,
			}
			if err := tx.Model(&models.ParticipantRecord{}).Where("id = ?", p.RecordID).Updates(updates).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to persist round totals", zap.Uint("sessionID", g.SessionID), zap.Error(err))
	}
}

// finishRoundLocked はROUND_DONEへ遷移し、次ラウンドのAWAIT_LOADを用意
// するか、最終ラウンドであればセッションを終了する。
func finishRoundLocked(g *models.Group, db *gorm.DB, logger *zap.Logger) {
	g.Phase = models.PhaseRoundDone
	g.Timer = nil

	if g.RoundIndex < g.Settings.NumRounds {
		next := g.RoundIndex + 1
		broadcast.RoundComplete(g, next, logger)
		g.RoundIndex = next
		g.Round = &models.Round{Index: next}
		g.Ready = make(map[int]bool)
		g.Done = make(map[models.Phase]bool)
		g.Phase = models.PhaseAwaitLoad
		return
	}

	g.Finished = true
	broadcast.RoundComplete(g, 0, logger)

	bonuses := make(map[int]float64, g.Size)
	for _, p := range g.Participants {
		if p == nil {
			continue
		}
		bonuses[p.Slot] = FinalBonus(p.BonusScore, g.Settings.BonusDivisor)
	}
	broadcast.SessionSummary(g, bonuses, logger)

	if db != nil {
		if err := db.Model(&models.ExperimentSession{}).
			Where("id = ?", g.SessionID).Update("state", "finished").Error; err != nil {
			logger.Error("Failed to finalize session", zap.Uint("sessionID", g.SessionID), zap.Error(err))
		}
	}
	logger.Info("Session finished", zap.Uint("sessionID", g.SessionID), zap.Int("rounds", g.RoundIndex))
}
