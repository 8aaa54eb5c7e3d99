package broadcast

import (
	"encoding/json"
	"time"

	"rlserver/models"

	"go.uber.org/zap"

	"github.com/gorilla/websocket"
)

// ChoiceView is one co-participant's finalized choice as shown to a
// recipient: the slot, the binary-encoded option and whether it was a
// fallback assignment.
type ChoiceView struct {
	Slot   int  `json:"slot"`
	Binary int  `json:"choice"`
	Auto   bool `json:"computerAssigned"`
}

// RoundResult is one participant's RESULTS payload.
type RoundResult struct {
	Choice2       string `json:"choice2"`
	Reward2       int    `json:"reward2"` // realized reward for the phase-2 choice
	Earnings1     int    `json:"earnings1"`
	Earnings2     int    `json:"earnings2"`
	Choice1Total  int    `json:"choice1Total"`
	Choice2Total  int    `json:"choice2Total"`
	BonusScore    int    `json:"bonusScore"`
	WinIndicator  int    `json:"win"` // 1 if the phase-2 choice was rewarded
	ITIMillis     int64  `json:"itiMillis"`
	RoundIndex    int    `json:"round"`
	FallbackCount int    `json:"fallbackCount"`
}

// 1人の参加者へペイロードを送信するヘルパー関数
func sendToParticipant(p *models.Participant, payload map[string]interface{}, logger *zap.Logger) {
	if p == nil || p.Conn == nil {
		return
	}
	messageJSON, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Failed to marshal payload", zap.Error(err))
		return
	}
	if err := p.Conn.WriteMessage(websocket.TextMessage, messageJSON); err != nil {
		logger.Error("Failed to send message", zap.Int("slot", p.Slot), zap.Error(err))
	}
}

// グループ全員へ同一ペイロードを送信
func sendToGroup(g *models.Group, payload map[string]interface{}, logger *zap.Logger) {
	for _, p := range g.Participants {
		sendToParticipant(p, payload, logger)
	}
}

// LobbyState はグループが揃うまでの待機状態をブロードキャストするヘルパー関数
func LobbyState(g *models.Group, logger *zap.Logger) {
	participantsInfo := make([]map[string]interface{}, 0, len(g.Participants))
	for _, p := range g.Participants {
		if p != nil {
			participantsInfo = append(participantsInfo, map[string]interface{}{
				"slot":     p.Slot,
				"nickname": p.Nickname,
				"online":   p.Online,
			})
		}
	}
	sendToGroup(g, map[string]interface{}{
		"type":         "lobbyState",
		"joined":       g.JoinedCount(),
		"groupSize":    g.Size,
		"participants": participantsInfo,
	}, logger)
}

// PhaseStart は新フェーズ開始とタイマー時間を全員へ通知
func PhaseStart(g *models.Group, phase models.Phase, d time.Duration, logger *zap.Logger) {
	sendToGroup(g, map[string]interface{}{
		"type":           "startPhaseTimer",
		"phase":          phase.String(),
		"round":          g.RoundIndex,
		"durationMillis": d.Milliseconds(),
	}, logger)
}

// ChoiceSummary は選択フェーズ完了後、受信者毎に他参加者の選択
// （二値表現と代理入力フラグ）および同調/非同調カウントを送信する。
func ChoiceSummary(g *models.Group, phaseNo int, views map[int][]ChoiceView, with, against map[int]int, logger *zap.Logger) {
	for _, p := range g.Participants {
		if p == nil {
			continue
		}
		sendToParticipant(p, map[string]interface{}{
			"type":    "revealChoiceSummary",
			"phase":   phaseNo,
			"round":   g.RoundIndex,
			"others":  views[p.Slot],
			"with":    with[p.Slot],
			"against": against[p.Slot],
		}, logger)
	}
}

// Results はラウンド結果を受信者毎の値で送信する。
func Results(g *models.Group, results map[int]RoundResult, logger *zap.Logger) {
	for _, p := range g.Participants {
		if p == nil {
			continue
		}
		r := results[p.Slot]
		sendToParticipant(p, map[string]interface{}{
			"type":    "revealResults",
			"round":   g.RoundIndex,
			"results": r,
		}, logger)
	}
}

// RoundComplete はラウンド終了を通知。セッション継続時は次ラウンド番号を含む。
func RoundComplete(g *models.Group, nextRound int, logger *zap.Logger) {
	payload := map[string]interface{}{
		"type":     "roundComplete",
		"round":    g.RoundIndex,
		"finished": g.Finished,
	}
	if !g.Finished {
		payload["nextRound"] = nextRound
	}
	sendToGroup(g, payload, logger)
}

// SessionSummary は全ラウンド終了後に最終ボーナスを送信する。
func SessionSummary(g *models.Group, bonuses map[int]float64, logger *zap.Logger) {
	for _, p := range g.Participants {
		if p == nil {
			continue
		}
		sendToParticipant(p, map[string]interface{}{
			"type":         "sessionSummary",
			"rounds":       g.Settings.NumRounds,
			"choice1Total": p.Choice1Total,
			"choice2Total": p.Choice2Total,
			"bonusScore":   p.BonusScore,
			"finalBonus":   bonuses[p.Slot],
		}, logger)
	}
}

// NotifyOnlineStatus は接続状態の変化を同グループの他参加者へ通知する。
func NotifyOnlineStatus(g *models.Group, slot int, isOnline bool, logger *zap.Logger) {
	for _, p := range g.Participants {
		if p == nil || p.Slot == slot {
			continue
		}
		sendToParticipant(p, map[string]interface{}{
			"type":     "onlineStatus",
			"slot":     slot,
			"isOnline": isOnline,
		}, logger)
	}
}
