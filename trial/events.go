package trial

import (
	"encoding/json"
	"math"

	"rlserver/models"
	"rlserver/sequence"
	"rlserver/trial/broadcast"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ValidOption reports whether an option label is one of the two task options.
func ValidOption(option string) bool {
	return option == sequence.OptionA || option == sequence.OptionB
}

// ValidStake reports whether a stake is in the allowed set {1,2,3}.
func ValidStake(stake int) bool {
	return stake >= 1 && stake <= 3
}

// ValidDecisionPhase reports whether a decision number is 1 or 2.
func ValidDecisionPhase(phase int) bool {
	return phase == 1 || phase == 2
}

// intFromJSON converts a decoded JSON number to an int, rejecting
// non-integral values so a stake of 2.7 is not accepted as 2.
func intFromJSON(f float64) (int, bool) {
	if f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// HandleClient はクライアント毎のメッセージ読み取りゴルーチン。受信イベント
// を検証し、状態機械へ渡す。不正なイベントは境界で拒否し、他参加者の進行
// は妨げない。
func HandleClient(client *models.Client, reg *models.Registry, g *models.Group, db *gorm.DB, logger *zap.Logger) {
	defer func() {
		client.Conn.Close()
		reg.RemoveClient(client)
		// 切断をグループ状態へ反映
		g.Mu.Lock()
		if p := g.ParticipantBySlot(client.Slot); p != nil && p.Conn == client.Conn {
			p.Online = false
			p.Conn = nil
		}
		broadcast.NotifyOnlineStatus(g, client.Slot, false, logger)
		g.Mu.Unlock()
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		// 受信したメッセージをJSON形式でデコード
		var msg map[string]interface{}
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Error("Error decoding message", zap.Error(err))
			continue
		}

		msgType, _ := msg["type"].(string)
		switch msgType {
		case "page_loaded":
			HandlePageLoaded(g, client.Slot, db, logger)

		case "choice_submitted":
			phaseFloat, okP := msg["phase"].(float64)
			option, okO := msg["option"].(string)
			phaseNo, okI := intFromJSON(phaseFloat)
			if !okP || !okO || !okI || !ValidDecisionPhase(phaseNo) || !ValidOption(option) {
				sendErrorMessage(client, "Invalid choice event")
				logger.Error("Malformed choice event rejected",
					zap.Int("slot", client.Slot), zap.Any("msg", msg))
				continue
			}
			HandleChoice(g, client.Slot, phaseNo, option, db, logger)

		case "bet_submitted":
			phaseFloat, okP := msg["phase"].(float64)
			stakeFloat, okS := msg["stake"].(float64)
			phaseNo, okPI := intFromJSON(phaseFloat)
			stake, okSI := intFromJSON(stakeFloat)
			if !okP || !okS || !okPI || !okSI || !ValidDecisionPhase(phaseNo) || !ValidStake(stake) {
				sendErrorMessage(client, "Invalid bet event")
				logger.Error("Malformed bet event rejected",
					zap.Int("slot", client.Slot), zap.Any("msg", msg))
				continue
			}
			HandleBet(g, client.Slot, phaseNo, stake, db, logger)

		case "ack_display":
			HandleAckDisplay(g, client.Slot, logger)

		default:
			logger.Info("Received unknown message type", zap.Any("message", msg))
		}
	}
}
