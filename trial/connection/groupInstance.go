package connection

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"rlserver/models"
	"rlserver/sequence"
	"rlserver/trial/broadcast"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 乱数は代理入力やラウンド間隔の抽選に使用
func createLocalRandGenerator() *rand.Rand {
	source := rand.NewSource(time.Now().UnixNano())
	return rand.New(source)
}

// ManageGroupInstance はグループインスタンスを検索または作成し、クライアント
// の参加スロットを接続します。検索と作成はレジストリのロック下で一体に行う
// ため、同時に接続した初回参加者が別々のインスタンスを作ることはない。
// 報酬系列はセッションのシードから再生成されるため、再起動後も永続化された
// 報酬テーブルと完全に一致する。
func ManageGroupInstance(ctx context.Context, db *gorm.DB, logger *zap.Logger, reg *models.Registry, client *models.Client, conn *models.WSConn) (*models.Group, error) {
	g, created, err := reg.FindOrCreateGroup(client.SessionID, func() (*models.Group, error) {
		return buildGroupInstance(db, client, logger)
	})
	if err != nil {
		return nil, err
	}

	g.Mu.Lock()
	defer g.Mu.Unlock()
	if p := g.ParticipantBySlot(client.Slot); p != nil {
		// 再接続処理：新しいWebSocket接続を設定
		p.Conn = conn
		p.Online = true
		logger.Info("Participant rejoined the group",
			zap.Uint("UserID", client.UserID), zap.Uint("SessionID", client.SessionID), zap.Int("Slot", client.Slot))
	} else {
		record, err := fetchParticipantRecord(db, client)
		if err != nil {
			return nil, err
		}
		g.Participants[client.Slot-1] = newParticipant(client, record, conn)
		logger.Info("Participant joined the group",
			zap.Uint("UserID", client.UserID), zap.Uint("SessionID", client.SessionID), zap.Int("Slot", client.Slot))
	}

	if !created {
		broadcast.NotifyOnlineStatus(g, client.Slot, true, logger)
	}
	broadcast.LobbyState(g, logger)
	return g, nil
}

// buildGroupInstance はセッション情報をデータベースから取得して新しい
// グループを組み立てる。レジストリのロック下で呼ばれる。
func buildGroupInstance(db *gorm.DB, client *models.Client, logger *zap.Logger) (*models.Group, error) {
	var session models.ExperimentSession
	if err := db.Where("id = ?", client.SessionID).First(&session).Error; err != nil {
		logger.Error("Failed to retrieve session from database", zap.Error(err))
		return nil, err
	}
	if session.State == "finished" || session.State == "expired" {
		return nil, fmt.Errorf("session %d is %s", session.ID, session.State)
	}

	// シードから報酬系列とボーナス対象スロット系列を再生成
	seq := sequence.Generate(sequence.Config{
		NumRounds:      session.NumRounds,
		Seed:           session.Seed,
		HighFraction:   session.HighFraction,
		ReversalMinGap: session.ReversalMinGap,
		ReversalMaxGap: session.ReversalMaxGap,
	})

	g := &models.Group{
		SessionID:    session.ID,
		Code:         session.Code,
		Size:         session.GroupSize,
		Participants: make([]*models.Participant, session.GroupSize),
		Seq:          seq,
		BonusSlots:   sequence.BonusSlots(session.NumRounds, session.Seed, session.BonusPolicy),
		Settings:     session.RuntimeSettings(),
		RoundIndex:   1,
		Round:        &models.Round{Index: 1},
		Phase:        models.PhaseAwaitLoad,
		Ready:        make(map[int]bool),
		Done:         make(map[models.Phase]bool),
		RandGen:      createLocalRandGenerator(),
	}
	logger.Info("New group instance created",
		zap.Uint("SessionID", session.ID), zap.Int("GroupSize", session.GroupSize))
	return g, nil
}

func fetchParticipantRecord(db *gorm.DB, client *models.Client) (*models.ParticipantRecord, error) {
	var record models.ParticipantRecord
	if err := db.Where("session_id = ? AND slot = ?", client.SessionID, client.Slot).First(&record).Error; err != nil {
		return nil, fmt.Errorf("participant record fetch failed: %w", err)
	}
	return &record, nil
}

func newParticipant(client *models.Client, record *models.ParticipantRecord, conn *models.WSConn) *models.Participant {
	return &models.Participant{
		Slot:          client.Slot,
		UserID:        client.UserID,
		RecordID:      record.ID,
		Nickname:      record.Nickname,
		Conn:          conn,
		Online:        true,
		Choice1Total:  record.Choice1Total,
		Choice2Total:  record.Choice2Total,
		BonusScore:    record.BonusScore,
		FallbackCount: record.FallbackCount,
	}
}
