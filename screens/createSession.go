package screens

import (
	"net/http"
	"time"

	"rlserver/models"
	"rlserver/sequence"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SessionCreateRequest はセッション作成リクエストのボディを表す構造体です。
// 省略されたフィールドにはconfig.jsonのデフォルト値が適用されます。
type SessionCreateRequest struct {
	Seed           int64   `json:"seed"`
	NumRounds      int     `json:"numRounds"`
	GroupSize      int     `json:"groupSize"`
	HighFraction   float64 `json:"highFraction"`
	ReversalMinGap int     `json:"reversalMinGap"`
	ReversalMaxGap int     `json:"reversalMaxGap"`
	BonusPolicy    string  `json:"bonusPolicy"`
}

// SessionCreate は実験セッションを作成するハンドラです。報酬系列を生成し、
// 監査・再現用の報酬テーブルをトランザクション内で一度だけ書き込みます。
func SessionCreate(c *gin.Context, db *gorm.DB, cfg models.ExperimentDefaults, logger *zap.Logger) {
	var request SessionCreateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		logger.Error("Request binding error", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request binding error"})
		return
	}

	if request.Seed == 0 {
		request.Seed = time.Now().UnixNano()
	}
	if request.NumRounds == 0 {
		request.NumRounds = cfg.NumRounds
	}
	if request.GroupSize == 0 {
		request.GroupSize = cfg.GroupSize
	}
	if request.GroupSize != 3 && request.GroupSize != 5 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "groupSize must be 3 or 5"})
		return
	}
	if request.NumRounds < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "numRounds must be positive"})
		return
	}
	if request.HighFraction == 0 {
		request.HighFraction = cfg.HighFraction
	}
	if request.ReversalMinGap == 0 {
		request.ReversalMinGap = cfg.ReversalMinGap
	}
	if request.ReversalMaxGap == 0 {
		request.ReversalMaxGap = cfg.ReversalMaxGap
	}
	if request.ReversalMaxGap < request.ReversalMinGap {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reversal gap interval"})
		return
	}
	if request.BonusPolicy == "" {
		request.BonusPolicy = cfg.BonusPolicy
	}

	// 報酬系列と反転ラウンドを生成
	seq := sequence.Generate(sequence.Config{
		NumRounds:      request.NumRounds,
		Seed:           request.Seed,
		HighFraction:   request.HighFraction,
		ReversalMinGap: request.ReversalMinGap,
		ReversalMaxGap: request.ReversalMaxGap,
	})

	session := models.ExperimentSession{
		Code:           uuid.New().String(),
		Seed:           request.Seed,
		NumRounds:      request.NumRounds,
		GroupSize:      request.GroupSize,
		HighFraction:   request.HighFraction,
		ReversalMinGap: request.ReversalMinGap,
		ReversalMaxGap: request.ReversalMaxGap,
		ChoiceSeconds:  cfg.ChoiceSeconds,
		BetSeconds:     cfg.BetSeconds,
		RevealSeconds:  cfg.RevealSeconds,
		ITIMinMillis:   cfg.ITIMinMillis,
		ITIMaxMillis:   cfg.ITIMaxMillis,
		PayoffUnit:     cfg.PayoffUnit,
		BonusDivisor:   cfg.BonusDivisor,
		BonusPolicy:    request.BonusPolicy,
		State:          "created",
	}

	// セッションと報酬テーブルをまとめて書き込む
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&session).Error; err != nil {
			return err
		}
		for _, out := range seq.Rounds {
			row := models.RewardRow{
				SessionID:  session.ID,
				RoundIndex: out.Index,
				HighOption: out.HighOption,
				RewardA:    out.RewardA,
				RewardB:    out.RewardB,
				Reversal:   out.Reversal,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to create session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	logger.Info("Session created",
		zap.Uint("sessionID", session.ID),
		zap.Int64("seed", session.Seed),
		zap.Int("numRounds", session.NumRounds),
		zap.Int("reversals", len(seq.Reversals)),
	)

	c.JSON(http.StatusCreated, gin.H{
		"sessionId": session.ID,
		"code":      session.Code,
		"seed":      session.Seed,
		"numRounds": session.NumRounds,
		"groupSize": session.GroupSize,
	})
}
