package screens

import (
	"net/http"

	"rlserver/middlewares"
	"rlserver/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ParticipantStatusHandler はトークンに紐づく参加記録と累計スコアを返す
// ハンドラです。再接続時にクライアントが表示を復元するために使用します。
func ParticipantStatusHandler(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	claims, err := middlewares.TokenAuthentication(c, logger)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var record models.ParticipantRecord
	if err := db.Where("session_id = ? AND slot = ? AND user_id = ?",
		claims.SessionID, claims.Slot, claims.UserID).First(&record).Error; err != nil {
		logger.Error("Failed to fetch participant record", zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"error": "Participant not found"})
		return
	}

	var session models.ExperimentSession
	if err := db.Where("id = ?", claims.SessionID).First(&session).Error; err != nil {
		logger.Error("Failed to fetch session", zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId":     session.ID,
		"state":         session.State,
		"slot":          record.Slot,
		"nickname":      record.Nickname,
		"roundsPlayed":  record.RoundsPlayed,
		"numRounds":     session.NumRounds,
		"choice1Total":  record.Choice1Total,
		"choice2Total":  record.Choice2Total,
		"bonusScore":    record.BonusScore,
		"fallbackCount": record.FallbackCount,
	})
}
