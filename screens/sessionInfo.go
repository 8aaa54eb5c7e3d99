package screens

import (
	"net/http"

	"rlserver/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SessionInfoHandler は参加コードに対応するセッションの状態を返すハンドラです。
func SessionInfoHandler(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code query parameter required"})
		return
	}

	var session models.ExperimentSession
	if err := db.Where("code = ?", code).First(&session).Error; err != nil {
		logger.Error("Session not found with code", zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	var joined int64
	if err := db.Model(&models.ParticipantRecord{}).Where("session_id = ?", session.ID).Count(&joined).Error; err != nil {
		logger.Error("Failed to count participants", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count participants"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId": session.ID,
		"state":     session.State,
		"joined":    joined,
		"groupSize": session.GroupSize,
		"numRounds": session.NumRounds,
	})
}
