package screens

import (
	"net/http"
	"strings"

	"rlserver/auth"
	"rlserver/middlewares"
	"rlserver/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// JoinRequest は参加申請リクエストのボディを表す構造体です。
type JoinRequest struct {
	Nickname string `json:"nickname"`
}

// JoinHandler は参加コードでセッションのスロットを割り当て、WebSocket接続用
// のJWTトークンを発行するハンドラです。
func JoinHandler(c *gin.Context, db *gorm.DB, logger *zap.Logger) {
	code := c.Param("code") // URLから参加コードを取得

	var session models.ExperimentSession
	if err := db.Where("code = ?", code).First(&session).Error; err != nil {
		logger.Error("Session not found with code", zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	if session.State != "created" && session.State != "running" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Session is no longer joinable"})
		return
	}

	// 有効なトークンを既に持つクライアントは新しいスロットを取らない
	if tokenString := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "); tokenString != "" {
		if ok, _ := auth.IsValidToken(tokenString); ok {
			c.JSON(http.StatusConflict, gin.H{"error": "Already joined, reconnect via /ws"})
			return
		}
	}

	var request JoinRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		logger.Error("Request binding error", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request binding error"})
		return
	}

	// 既存参加者から空きスロットを決定
	var records []models.ParticipantRecord
	if err := db.Where("session_id = ?", session.ID).Order("slot").Find(&records).Error; err != nil {
		logger.Error("Failed to fetch participants", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch participants"})
		return
	}
	if len(records) >= session.GroupSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Session is full"})
		return
	}
	taken := make(map[int]bool, len(records))
	for _, r := range records {
		taken[r.Slot] = true
	}
	slot := 0
	for s := 1; s <= session.GroupSize; s++ {
		if !taken[s] {
			slot = s
			break
		}
	}

	// トークン発行と参加記録の作成
	token, userID, err := middlewares.GenerateToken(db, logger, session.ID, slot, request.Nickname, 0)
	if err != nil {
		logger.Error("Token generation error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token processing failed"})
		return
	}

	record := models.ParticipantRecord{
		SessionID: session.ID,
		UserID:    userID,
		Slot:      slot,
		Nickname:  request.Nickname,
	}
	if err := db.Create(&record).Error; err != nil {
		logger.Error("Failed to create participant record", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create participant"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token":     token,
		"sessionId": session.ID,
		"slot":      slot,
		"groupSize": session.GroupSize,
		"numRounds": session.NumRounds,
	})
}
