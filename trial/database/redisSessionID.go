package database

import (
	"context"
	"encoding/json"
	"time"

	"rlserver/models"

	"go.uber.org/zap"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ValidateSessionID checks the session ID from Redis and returns the client if the session is valid.
func ValidateSessionID(ctx context.Context, rdb *redis.Client, sessionID string, logger *zap.Logger) *models.Client {
	if sessionID == "" {
		logger.Error("Session ID is empty")
		return nil
	}

	sessionInfoJSON, err := rdb.Get(ctx, "session:"+sessionID).Result()
	if err != nil {
		logger.Error("Failed to retrieve session info", zap.Error(err))
		return nil
	}

	var sessionInfo map[string]interface{}
	if err := json.Unmarshal([]byte(sessionInfoJSON), &sessionInfo); err != nil {
		logger.Error("Failed to decode session info", zap.Error(err))
		return nil
	}

	userID, ok := sessionInfo["userID"].(float64) // JSONの数値はfloat64としてデコードされます
	if !ok {
		logger.Error("Invalid session info: missing userID")
		return nil
	}
	experimentID, ok := sessionInfo["sessionID"].(float64)
	if !ok {
		logger.Error("Invalid session info: missing sessionID")
		return nil
	}
	slot, ok := sessionInfo["slot"].(float64)
	if !ok {
		logger.Error("Invalid session info: missing slot")
		return nil
	}

	// 有効なセッション情報を基にClientオブジェクトを作成
	client := &models.Client{
		UserID:    uint(userID),
		SessionID: uint(experimentID),
		Slot:      int(slot),
	}
	return client
}

func GenerateAndStoreSessionID(ctx context.Context, client *models.Client, rdb *redis.Client, logger *zap.Logger) error {
	sessionID := uuid.New().String()

	// セッション情報をJSON形式でエンコード
	sessionInfo := map[string]interface{}{
		"userID":    client.UserID,
		"sessionID": client.SessionID,
		"slot":      client.Slot,
	}
	sessionInfoJSON, err := json.Marshal(sessionInfo)
	if err != nil {
		logger.Error("Error encoding session info", zap.Error(err))
		return err
	}

	// セッションIDとセッション情報をRedisに保存
	err = rdb.Set(ctx, "session:"+sessionID, sessionInfoJSON, 24*time.Hour).Err() // 24時間の有効期限
	if err != nil {
		logger.Error("Error storing session info in Redis", zap.Error(err))
		return err
	}

	// セッションIDをクライアントに送り返す
	return sendSessionIDToClient(client, sessionID, logger)
}

func sendSessionIDToClient(client *models.Client, sessionID string, logger *zap.Logger) error {
	response := map[string]interface{}{
		"sessionID": sessionID,
		"userID":    client.UserID,
	}
	responseJSON, err := json.Marshal(response)
	if err != nil {
		logger.Error("Error marshalling session ID response", zap.Error(err))
		return err
	}

	// クライアントにセッションIDを含むレスポンスを送信
	if client.Conn != nil {
		if err := client.Conn.WriteMessage(websocket.TextMessage, responseJSON); err != nil {
			logger.Error("Error sending session ID to client", zap.Error(err))
			return err
		}
		logger.Info("Successfully sent session ID to client", zap.String("sessionID", sessionID))
	} else {
		logger.Warn("WebSocket connection is not established, cannot send session ID")
	}

	return nil
}
