package trial

import (
	"context"
	"net/http"

	"rlserver/models"
	"rlserver/trial/connection"
	"rlserver/trial/database"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

// WebSocket接続へのアップグレードを行う関数
func HandleConnections(ctx context.Context, w http.ResponseWriter, r *http.Request, db *gorm.DB, rdb *redis.Client, logger *zap.Logger, reg *models.Registry, upgrader websocket.Upgrader) {
	// ユーザーコンテキストの取得
	clientContext, err := connection.FetchClientContext(r, db, logger)
	if err != nil {
		logger.Error("Error fetching client context", zap.Error(err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// WebSocket接続へのアップグレードと確立
	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Error upgrading WebSocket", zap.Error(err))
		http.Error(w, "Error upgrading WebSocket", http.StatusInternalServerError)
		return
	}
	conn := models.NewWSConn(rawConn)

	client := &models.Client{
		Conn:      conn,
		UserID:    clientContext.UserID,
		SessionID: clientContext.SessionID,
		Slot:      clientContext.Slot,
	}

	// セッションIDの検証と復元
	sessionID := r.Header.Get("SessionID") // クライアントが送るセッションID
	if sessionID != "" {
		restored := database.ValidateSessionID(ctx, rdb, sessionID, logger)
		if restored == nil {
			logger.Error("Invalid or expired session ID", zap.String("sessionID", sessionID))
			conn.Close()
			return
		}
		// セッション情報に基づいてクライアント情報を復元
		client.UserID = restored.UserID
		client.SessionID = restored.SessionID
		client.Slot = restored.Slot
		// 旧セッションの削除
		rdb.Del(ctx, "session:"+sessionID)
	}

	// クライアントリストに新規クライアントを追加
	reg.AddClient(client)
	logger.Info("New client added",
		zap.Uint("UserID", client.UserID), zap.Uint("SessionID", client.SessionID), zap.Int("Slot", client.Slot))

	// グループインスタンスの検索または作成
	g, err := connection.ManageGroupInstance(ctx, db, logger, reg, client, conn)
	if err != nil {
		logger.Error("Failed to attach client to group", zap.Error(err))
		conn.Close()
		reg.RemoveClient(client)
		return
	}

	// クライアントごとにメッセージ読み取りゴルーチンを起動
	go HandleClient(client, reg, g, db, logger)

	// Ping/Pongを管理するゴルーチンを起動
	go connection.MaintainWebSocketConnection(client, g, reg, logger)

	// 新しいセッションIDを発行してクライアントに送信
	if err := database.GenerateAndStoreSessionID(ctx, client, rdb, logger); err != nil {
		logger.Error("Failed to generate or store session ID", zap.Error(err))
	}
}
