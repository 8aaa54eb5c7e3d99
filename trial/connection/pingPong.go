package connection

import (
	"time"

	"rlserver/models"
	"rlserver/trial/broadcast"

	"go.uber.org/zap"

	"github.com/gorilla/websocket"
)

// MaintainWebSocketConnection はクライアントのWebSocket接続を維持し、
// Ping/Pongメッセージで接続をチェックします。
func MaintainWebSocketConnection(c *models.Client, g *models.Group, reg *models.Registry, logger *zap.Logger) {
	defer func() {
		c.Conn.Close()      // ゴルーチンが終了する時にWebSocket接続を閉じる
		reg.RemoveClient(c) // クライアントリストから削除
		logger.Info("Client removed", zap.Uint("UserID", c.UserID))
		// クライアントが切断されたことをグループへ通知
		g.Mu.Lock()
		broadcast.NotifyOnlineStatus(g, c.Slot, false, logger)
		g.Mu.Unlock()
	}()

	// Pongハンドラの設定
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second)) // 60秒の読み取りデッドラインを更新
		// クライアントがオンラインであることをグループへ通知
		g.Mu.Lock()
		broadcast.NotifyOnlineStatus(g, c.Slot, true, logger)
		g.Mu.Unlock()
		return nil
	})

	// Pingの送信間隔を設定
	pingPeriod := 10 * time.Second // 10秒ごとにPingを送信
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		// Pingを送信
		if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			logger.Error("Error sending ping", zap.Error(err))
			return // エラーが発生した場合はゴルーチンを終了
		}
	}
}
