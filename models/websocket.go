package models

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConn は1本のWebSocket接続をラップし、書き込みを直列化する。
// gorilla/websocketは同一接続への並行書き込みを許可しないため、
// 送信は全てここを通す。
type WSConn struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

func (c *WSConn) WriteMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

func (c *WSConn) ReadMessage() (int, []byte, error) {
	return c.conn.ReadMessage()
}

func (c *WSConn) Close() error {
	return c.conn.Close()
}

func (c *WSConn) SetPongHandler(h func(string) error) {
	c.conn.SetPongHandler(h)
}

func (c *WSConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Websocketクライアントを定義
type Client struct {
	Conn      *WSConn
	UserID    uint // JWTから抽出したユーザーID
	SessionID uint
	Slot      int // 1..GroupSize
}

// Registry は接続中クライアントとグループインスタンスのプロセス全体の表。
// ginは各リクエストを別ゴルーチンで処理するため、両マップの操作はMuで保護する。
type Registry struct {
	Mu      sync.Mutex
	Clients map[*Client]bool
	Groups  map[uint]*Group
}

func NewRegistry() *Registry {
	return &Registry{
		Clients: make(map[*Client]bool),
		Groups:  make(map[uint]*Group),
	}
}

func (r *Registry) AddClient(c *Client) {
	r.Mu.Lock()
	r.Clients[c] = true
	r.Mu.Unlock()
}

func (r *Registry) RemoveClient(c *Client) {
	r.Mu.Lock()
	delete(r.Clients, c)
	r.Mu.Unlock()
}

// FindOrCreateGroup はセッションのグループを返す。未登録の場合はロックを
// 保持したままbuildで作成して登録するため、同時に接続した初回参加者が
// 別々のインスタンスを作ることはない。buildが失敗した場合は何も登録しない。
func (r *Registry) FindOrCreateGroup(sessionID uint, build func() (*Group, error)) (*Group, bool, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if g, ok := r.Groups[sessionID]; ok {
		return g, false, nil
	}
	g, err := build()
	if err != nil {
		return nil, false, err
	}
	r.Groups[sessionID] = g
	return g, true, nil
}
