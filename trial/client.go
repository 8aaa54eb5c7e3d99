package trial

import (
	"encoding/json"

	"rlserver/models"

	"github.com/gorilla/websocket"
)

// Helper function to send error message to the client via WebSocket
func sendErrorMessage(client *models.Client, errorMessage string) {
	if client.Conn == nil {
		return
	}
	errorResponse := map[string]string{"error": errorMessage}
	errorJSON, _ := json.Marshal(errorResponse)
	client.Conn.WriteMessage(websocket.TextMessage, errorJSON) // Ignoring error for simplicity
}
