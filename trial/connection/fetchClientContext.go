package connection

import (
	"fmt"
	"net/http"
	"strings"

	"rlserver/auth"
	"rlserver/models"

	"go.uber.org/zap"
	"gorm.io/gorm"

	jwt "github.com/dgrijalva/jwt-go"
)

// ClientContext はクライアントのセッション情報を保持するための構造体です。
type ClientContext struct {
	UserID    uint
	SessionID uint
	Slot      int
	Claims    *models.MyClaims
}

// TokenValidation はWebSocket接続リクエストのJWTトークンを検証します。
func TokenValidation(r *http.Request, logger *zap.Logger) (*models.MyClaims, error) {
	tokenString := r.Header.Get("Authorization")
	if strings.HasPrefix(tokenString, "Bearer ") {
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	}
	if tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}

	claims := &models.MyClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return auth.JwtKey, nil
	})

	if err != nil || !token.Valid {
		logger.Error("Failed to validate token", zap.Error(err))
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	return claims, nil
}

// FetchClientContext はトークンから参加スロットを特定し、データベース上の
// 参加記録と突き合わせます。
func FetchClientContext(r *http.Request, db *gorm.DB, logger *zap.Logger) (*ClientContext, error) {
	claims, err := TokenValidation(r, logger)
	if err != nil {
		return nil, fmt.Errorf("unauthorized: %w", err)
	}

	var record models.ParticipantRecord
	if err := db.Where("session_id = ? AND slot = ? AND user_id = ?",
		claims.SessionID, claims.Slot, claims.UserID).First(&record).Error; err != nil {
		logger.Error("Failed to fetch participant record", zap.Error(err))
		return nil, fmt.Errorf("participant fetch failed: %w", err)
	}

	return &ClientContext{
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
		Slot:      claims.Slot,
		Claims:    claims,
	}, nil
}
