package middlewares

import (
	"fmt"
	"strings"

	"rlserver/auth"
	"rlserver/models"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenAuthentication はリクエストのJWTトークンを検証し、クレームを返します。
func TokenAuthentication(c *gin.Context, logger *zap.Logger) (*models.MyClaims, error) {
	tokenString := c.GetHeader("Authorization")
	if strings.HasPrefix(tokenString, "Bearer ") {
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	}
	if tokenString == "" {
		// WebSocket接続ではヘッダーが使えない場合があるためクエリも確認
		tokenString = c.Query("token")
	}
	if tokenString == "" {
		return nil, fmt.Errorf("no token provided")
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
