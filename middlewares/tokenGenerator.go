package middlewares

import (
	"time"

	"rlserver/auth"
	"rlserver/models"

	"gorm.io/gorm"

	jwt "github.com/dgrijalva/jwt-go"
	"go.uber.org/zap"
)

// GenerateToken は参加スロットに紐づくJWTトークンを発行します。
// existingUserIDが0の場合は新しいユーザーIDを生成します。
func GenerateToken(db *gorm.DB, logger *zap.Logger, sessionID uint, slot int, nickname string, existingUserID uint) (string, uint, error) {
	var userID uint
	var err error

	if existingUserID > 0 {
		// 既存のユーザーIDを再利用
		userID = existingUserID
	} else {
		// 新しいユーザーIDを生成
		userID, err = GenerateUserID(db, logger, nickname)
		if err != nil {
			logger.Error("トークン生成中にエラー発生", zap.Error(err))
			return "", 0, err
		}
	}

	// トークンの有効期限を設定
	expirationTime := time.Now().Add(72 * time.Hour)

	// JWTトークン生成時に内包するデータ
	claims := &models.MyClaims{
		UserID:    userID,
		SessionID: sessionID,
		Slot:      slot,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: expirationTime.Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(auth.JwtKey)

	return tokenString, userID, err
}

// GORMによるオートインクリメントユーザーIDを生成する関数
func GenerateUserID(db *gorm.DB, logger *zap.Logger, nickname string) (uint, error) {
	// データベースに新しいUserインスタンスを作成
	user := models.User{
		Nickname: nickname,
	}
	if err := db.Create(&user).Error; err != nil {
		logger.Error("ユーザーID生成中にエラー発生", zap.Error(err))
		return 0, err
	}
	return user.ID, nil
}
