package auth

import (
	"os"

	"rlserver/models"

	jwt "github.com/dgrijalva/jwt-go"
)

// JwtKey は署名鍵。環境変数から読み込む。
var JwtKey = []byte(os.Getenv("RLSERVER_JWT_KEY"))

func IsValidToken(tokenString string) (bool, error) {
	claims := &models.MyClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return JwtKey, nil
	})

	if err != nil {
		return false, err
	}

	return token.Valid, nil
}
