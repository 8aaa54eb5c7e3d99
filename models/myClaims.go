package models

import (
	jwt "github.com/dgrijalva/jwt-go"
)

// MyClaims はJWTクレームの構造体定義です。
type MyClaims struct {
	UserID    uint `json:"userid"`
	SessionID uint `json:"sessionId"`
	Slot      int  `json:"slot"` // 1..GroupSize
	jwt.StandardClaims
}
