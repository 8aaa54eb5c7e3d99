package models

import (
	"gorm.io/gorm"
)

// User モデルの定義
type User struct {
	gorm.Model
	Nickname     string
	SessionCount int `gorm:"not null;default:0"`
}

// ExperimentSession は1グループ分の実験セッションを管理するモデル
type ExperimentSession struct {
	gorm.Model
	Code           string `gorm:"unique;not null"` // 参加用コード
	Seed           int64  `gorm:"not null"`
	NumRounds      int    `gorm:"not null"`
	GroupSize      int    `gorm:"not null"`
	HighFraction   float64
	ReversalMinGap int
	ReversalMaxGap int
	ChoiceSeconds  int
	BetSeconds     int
	RevealSeconds  int
	ITIMinMillis   int
	ITIMaxMillis   int
	PayoffUnit     int
	BonusDivisor   int
	BonusPolicy    string
	State          string              `gorm:"not null;default:'created'"` // "created", "running", "finished", "expired"
	Participants   []ParticipantRecord `gorm:"foreignKey:SessionID"`
	RewardRows     []RewardRow         `gorm:"foreignKey:SessionID"`
}

// RewardRow は生成済み報酬系列の1行。セッション作成時に一度だけ書き込まれ、
// 同じシードで再生成すれば完全に一致する（監査・再現用）。
type RewardRow struct {
	gorm.Model
	SessionID  uint   `gorm:"index;not null"`
	RoundIndex int    `gorm:"not null"`
	HighOption string `gorm:"not null"`
	RewardA    int    `gorm:"not null"`
	RewardB    int    `gorm:"not null"`
	Reversal   bool   `gorm:"not null"`
}

// ParticipantRecord は参加スロットの永続データ（累計スコアを含む）
type ParticipantRecord struct {
	gorm.Model
	SessionID     uint `gorm:"index;not null"`
	UserID        uint `gorm:"not null"`
	Slot          int  `gorm:"not null"` // 1..GroupSize
	Nickname      string
	Choice1Total  int `gorm:"not null;default:0"`
	Choice2Total  int `gorm:"not null;default:0"`
	BonusScore    int `gorm:"not null;default:0"`
	RoundsPlayed  int `gorm:"not null;default:0"`
	FallbackCount int `gorm:"not null;default:0"` // 計算機による代理入力の回数
}
