package models

import (
	"math/rand"
	"sync"
	"time"

	"rlserver/sequence"
)

// Phase は1ラウンド内のゲート付きサブステップを表す
type Phase string

const (
	PhaseAwaitLoad    Phase = "await_load"
	PhaseChoice1Open  Phase = "choice1_open"
	PhaseBet1Open     Phase = "bet1_open"
	PhaseRevealOthers Phase = "reveal_others"
	PhaseChoice2Open  Phase = "choice2_open"
	PhaseBet2Open     Phase = "bet2_open"
	PhaseResults      Phase = "results"
	PhaseRoundDone    Phase = "round_done"
)

func (p Phase) String() string {
	return string(p)
}

// Settings はセッション単位の実行時パラメータ
type Settings struct {
	NumRounds    int
	GroupSize    int
	ChoiceTime   time.Duration
	BetTime      time.Duration
	RevealTime   time.Duration
	ITIMin       time.Duration
	ITIMax       time.Duration
	PayoffUnit   int
	BonusDivisor int
}

// RuntimeSettings converts the persisted session row into runtime settings.
func (s *ExperimentSession) RuntimeSettings() Settings {
	return Settings{
		NumRounds:    s.NumRounds,
		GroupSize:    s.GroupSize,
		ChoiceTime:   time.Duration(s.ChoiceSeconds) * time.Second,
		BetTime:      time.Duration(s.BetSeconds) * time.Second,
		RevealTime:   time.Duration(s.RevealSeconds) * time.Second,
		ITIMin:       time.Duration(s.ITIMinMillis) * time.Millisecond,
		ITIMax:       time.Duration(s.ITIMaxMillis) * time.Millisecond,
		PayoffUnit:   s.PayoffUnit,
		BonusDivisor: s.BonusDivisor,
	}
}

// Participant は1グループ内の参加スロット。ラウンド毎の入力はフェーズ番号
// (1 or 2) で引く配列に保持し、名前ベースのフィールド参照はしない。
type Participant struct {
	Slot     int // 1..GroupSize
	UserID   uint
	RecordID uint // ParticipantRecordの主キー
	Nickname string
	Conn     *WSConn
	Online   bool

	// 現在ラウンドの入力。インデックスはフェーズ番号-1。
	Choices    [2]string
	Bets       [2]int
	ChoiceAuto [2]bool // trueなら計算機による代理入力
	BetAuto    [2]bool

	// セッション累計
	Choice1Total  int
	Choice2Total  int
	BonusScore    int
	FallbackCount int
}

// ResetRound clears the per-round inputs at round entry. Cumulative sums
// carry over; everything else starts fresh.
func (p *Participant) ResetRound() {
	p.Choices = [2]string{}
	p.Bets = [2]int{}
	p.ChoiceAuto = [2]bool{}
	p.BetAuto = [2]bool{}
}

// Round は進行中ラウンドの状態。報酬はセッション作成時に生成済みの系列から
// 一度だけコピーされる（OutcomeSetラッチ）。
type Round struct {
	Index      int // 1..NumRounds
	Outcome    sequence.RoundOutcome
	OutcomeSet bool
	ITI        time.Duration // RESULTSで決まるラウンド間隔
}

// Group は1グループ分の共有状態。全ての変更はMuを取得したイベントハンドラ
// だけが行う（シングルライター規律）。グループ間は完全に独立。
type Group struct {
	Mu sync.Mutex

	SessionID    uint
	Code         string
	Size         int
	Participants []*Participant // インデックスはスロット番号-1、未参加はnil

	Seq        sequence.Sequence
	BonusSlots []int // ラウンド毎にボーナス対象となる決定スロット(1 or 2)
	Settings   Settings

	RoundIndex int // 現在ラウンド(1始まり)
	Round      *Round
	Phase      Phase
	Ready      map[int]bool   // 現フェーズで入力済み/準備済みのスロット
	Done       map[Phase]bool // フェーズ完了ラッチ（ラウンド毎にリセット）
	Timer      *PhaseTimer
	RandGen    *rand.Rand // 代理入力やITIの乱数
	Finished   bool
}

// JoinedCount returns how many slots have a participant assigned.
func (g *Group) JoinedCount() int {
	n := 0
	for _, p := range g.Participants {
		if p != nil {
			n++
		}
	}
	return n
}

// ParticipantBySlot returns the participant for a 1-based slot, or nil.
func (g *Group) ParticipantBySlot(slot int) *Participant {
	if slot < 1 || slot > len(g.Participants) {
		return nil
	}
	return g.Participants[slot-1]
}
