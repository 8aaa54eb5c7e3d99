package models

import (
	"sync"
	"time"
)

// PhaseTimer は1フェーズ分のカウントダウン。コールバックは必ず一度だけ
// 実行され、全員の入力が揃った時点でのCancelと満了が競合しても
// どちらか一方しか勝たない。
type PhaseTimer struct {
	mu    sync.Mutex
	timer *time.Timer
	done  bool
}

// StartPhaseTimer schedules fn after d. Each phase gets a fresh timer.
func StartPhaseTimer(d time.Duration, fn func()) *PhaseTimer {
	pt := &PhaseTimer{}
	pt.timer = time.AfterFunc(d, func() {
		pt.mu.Lock()
		if pt.done {
			pt.mu.Unlock()
			return
		}
		pt.done = true
		pt.mu.Unlock()
		fn()
	})
	return pt
}

// Cancel stops the timer and reports whether cancellation won the race.
// Calling it after the timer already fired (or after a previous Cancel)
// is a no-op returning false.
func (pt *PhaseTimer) Cancel() bool {
	if pt == nil {
		return false
	}
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if pt.done {
		return false
	}
	pt.done = true
	pt.timer.Stop()
	return true
}
