package utils

import (
	"time"

	"rlserver/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func CronCleaner(db *gorm.DB, logger *zap.Logger) {
	c := cron.New()

	// 24時間進行のないセッションをexpiredに更新するジョブ（毎日実行）
	c.AddFunc("@daily", func() {
		logger.Info("セッションの状態を更新する処理を開始")
		expiredSessionIDs := []uint{}
		db.Model(&models.ExperimentSession{}).
			Where("state IN ? AND updated_at <= ?", []string{"created", "running"}, time.Now().Add(-24*time.Hour)).
			Pluck("id", &expiredSessionIDs).
			Update("state", "expired")
		if len(expiredSessionIDs) > 0 {
			logger.Info("期限切れセッションを更新", zap.Int("count", len(expiredSessionIDs)))
		}
	})

	// expired状態のセッションを削除するジョブ（"分 時 日 月 曜日"）
	c.AddFunc("0 3 * * *", func() {
		logger.Info("expired状態のセッションを削除する処理を開始")
		expiredSessionIDs := []uint{}
		db.Model(&models.ExperimentSession{}).
			Where("state = ? AND updated_at <= ?", "expired", time.Now().Add(-48*time.Hour)).
			Pluck("id", &expiredSessionIDs)

		if len(expiredSessionIDs) > 0 {
			// 参加記録と報酬系列を先に削除
			db.Where("session_id IN ?", expiredSessionIDs).Delete(&models.ParticipantRecord{})
			db.Where("session_id IN ?", expiredSessionIDs).Delete(&models.RewardRow{})

			// 最後にセッション自体を削除
			result := db.Where("id IN ?", expiredSessionIDs).Delete(&models.ExperimentSession{})
			if result.Error != nil {
				logger.Error("expired状態のセッション削除に失敗しました", zap.Error(result.Error))
			} else {
				logger.Info("expired状態のセッション削除完了", zap.Int("sessions_deleted", int(result.RowsAffected)))
			}
		}
	})

	c.Start()
}
