package scheduler

import (
	"context"

	"github.com/kasuganosora/nickfinder/metrics"
	"github.com/kasuganosora/nickfinder/model"
	"gorm.io/gorm"
)

// StatsTaskName is the name the stats refresher registers under.
const StatsTaskName = "stats_refresh"

// RefreshStats updates the backlog and connection-pool gauges from the store.
func RefreshStats(db *gorm.DB) TaskFn {
	return func(ctx context.Context) error {
		var pokes, requests int64
		tx := db.WithContext(ctx)
		if err := tx.Model(&model.Poke{}).Where("status = ?", model.PokePending).Count(&pokes).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.CharacterFriendRequest{}).
			Where("status = ?", model.FriendRequestPending).Count(&requests).Error; err != nil {
			return err
		}
		metrics.PendingPokes.Set(float64(pokes))
		metrics.PendingFriendRequests.Set(float64(requests))

		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		metrics.DBOpenConnections.Set(float64(sqlDB.Stats().OpenConnections))
		return nil
	}
}
