package dto

import "time"

type RecordAdViewInput struct {
	SourceID string `json:"source_id" binding:"required"`
	Kind     string `json:"kind" binding:"required,oneof=rewarded interstitial"`
}

type RecordPurchaseInput struct {
	SourceID string `json:"source_id" binding:"required"`
}

// PoolSummary is the operator/user-facing snapshot of the running cycle.
type PoolSummary struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	BasePoolValue    int64     `json:"base_pool_value"`
	IncrementTotal   int64     `json:"increment_total"`
	DistributedTotal int64     `json:"distributed_total"`
	AvailableValue   int64     `json:"available_value"`
}
