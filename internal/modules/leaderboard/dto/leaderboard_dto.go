package dto

import (
	"time"

	"github.com/google/uuid"
)

// LeaderboardEntry is one ranked row of the cached leaderboard blob.
type LeaderboardEntry struct {
	Position          int       `json:"position"`
	UserID            uuid.UUID `json:"user_id"`
	Username          string    `json:"username"`
	AvatarURL         *string   `json:"avatar_url,omitempty"`
	ActivityPoints    int64     `json:"activity_points"`
	DistributionValue int64     `json:"distribution_value"`
	IsSelf            bool      `json:"is_self,omitempty"`
}

// CachedLeaderboard is the denormalized blob the cache builder writes and the
// read path serves. It is never mutated in place; per-user data is an
// independent overlay composed at read time.
type CachedLeaderboard struct {
	Type        string             `json:"type"`
	PoolValue   int64              `json:"pool_value"`
	GeneratedAt time.Time          `json:"generated_at"`
	Entries     []LeaderboardEntry `json:"entries"`
}

// UserPosition is the per-user cache entry: the requester's own standing.
type UserPosition struct {
	Position          int   `json:"position"`
	ActivityPoints    int64 `json:"activity_points"`
	DistributionValue int64 `json:"distribution_value"`
}

// PreviousWin annotates a requester who won recently and is excluded from
// the current ranking.
type PreviousWin struct {
	Position   int       `json:"position"`
	WonAt      time.Time `json:"won_at"`
	EligibleAt time.Time `json:"eligible_at"`
}

type LeaderboardView struct {
	Type                       string             `json:"type"`
	PoolValue                  int64              `json:"pool_value"`
	GeneratedAt                time.Time          `json:"generated_at"`
	Entries                    []LeaderboardEntry `json:"entries"`
	AuthPosition               *UserPosition      `json:"auth_position,omitempty"`
	AuthPositionPreviousWinner *PreviousWin       `json:"auth_position_previous_winner,omitempty"`
}
