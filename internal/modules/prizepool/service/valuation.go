package service

import (
	"fmt"
	"math"

	"anoa.com/playquestrewards/internal/entity"
	ledgerRepo "anoa.com/playquestrewards/internal/modules/ledger/repository"
	"github.com/google/uuid"
)

// Payout is one computed winner slot of a settlement, before commit.
type Payout struct {
	Position       int
	UserID         uuid.UUID
	ActivityPoints int64
	Value          int64
}

// AvailableValue is the spendable balance of a cycle: base pool size plus
// accumulated increments minus everything already distributed.
func AvailableValue(basePoolValue, incrementTotal, distributedTotal int64) int64 {
	return basePoolValue + incrementTotal - distributedTotal
}

// DailyPoolValue is the slice of the available value allocated to one
// calendar day, rounded up.
func DailyPoolValue(available int64, percentage float64) int64 {
	return int64(math.Ceil(float64(available) * percentage))
}

// SplitPayouts maps ranked winners onto the weight slots. Slot i pays
// ceil(poolValue * weights[i]) to the winner ranked i+1. A slot with no
// winner or a zero value is dropped without renumbering: position stays tied
// to the weight index, never reassigned to the next present winner.
func SplitPayouts(poolValue int64, weights entity.Weights, winners []ledgerRepo.RankedUser) []Payout {
	payouts := make([]Payout, 0, len(weights))
	for i, weight := range weights {
		if i >= len(winners) {
			break
		}
		value := int64(math.Ceil(float64(poolValue) * weight))
		if value <= 0 {
			continue
		}
		payouts = append(payouts, Payout{
			Position:       i + 1,
			UserID:         winners[i].UserID,
			ActivityPoints: winners[i].TotalValue,
			Value:          value,
		})
	}
	return payouts
}

// ValidateWeights rejects malformed distribution-weight configuration before
// a settlement computes payouts with it.
func ValidateWeights(weights entity.Weights) error {
	if len(weights) == 0 {
		return fmt.Errorf("distribution weights are empty")
	}
	var sum float64
	for i, w := range weights {
		if w <= 0 {
			return fmt.Errorf("distribution weight at index %d is not positive: %v", i, w)
		}
		sum += w
	}
	// Small epsilon absorbs float noise on weights that sum to exactly 1.
	if sum > 1.0+1e-9 {
		return fmt.Errorf("distribution weights sum to %v, must not exceed 1", sum)
	}
	return nil
}
