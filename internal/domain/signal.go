package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Direction is the side of a parsed trading signal.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Signal is a validated directive to attempt a position. Signals are
// immutable once constructed; only long signals progress past intake
// (spot trading cannot express a short).
type Signal struct {
	ID              string // UUID assigned at construction
	Direction       Direction
	PairName        string // e.g. "PEPE/USDT"
	ContractAddress string
	EntryPrice      float64
	TakeProfit      float64
	StopLoss        float64
	RawMessage      string
	CreatedAt       time.Time
	// Chain is filled in by the resolver during intake; empty until then.
	Chain Chain
}

// NewSignal validates and constructs a Signal. All three prices must be
// strictly positive, and the ordering must match the direction: a long
// needs TakeProfit > EntryPrice > StopLoss, a short the reverse. A
// violation fails construction with ErrInvalidSignal rather than
// surfacing later in the monitor.
func NewSignal(direction Direction, pairName, contractAddress string, entry, takeProfit, stopLoss float64, raw string) (Signal, error) {
	if direction != DirectionLong && direction != DirectionShort {
		return Signal{}, fmt.Errorf("%w: unknown direction %q", ErrInvalidSignal, direction)
	}
	if pairName == "" {
		return Signal{}, fmt.Errorf("%w: missing pair name", ErrInvalidSignal)
	}
	if contractAddress == "" {
		return Signal{}, fmt.Errorf("%w: missing contract address", ErrInvalidSignal)
	}
	if entry <= 0 || takeProfit <= 0 || stopLoss <= 0 {
		return Signal{}, fmt.Errorf("%w: prices must be positive (entry=%v tp=%v sl=%v)", ErrInvalidSignal, entry, takeProfit, stopLoss)
	}

	switch direction {
	case DirectionLong:
		if !(takeProfit > entry && entry > stopLoss) {
			return Signal{}, fmt.Errorf("%w: long requires tp > entry > sl (entry=%v tp=%v sl=%v)", ErrInvalidSignal, entry, takeProfit, stopLoss)
		}
	case DirectionShort:
		if !(takeProfit < entry && entry < stopLoss) {
			return Signal{}, fmt.Errorf("%w: short requires tp < entry < sl (entry=%v tp=%v sl=%v)", ErrInvalidSignal, entry, takeProfit, stopLoss)
		}
	}

	return Signal{
		ID:              uuid.NewString(),
		Direction:       direction,
		PairName:        pairName,
		ContractAddress: contractAddress,
		EntryPrice:      entry,
		TakeProfit:      takeProfit,
		StopLoss:        stopLoss,
		RawMessage:      raw,
		CreatedAt:       time.Now().UTC(),
	}, nil
}
