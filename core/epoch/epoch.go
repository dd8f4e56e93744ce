package epoch

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidBounds          = errors.New("epoch: invalid bounds")
	ErrPreviousNotDistributed = errors.New("epoch: previous epoch not distributed")
	ErrOverlapsPrevious       = errors.New("epoch: starts before previous epoch ends")
	ErrNotConfigured          = errors.New("epoch: no epoch configured")
	ErrUnknownEpoch           = errors.New("epoch: unknown epoch")
	ErrAlreadyReported        = errors.New("epoch: report already recorded")
)

// Window describes the boundaries of a distribution period in unix seconds.
// CheckpointStart and CheckpointEnd bound the window in which new inflows do
// not earn and outflows are penalised.
type Window struct {
	StartTime       uint64 `json:"startTime" toml:"StartTime"`
	EndTime         uint64 `json:"endTime" toml:"EndTime"`
	CheckpointStart uint64 `json:"checkpointStart" toml:"CheckpointStart"`
	CheckpointEnd   uint64 `json:"checkpointEnd" toml:"CheckpointEnd"`
}

// Validate ensures start < checkpointStart < checkpointEnd < end.
func (w Window) Validate() error {
	if !(w.StartTime < w.CheckpointStart && w.CheckpointStart < w.CheckpointEnd && w.CheckpointEnd < w.EndTime) {
		return fmt.Errorf("%w: start=%d checkpointStart=%d checkpointEnd=%d end=%d",
			ErrInvalidBounds, w.StartTime, w.CheckpointStart, w.CheckpointEnd, w.EndTime)
	}
	return nil
}

// Epoch is an immutable, registered distribution period.
type Epoch struct {
	ID uint64 `json:"id"`
	Window
}

// Cap clamps ts into [StartTime, EndTime].
func (e Epoch) Cap(ts uint64) uint64 {
	if ts < e.StartTime {
		return e.StartTime
	}
	if ts > e.EndTime {
		return e.EndTime
	}
	return ts
}

// InCheckpoint reports whether ts lies in [CheckpointStart, EndTime), the
// window in which inflows are recorded as late.
func (e Epoch) InCheckpoint(ts uint64) bool {
	return ts >= e.CheckpointStart && ts < e.EndTime
}

// BeforeCheckpointEnd reports whether ts lies in [StartTime, CheckpointEnd).
func (e Epoch) BeforeCheckpointEnd(ts uint64) bool {
	return ts >= e.StartTime && ts < e.CheckpointEnd
}

// AfterCheckpointEnd reports whether ts lies in [CheckpointEnd, EndTime).
func (e Epoch) AfterCheckpointEnd(ts uint64) bool {
	return ts >= e.CheckpointEnd && ts < e.EndTime
}

// Length returns the epoch duration in seconds.
func (e Epoch) Length() uint64 { return e.EndTime - e.StartTime }
