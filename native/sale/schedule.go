package sale

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

// Stage is one priced tick range. Ranges are half-open: [StartTick, EndTick).
type Stage struct {
	Index     uint8
	StartTick uint64
	EndTick   uint64
	UnitPrice uint256.Int
}

// Contains reports whether tick falls inside the stage.
func (s Stage) Contains(tick uint64) bool {
	return tick >= s.StartTick && tick < s.EndTick
}

// Schedule is the immutable stage table of a sale. Stage 0 is the allocation
// stage; later stages are distribution stages with increasing prices.
type Schedule struct {
	stages []Stage
}

// NewSchedule validates an explicit stage table. Stages must be contiguous,
// indexed from zero and strictly increasing in both range and price.
func NewSchedule(stages []Stage) (*Schedule, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: no stages", ErrInvalidSchedule)
	}
	if len(stages) > math.MaxUint8+1 {
		return nil, fmt.Errorf("%w: %d stages exceeds limit", ErrInvalidSchedule, len(stages))
	}
	out := make([]Stage, len(stages))
	for i, st := range stages {
		if int(st.Index) != i {
			return nil, fmt.Errorf("%w: stage %d has index %d", ErrInvalidSchedule, i, st.Index)
		}
		if st.EndTick <= st.StartTick {
			return nil, fmt.Errorf("%w: stage %d has empty range", ErrInvalidSchedule, i)
		}
		if st.UnitPrice.IsZero() {
			return nil, fmt.Errorf("%w: stage %d has zero price", ErrInvalidSchedule, i)
		}
		if i > 0 {
			prev := out[i-1]
			if st.StartTick != prev.EndTick {
				return nil, fmt.Errorf("%w: stage %d does not start where stage %d ends", ErrInvalidSchedule, i, i-1)
			}
			if !st.UnitPrice.Gt(&prev.UnitPrice) {
				return nil, fmt.Errorf("%w: stage %d price does not increase", ErrInvalidSchedule, i)
			}
		}
		out[i] = st
	}
	return &Schedule{stages: out}, nil
}

// ScheduleFromSettings derives the stage table: an allocation stage followed by
// StageCount distribution stages of StageTicks+1 ticks each, the price rising
// by StagePriceIncrease per stage.
func ScheduleFromSettings(s Settings) (*Schedule, error) {
	if s.AllocationTicks == 0 {
		return nil, fmt.Errorf("%w: allocation stage has no ticks", ErrInvalidSchedule)
	}
	if s.StageCount > 0 && s.StagePriceIncrease.IsZero() {
		return nil, fmt.Errorf("%w: distribution stages need a price increase", ErrInvalidSchedule)
	}
	stages := make([]Stage, 0, int(s.StageCount)+1)
	end, ok := addTicks(s.StartTick, s.AllocationTicks)
	if !ok {
		return nil, fmt.Errorf("%w: tick overflow", ErrInvalidSchedule)
	}
	stages = append(stages, Stage{Index: 0, StartTick: s.StartTick, EndTick: end, UnitPrice: s.AllocationPrice})
	price := s.AllocationPrice
	for i := 1; i <= int(s.StageCount); i++ {
		start := end
		if end, ok = addTicks(start, s.StageTicks+1); !ok {
			return nil, fmt.Errorf("%w: tick overflow", ErrInvalidSchedule)
		}
		next, err := addChecked(&price, &s.StagePriceIncrease)
		if err != nil {
			return nil, fmt.Errorf("%w: price overflow at stage %d", ErrInvalidSchedule, i)
		}
		price = next
		stages = append(stages, Stage{Index: uint8(i), StartTick: start, EndTick: end, UnitPrice: price})
	}
	return NewSchedule(stages)
}

func addTicks(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum >= a
}

// StageAt returns the stage whose range contains tick. The boolean is false
// before the sale starts and from the end tick onwards.
func (s *Schedule) StageAt(tick uint64) (Stage, bool) {
	if s == nil || len(s.stages) == 0 {
		return Stage{}, false
	}
	if tick < s.stages[0].StartTick || tick >= s.stages[len(s.stages)-1].EndTick {
		return Stage{}, false
	}
	lo, hi := 0, len(s.stages)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		st := s.stages[mid]
		switch {
		case tick < st.StartTick:
			hi = mid - 1
		case tick >= st.EndTick:
			lo = mid + 1
		default:
			return st, true
		}
	}
	return Stage{}, false
}

// PriceAt returns the unit price in effect at tick.
func (s *Schedule) PriceAt(tick uint64) (*uint256.Int, bool) {
	st, ok := s.StageAt(tick)
	if !ok {
		return nil, false
	}
	return new(uint256.Int).Set(&st.UnitPrice), true
}

// Stage returns the stage with the given index.
func (s *Schedule) Stage(index uint8) (Stage, bool) {
	if s == nil || int(index) >= len(s.stages) {
		return Stage{}, false
	}
	return s.stages[index], true
}

// Stages returns a copy of the stage table.
func (s *Schedule) Stages() []Stage {
	if s == nil {
		return nil
	}
	return append([]Stage(nil), s.stages...)
}

// Len is the number of stages, allocation stage included.
func (s *Schedule) Len() int {
	if s == nil {
		return 0
	}
	return len(s.stages)
}

// Start is the first tick accepting contributions.
func (s *Schedule) Start() uint64 { return s.stages[0].StartTick }

// End is the terminal tick; contributions at or after it are rejected.
func (s *Schedule) End() uint64 { return s.stages[len(s.stages)-1].EndTick }
