package sale

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ParticipantRecord pairs a participant with its contribution log.
type ParticipantRecord struct {
	Participant   Participant
	Contributions []Contribution
}

// Snapshot is a self-contained copy of the committed engine state. It carries
// no collaborators; they are attached again after Restore.
type Snapshot struct {
	Settings     Settings
	LastTick     uint64
	Cancelled    bool
	Participants []ParticipantRecord
	Totals       GlobalTotals
	StageTotals  []Totals
	Transfers    []Transfer
	Decisions    []DecisionRecord
}

// Snapshot copies the committed state. Participants are listed in
// first-contribution order.
func (e *Engine) Snapshot() *Snapshot {
	snap := &Snapshot{
		Settings:     e.settings,
		LastTick:     e.lastTick,
		Cancelled:    e.cancelled,
		Participants: make([]ParticipantRecord, 0, len(e.order)),
		Totals:       e.totals,
		StageTotals:  append([]Totals(nil), e.stageTotals...),
		Transfers:    append([]Transfer(nil), e.transfers...),
		Decisions:    append([]DecisionRecord(nil), e.decisions...),
	}
	for _, addr := range e.order {
		snap.Participants = append(snap.Participants, ParticipantRecord{
			Participant:   *e.participants[addr].Clone(),
			Contributions: append([]Contribution(nil), e.contributions[addr]...),
		})
	}
	return snap
}

// Restore rebuilds an engine from snap and runs the full invariant check
// before handing it out.
func Restore(snap *Snapshot) (*Engine, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrInvalidSettings)
	}
	e, err := NewEngine(snap.Settings)
	if err != nil {
		return nil, err
	}
	e.lastTick = snap.LastTick
	e.cancelled = snap.Cancelled
	e.totals = snap.Totals
	if snap.StageTotals != nil {
		e.stageTotals = append([]Totals(nil), snap.StageTotals...)
	}
	e.transfers = append([]Transfer(nil), snap.Transfers...)
	e.decisions = append([]DecisionRecord(nil), snap.Decisions...)
	seen := make(map[common.Address]struct{}, len(snap.Participants))
	for _, rec := range snap.Participants {
		addr := rec.Participant.Address
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("%w: duplicate participant %s", ErrInvalidSettings, addr.Hex())
		}
		seen[addr] = struct{}{}
		e.order = append(e.order, addr)
		e.participants[addr] = rec.Participant.Clone()
		e.contributions[addr] = append([]Contribution(nil), rec.Contributions...)
	}
	for i, tr := range e.transfers {
		if tr.Seq != uint64(i) {
			return nil, violation(common.Address{}, "transfer sequence gap")
		}
	}
	if err := e.CheckInvariants(); err != nil {
		return nil, err
	}
	return e, nil
}
