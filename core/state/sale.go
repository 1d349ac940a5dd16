package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rico/native/sale"
)

var saleSnapshotKey = []byte("sale/snapshot")

type storedSaleTotals struct {
	Received       *big.Int
	Returned       *big.Int
	Accepted       *big.Int
	Withdrawn      *big.Int
	Pending        *big.Int
	TokensReserved *big.Int
	TokensAwarded  *big.Int
}

type storedSaleSettings struct {
	StartTick           uint64
	AllocationTicks     uint64
	AllocationPrice     *big.Int
	StageCount          uint8
	StageTicks          uint64
	StagePriceIncrease  *big.Int
	TokenSupply         *big.Int
	MinContribution     *big.Int
	ParticipantCap      *big.Int
	ParticipantStageCap *big.Int
	SaleCap             *big.Int
	MaxContributions    uint32
	WhitelistController common.Address
	ProjectWallet       common.Address
}

type storedSaleContribution struct {
	Seq            uint32
	Stage          uint8
	Amount         *big.Int
	Tick           uint64
	Resolved       bool
	ResolvedTick   uint64
	Accepted       *big.Int
	Returned       *big.Int
	TokensReserved *big.Int
	TokensAwarded  *big.Int
	Dust           *big.Int
}

type storedSaleParticipant struct {
	Address            common.Address
	Status             uint8
	Committed          bool
	CommittedTick      uint64
	ContributionsCount uint32
	Totals             storedSaleTotals
	Stages             []storedSaleTotals
	Contributions      []storedSaleContribution
}

type storedSaleTransfer struct {
	ID        [32]byte
	Seq       uint64
	Type      uint8
	To        common.Address
	Amount    *big.Int
	Tick      uint64
	Delivered bool
}

type storedSaleDecision struct {
	Seq            uint64
	Participant    common.Address
	Kind           uint8
	Tick           uint64
	Accepted       *big.Int
	Returned       *big.Int
	TokensAwarded  *big.Int
	TokensReversed *big.Int
}

type storedSaleSnapshot struct {
	Settings         storedSaleSettings
	LastTick         uint64
	Cancelled        bool
	Participants     []storedSaleParticipant
	Totals           storedSaleTotals
	ProjectWithdrawn *big.Int
	Dust             *big.Int
	StageTotals      []storedSaleTotals
	Transfers        []storedSaleTransfer
	Decisions        []storedSaleDecision
}

// PutSaleSnapshot persists the committed sale state, replacing any earlier
// snapshot.
func (m *Manager) PutSaleSnapshot(snap *sale.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("sale: snapshot required")
	}
	return m.KVPut(saleSnapshotKey, encodeSaleSnapshot(snap))
}

// SaleSnapshot loads the persisted sale state. The boolean is false when no
// snapshot was stored yet.
func (m *Manager) SaleSnapshot() (*sale.Snapshot, bool, error) {
	var stored storedSaleSnapshot
	ok, err := m.KVGet(saleSnapshotKey, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	snap, err := decodeSaleSnapshot(&stored)
	if err != nil {
		return nil, false, err
	}
	return snap, true, nil
}

func toBig(v *uint256.Int) *big.Int { return v.ToBig() }

func fromBig(v *big.Int) (uint256.Int, error) {
	if v == nil {
		return uint256.Int{}, nil
	}
	out, overflow := uint256.FromBig(v)
	if overflow || v.Sign() < 0 {
		return uint256.Int{}, fmt.Errorf("sale: stored amount %s out of range", v)
	}
	return *out, nil
}

// decoder collects the first conversion error so the field-by-field decoding
// below stays linear.
type decoder struct{ err error }

func (d *decoder) amount(v *big.Int) uint256.Int {
	out, err := fromBig(v)
	if err != nil && d.err == nil {
		d.err = err
	}
	return out
}

func encodeTotals(t *sale.Totals) storedSaleTotals {
	return storedSaleTotals{
		Received:       toBig(&t.Received),
		Returned:       toBig(&t.Returned),
		Accepted:       toBig(&t.Accepted),
		Withdrawn:      toBig(&t.Withdrawn),
		Pending:        toBig(&t.Pending),
		TokensReserved: toBig(&t.TokensReserved),
		TokensAwarded:  toBig(&t.TokensAwarded),
	}
}

func (d *decoder) totals(s *storedSaleTotals) sale.Totals {
	return sale.Totals{
		Received:       d.amount(s.Received),
		Returned:       d.amount(s.Returned),
		Accepted:       d.amount(s.Accepted),
		Withdrawn:      d.amount(s.Withdrawn),
		Pending:        d.amount(s.Pending),
		TokensReserved: d.amount(s.TokensReserved),
		TokensAwarded:  d.amount(s.TokensAwarded),
	}
}

func encodeTotalsList(list []sale.Totals) []storedSaleTotals {
	out := make([]storedSaleTotals, len(list))
	for i := range list {
		out[i] = encodeTotals(&list[i])
	}
	return out
}

func (d *decoder) totalsList(list []storedSaleTotals) []sale.Totals {
	if len(list) == 0 {
		return nil
	}
	out := make([]sale.Totals, len(list))
	for i := range list {
		out[i] = d.totals(&list[i])
	}
	return out
}

func encodeSaleSnapshot(snap *sale.Snapshot) *storedSaleSnapshot {
	s := snap.Settings
	stored := &storedSaleSnapshot{
		Settings: storedSaleSettings{
			StartTick:           s.StartTick,
			AllocationTicks:     s.AllocationTicks,
			AllocationPrice:     toBig(&s.AllocationPrice),
			StageCount:          s.StageCount,
			StageTicks:          s.StageTicks,
			StagePriceIncrease:  toBig(&s.StagePriceIncrease),
			TokenSupply:         toBig(&s.TokenSupply),
			MinContribution:     toBig(&s.MinContribution),
			ParticipantCap:      toBig(&s.ParticipantCap),
			ParticipantStageCap: toBig(&s.ParticipantStageCap),
			SaleCap:             toBig(&s.SaleCap),
			MaxContributions:    s.MaxContributions,
			WhitelistController: s.WhitelistController,
			ProjectWallet:       s.ProjectWallet,
		},
		LastTick:         snap.LastTick,
		Cancelled:        snap.Cancelled,
		Totals:           encodeTotals(&snap.Totals.Totals),
		ProjectWithdrawn: toBig(&snap.Totals.ProjectWithdrawn),
		Dust:             toBig(&snap.Totals.Dust),
		StageTotals:      encodeTotalsList(snap.StageTotals),
	}
	for _, rec := range snap.Participants {
		p := rec.Participant
		sp := storedSaleParticipant{
			Address:            p.Address,
			Status:             uint8(p.Status),
			Committed:          p.Committed,
			CommittedTick:      p.CommittedTick,
			ContributionsCount: p.ContributionsCount,
			Totals:             encodeTotals(&p.Totals),
			Stages:             encodeTotalsList(p.Stages),
		}
		for i := range rec.Contributions {
			c := &rec.Contributions[i]
			sp.Contributions = append(sp.Contributions, storedSaleContribution{
				Seq:            c.Seq,
				Stage:          c.Stage,
				Amount:         toBig(&c.Amount),
				Tick:           c.Tick,
				Resolved:       c.Resolved,
				ResolvedTick:   c.ResolvedTick,
				Accepted:       toBig(&c.Accepted),
				Returned:       toBig(&c.Returned),
				TokensReserved: toBig(&c.TokensReserved),
				TokensAwarded:  toBig(&c.TokensAwarded),
				Dust:           toBig(&c.Dust),
			})
		}
		stored.Participants = append(stored.Participants, sp)
	}
	for i := range snap.Transfers {
		tr := &snap.Transfers[i]
		stored.Transfers = append(stored.Transfers, storedSaleTransfer{
			ID:        tr.ID,
			Seq:       tr.Seq,
			Type:      uint8(tr.Type),
			To:        tr.To,
			Amount:    toBig(&tr.Amount),
			Tick:      tr.Tick,
			Delivered: tr.Delivered,
		})
	}
	for i := range snap.Decisions {
		d := &snap.Decisions[i]
		stored.Decisions = append(stored.Decisions, storedSaleDecision{
			Seq:            d.Seq,
			Participant:    d.Participant,
			Kind:           uint8(d.Kind),
			Tick:           d.Tick,
			Accepted:       toBig(&d.Accepted),
			Returned:       toBig(&d.Returned),
			TokensAwarded:  toBig(&d.TokensAwarded),
			TokensReversed: toBig(&d.TokensReversed),
		})
	}
	return stored
}

func decodeSaleSnapshot(stored *storedSaleSnapshot) (*sale.Snapshot, error) {
	d := &decoder{}
	s := stored.Settings
	snap := &sale.Snapshot{
		Settings: sale.Settings{
			StartTick:           s.StartTick,
			AllocationTicks:     s.AllocationTicks,
			AllocationPrice:     d.amount(s.AllocationPrice),
			StageCount:          s.StageCount,
			StageTicks:          s.StageTicks,
			StagePriceIncrease:  d.amount(s.StagePriceIncrease),
			TokenSupply:         d.amount(s.TokenSupply),
			MinContribution:     d.amount(s.MinContribution),
			ParticipantCap:      d.amount(s.ParticipantCap),
			ParticipantStageCap: d.amount(s.ParticipantStageCap),
			SaleCap:             d.amount(s.SaleCap),
			MaxContributions:    s.MaxContributions,
			WhitelistController: s.WhitelistController,
			ProjectWallet:       s.ProjectWallet,
		},
		LastTick:  stored.LastTick,
		Cancelled: stored.Cancelled,
		Totals: sale.GlobalTotals{
			Totals:           d.totals(&stored.Totals),
			ProjectWithdrawn: d.amount(stored.ProjectWithdrawn),
			Dust:             d.amount(stored.Dust),
		},
		StageTotals:  d.totalsList(stored.StageTotals),
		Participants: make([]sale.ParticipantRecord, 0, len(stored.Participants)),
	}
	for i := range stored.Participants {
		sp := &stored.Participants[i]
		rec := sale.ParticipantRecord{
			Participant: sale.Participant{
				Address:            sp.Address,
				Status:             sale.Status(sp.Status),
				Committed:          sp.Committed,
				CommittedTick:      sp.CommittedTick,
				ContributionsCount: sp.ContributionsCount,
				Totals:             d.totals(&sp.Totals),
				Stages:             d.totalsList(sp.Stages),
			},
		}
		for j := range sp.Contributions {
			c := &sp.Contributions[j]
			rec.Contributions = append(rec.Contributions, sale.Contribution{
				Seq:            c.Seq,
				Participant:    sp.Address,
				Stage:          c.Stage,
				Amount:         d.amount(c.Amount),
				Tick:           c.Tick,
				Resolved:       c.Resolved,
				ResolvedTick:   c.ResolvedTick,
				Accepted:       d.amount(c.Accepted),
				Returned:       d.amount(c.Returned),
				TokensReserved: d.amount(c.TokensReserved),
				TokensAwarded:  d.amount(c.TokensAwarded),
				Dust:           d.amount(c.Dust),
			})
		}
		snap.Participants = append(snap.Participants, rec)
	}
	for i := range stored.Transfers {
		tr := &stored.Transfers[i]
		snap.Transfers = append(snap.Transfers, sale.Transfer{
			ID:        tr.ID,
			Seq:       tr.Seq,
			Type:      sale.TransferType(tr.Type),
			To:        tr.To,
			Amount:    d.amount(tr.Amount),
			Tick:      tr.Tick,
			Delivered: tr.Delivered,
		})
	}
	for i := range stored.Decisions {
		dr := &stored.Decisions[i]
		snap.Decisions = append(snap.Decisions, sale.DecisionRecord{
			Seq:            dr.Seq,
			Participant:    dr.Participant,
			Kind:           sale.DecisionKind(dr.Kind),
			Tick:           dr.Tick,
			Accepted:       d.amount(dr.Accepted),
			Returned:       d.amount(dr.Returned),
			TokensAwarded:  d.amount(dr.TokensAwarded),
			TokensReversed: d.amount(dr.TokensReversed),
		})
	}
	if d.err != nil {
		return nil, d.err
	}
	return snap, nil
}
