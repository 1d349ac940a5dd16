package sale

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Status captures the whitelist state of a participant.
type Status uint8

const (
	StatusUnset Status = iota
	StatusWhitelisted
	StatusRejected
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusUnset:
		return "unset"
	case StatusWhitelisted:
		return "whitelisted"
	case StatusRejected:
		return "rejected"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool { return s <= StatusCancelled }

// DecisionKind enumerates the actions that resolve a participant's pending
// queue. Values start at 1 so the zero value is never a valid decision.
type DecisionKind uint8

const (
	DecisionWhitelistAccept DecisionKind = iota + 1
	DecisionWhitelistReject
	DecisionParticipantCancel
	DecisionCommitAccept
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionWhitelistAccept:
		return "whitelist_accept"
	case DecisionWhitelistReject:
		return "whitelist_reject"
	case DecisionParticipantCancel:
		return "participant_cancel"
	case DecisionCommitAccept:
		return "commit_accept"
	default:
		return "unknown"
	}
}

// ParseDecisionKind accepts the names produced by String.
func ParseDecisionKind(name string) (DecisionKind, bool) {
	for k := DecisionWhitelistAccept; k <= DecisionCommitAccept; k++ {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

// TransferType tags every entry in the transfer audit trail.
type TransferType uint8

const (
	TransferAutomaticRefund TransferType = iota + 1
	TransferWhitelistCancel
	TransferParticipantCancel
	TransferParticipantWithdraw
	TransferProjectWithdraw
)

func (t TransferType) String() string {
	switch t {
	case TransferAutomaticRefund:
		return "automatic_refund"
	case TransferWhitelistCancel:
		return "whitelist_cancel"
	case TransferParticipantCancel:
		return "participant_cancel"
	case TransferParticipantWithdraw:
		return "participant_withdraw"
	case TransferProjectWithdraw:
		return "project_withdraw"
	default:
		return "unknown"
	}
}

// Totals is the running balance sheet kept per participant, per stage and
// globally. Monetary fields are in the smallest currency unit, token fields in
// whole token units.
type Totals struct {
	Received       uint256.Int
	Returned       uint256.Int
	Accepted       uint256.Int
	Withdrawn      uint256.Int
	Pending        uint256.Int
	TokensReserved uint256.Int
	TokensAwarded  uint256.Int
}

// Owed is the returned amount not yet delivered to the participant.
func (t *Totals) Owed() *uint256.Int {
	if t.Withdrawn.Gt(&t.Returned) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(&t.Returned, &t.Withdrawn)
}

func (t *Totals) add(o *Totals) error {
	pairs := [][2]*uint256.Int{
		{&t.Received, &o.Received},
		{&t.Returned, &o.Returned},
		{&t.Accepted, &o.Accepted},
		{&t.Withdrawn, &o.Withdrawn},
		{&t.Pending, &o.Pending},
		{&t.TokensReserved, &o.TokensReserved},
		{&t.TokensAwarded, &o.TokensAwarded},
	}
	for _, p := range pairs {
		if err := addTo(p[0], p[1]); err != nil {
			return err
		}
	}
	return nil
}

// Participant is the ledger entry of a single contributor. Stages has one
// entry per schedule stage and never grows after creation.
type Participant struct {
	Address            common.Address
	Status             Status
	Committed          bool
	CommittedTick      uint64
	ContributionsCount uint32
	Totals
	Stages []Totals
}

// Clone returns a deep copy of the participant so callers can mutate it
// without affecting the engine state.
func (p *Participant) Clone() *Participant {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Stages = append([]Totals(nil), p.Stages...)
	return &clone
}

func newParticipant(addr common.Address, stages int) *Participant {
	return &Participant{Address: addr, Stages: make([]Totals, stages)}
}

// Contribution is a single receipt of funds. Amount never changes; Accepted and
// Returned record how the contribution was resolved.
type Contribution struct {
	Seq            uint32
	Participant    common.Address
	Stage          uint8
	Amount         uint256.Int
	Tick           uint64
	Resolved       bool
	ResolvedTick   uint64
	Accepted       uint256.Int
	Returned       uint256.Int
	TokensReserved uint256.Int
	TokensAwarded  uint256.Int
	Dust           uint256.Int
}

// DecisionRecord is the append-only trace of an applied decision.
type DecisionRecord struct {
	Seq            uint64
	Participant    common.Address
	Kind           DecisionKind
	Tick           uint64
	Accepted       uint256.Int
	Returned       uint256.Int
	TokensAwarded  uint256.Int
	TokensReversed uint256.Int
}

// Transfer is an append-only record of money leaving the sale.
type Transfer struct {
	ID        [32]byte
	Seq       uint64
	Type      TransferType
	To        common.Address
	Amount    uint256.Int
	Tick      uint64
	Delivered bool
}

// GlobalTotals aggregates every participant. Totals.Withdrawn is the refunded
// money delivered to participants, ProjectWithdrawn the amount the project has
// taken out of the accepted pool and Dust the accepted money that bought no
// token unit.
type GlobalTotals struct {
	Totals
	ProjectWithdrawn uint256.Int
	Dust             uint256.Int
}

// Withdrawable is the accepted balance the project has not yet withdrawn.
func (g *GlobalTotals) Withdrawable() *uint256.Int {
	if g.ProjectWithdrawn.Gt(&g.Accepted) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(&g.Accepted, &g.ProjectWithdrawn)
}

// Settlement describes the outcome of a decision or an auto-accepted
// contribution.
type Settlement struct {
	Decision       DecisionKind
	Participant    common.Address
	Status         Status
	Accepted       uint256.Int
	Returned       uint256.Int
	TokensAwarded  uint256.Int
	TokensReversed uint256.Int
	Transfers      []Transfer
}
