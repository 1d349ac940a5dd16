package sale

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// verify checks the staged state of a call before it is committed. The check
// covers the touched participant and the global identities; the cross-sum over
// every participant is left to CheckInvariants.
func (e *Engine) verify(tx *txn) error {
	if !invariantChecks {
		return nil
	}
	if tx.participant != nil {
		if err := e.checkParticipant(tx.participant, tx.log); err != nil {
			return err
		}
	}
	return e.checkGlobal(&tx.totals, tx.stages)
}

// CheckInvariants runs the full accounting check over the committed state,
// including the cross-participant sums. It ignores the build-time switch that
// disables the per-call check.
func (e *Engine) CheckInvariants() error {
	var sum Totals
	var dust uint256.Int
	for _, addr := range e.order {
		p, ok := e.participants[addr]
		if !ok {
			return violation(addr, "participant listed but missing")
		}
		log := e.contributions[addr]
		if err := e.checkParticipant(p, log); err != nil {
			return err
		}
		if err := sum.add(&p.Totals); err != nil {
			return violation(common.Address{}, "global sum overflow")
		}
		for i := range log {
			if err := addTo(&dust, &log[i].Dust); err != nil {
				return violation(common.Address{}, "dust sum overflow")
			}
		}
	}
	if len(e.order) != len(e.participants) {
		return violation(common.Address{}, "participant index out of sync")
	}
	if err := e.checkGlobal(&e.totals, e.stageTotals); err != nil {
		return err
	}
	if sum != e.totals.Totals {
		return violation(common.Address{}, "global totals differ from participant sum")
	}
	if dust != e.totals.Dust {
		return violation(common.Address{}, "global dust differs from contribution sum")
	}
	return nil
}

func (e *Engine) checkParticipant(p *Participant, log []Contribution) error {
	addr := p.Address
	if !p.Status.Valid() {
		return violation(addr, "unknown status")
	}
	if len(p.Stages) != e.schedule.Len() {
		return violation(addr, "stage table size")
	}
	if int(p.ContributionsCount) != len(log) {
		return violation(addr, "contribution count")
	}
	if err := checkTotals(addr, "participant", &p.Totals); err != nil {
		return err
	}
	var stageSum Totals
	for i := range p.Stages {
		if err := checkTotals(addr, fmt.Sprintf("stage %d", i), &p.Stages[i]); err != nil {
			return err
		}
		if err := stageSum.add(&p.Stages[i]); err != nil {
			return violation(addr, "stage sum overflow")
		}
	}
	if stageSum != p.Totals {
		return violation(addr, "stage totals differ from participant totals")
	}

	var fromLog Totals
	for i := range log {
		c := &log[i]
		if c.Seq != uint32(i) || c.Participant != addr {
			return violation(addr, fmt.Sprintf("contribution %d out of order", i))
		}
		stage, ok := e.schedule.Stage(c.Stage)
		if !ok {
			return violation(addr, fmt.Sprintf("contribution %d stage", i))
		}
		if !c.Resolved {
			if !c.Accepted.IsZero() || !c.Returned.IsZero() || !c.TokensAwarded.IsZero() || !c.Dust.IsZero() {
				return violation(addr, fmt.Sprintf("pending contribution %d already settled", i))
			}
			if err := addTo(&fromLog.Pending, &c.Amount); err != nil {
				return violation(addr, "pending sum overflow")
			}
		} else {
			var settled uint256.Int
			settled.Add(&c.Accepted, &c.Returned)
			if settled != c.Amount {
				return violation(addr, fmt.Sprintf("contribution %d not fully settled", i))
			}
			var priced uint256.Int
			if _, overflow := priced.MulOverflow(&c.TokensAwarded, &stage.UnitPrice); overflow {
				return violation(addr, fmt.Sprintf("contribution %d token value overflow", i))
			}
			priced.Add(&priced, &c.Dust)
			if priced != c.Accepted {
				return violation(addr, fmt.Sprintf("contribution %d tokens do not match price", i))
			}
			if c.TokensReserved != c.TokensAwarded {
				return violation(addr, fmt.Sprintf("contribution %d reservation not final", i))
			}
		}
		pairs := [][2]*uint256.Int{
			{&fromLog.Received, &c.Amount},
			{&fromLog.Accepted, &c.Accepted},
			{&fromLog.Returned, &c.Returned},
			{&fromLog.TokensReserved, &c.TokensReserved},
			{&fromLog.TokensAwarded, &c.TokensAwarded},
		}
		for _, pr := range pairs {
			if err := addTo(pr[0], pr[1]); err != nil {
				return violation(addr, "contribution sum overflow")
			}
		}
	}
	fromLog.Withdrawn = p.Withdrawn
	if fromLog != p.Totals {
		return violation(addr, "participant totals differ from contribution log")
	}

	switch p.Status {
	case StatusUnset, StatusRejected, StatusCancelled:
		if !p.Accepted.IsZero() || !p.TokensAwarded.IsZero() {
			return violation(addr, "accepted funds without whitelist")
		}
		if p.Committed {
			return violation(addr, "committed without whitelist")
		}
	case StatusWhitelisted:
		if !p.Pending.IsZero() {
			return violation(addr, "whitelisted participant has pending funds")
		}
	}
	return nil
}

// checkTotals enforces the balance identity of a single Totals record.
func checkTotals(addr common.Address, scope string, t *Totals) error {
	var sum uint256.Int
	if _, overflow := sum.AddOverflow(&t.Accepted, &t.Returned); overflow {
		return violation(addr, scope+" balance overflow")
	}
	if _, overflow := sum.AddOverflow(&sum, &t.Pending); overflow {
		return violation(addr, scope+" balance overflow")
	}
	if sum != t.Received {
		return violation(addr, scope+" received differs from accepted+returned+pending")
	}
	if t.Withdrawn.Gt(&t.Returned) {
		return violation(addr, scope+" withdrew more than returned")
	}
	if t.TokensAwarded.Gt(&t.TokensReserved) {
		return violation(addr, scope+" awarded more than reserved")
	}
	return nil
}

func (e *Engine) checkGlobal(g *GlobalTotals, stages []Totals) error {
	var zero common.Address
	if err := checkTotals(zero, "global", &g.Totals); err != nil {
		return err
	}
	if g.ProjectWithdrawn.Gt(&g.Accepted) {
		return violation(zero, "project withdrew more than accepted")
	}
	if g.Dust.Gt(&g.Accepted) {
		return violation(zero, "dust exceeds accepted funds")
	}
	if supply := &e.settings.TokenSupply; !supply.IsZero() && g.TokensAwarded.Gt(supply) {
		return violation(zero, "awarded tokens exceed supply")
	}
	if ceiling := &e.settings.SaleCap; !ceiling.IsZero() && g.Accepted.Gt(ceiling) {
		return violation(zero, "accepted funds exceed sale cap")
	}
	if len(stages) != e.schedule.Len() {
		return violation(zero, "stage table size")
	}
	var stageSum Totals
	for i := range stages {
		if err := checkTotals(zero, fmt.Sprintf("global stage %d", i), &stages[i]); err != nil {
			return err
		}
		if err := stageSum.add(&stages[i]); err != nil {
			return violation(zero, "stage sum overflow")
		}
	}
	if stageSum != g.Totals {
		return violation(zero, "stage totals differ from global totals")
	}
	return nil
}

func violation(addr common.Address, check string) error {
	return &FatalError{Participant: addr, Check: check, Err: ErrInvariantViolation}
}
