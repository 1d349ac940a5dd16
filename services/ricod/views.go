package ricod

import (
	"encoding/hex"

	"github.com/holiman/uint256"

	"rico/native/sale"
)

// Amounts are rendered as decimal strings; 256-bit values do not survive a
// round trip through JSON numbers.

type totalsView struct {
	Received       string `json:"received"`
	Returned       string `json:"returned"`
	Accepted       string `json:"accepted"`
	Withdrawn      string `json:"withdrawn"`
	Pending        string `json:"pending"`
	Owed           string `json:"owed"`
	TokensReserved string `json:"tokensReserved"`
	TokensAwarded  string `json:"tokensAwarded"`
}

func newTotalsView(t sale.Totals) totalsView {
	return totalsView{
		Received:       t.Received.Dec(),
		Returned:       t.Returned.Dec(),
		Accepted:       t.Accepted.Dec(),
		Withdrawn:      t.Withdrawn.Dec(),
		Pending:        t.Pending.Dec(),
		Owed:           t.Owed().Dec(),
		TokensReserved: t.TokensReserved.Dec(),
		TokensAwarded:  t.TokensAwarded.Dec(),
	}
}

type globalView struct {
	totalsView
	ProjectWithdrawn string `json:"projectWithdrawn"`
	Withdrawable     string `json:"withdrawable"`
	Dust             string `json:"dust"`
	LastTick         uint64 `json:"lastTick"`
	CurrentTick      uint64 `json:"currentTick"`
	Stage            *uint8 `json:"stage,omitempty"`
	Cancelled        bool   `json:"cancelled"`
	Halted           string `json:"halted,omitempty"`
	Participants     int    `json:"participants"`
}

type stageView struct {
	Index     uint8  `json:"index"`
	StartTick uint64 `json:"startTick"`
	EndTick   uint64 `json:"endTick"`
	UnitPrice string `json:"unitPrice"`
}

func newStageView(st sale.Stage) stageView {
	return stageView{Index: st.Index, StartTick: st.StartTick, EndTick: st.EndTick, UnitPrice: st.UnitPrice.Dec()}
}

type participantView struct {
	Address            string       `json:"address"`
	Status             string       `json:"status"`
	Committed          bool         `json:"committed"`
	CommittedTick      uint64       `json:"committedTick,omitempty"`
	ContributionsCount uint32       `json:"contributionsCount"`
	Totals             totalsView   `json:"totals"`
	Stages             []totalsView `json:"stages"`
}

func newParticipantView(p *sale.Participant) participantView {
	view := participantView{
		Address:            p.Address.Hex(),
		Status:             p.Status.String(),
		Committed:          p.Committed,
		CommittedTick:      p.CommittedTick,
		ContributionsCount: p.ContributionsCount,
		Totals:             newTotalsView(p.Totals),
		Stages:             make([]totalsView, 0, len(p.Stages)),
	}
	for _, st := range p.Stages {
		view.Stages = append(view.Stages, newTotalsView(st))
	}
	return view
}

type contributionView struct {
	Seq            uint32 `json:"seq"`
	Stage          uint8  `json:"stage"`
	Amount         string `json:"amount"`
	Tick           uint64 `json:"tick"`
	Resolved       bool   `json:"resolved"`
	ResolvedTick   uint64 `json:"resolvedTick,omitempty"`
	Accepted       string `json:"accepted"`
	Returned       string `json:"returned"`
	TokensReserved string `json:"tokensReserved"`
	TokensAwarded  string `json:"tokensAwarded"`
	Dust           string `json:"dust"`
}

func newContributionView(c sale.Contribution) contributionView {
	return contributionView{
		Seq:            c.Seq,
		Stage:          c.Stage,
		Amount:         c.Amount.Dec(),
		Tick:           c.Tick,
		Resolved:       c.Resolved,
		ResolvedTick:   c.ResolvedTick,
		Accepted:       c.Accepted.Dec(),
		Returned:       c.Returned.Dec(),
		TokensReserved: c.TokensReserved.Dec(),
		TokensAwarded:  c.TokensAwarded.Dec(),
		Dust:           c.Dust.Dec(),
	}
}

type decisionView struct {
	Seq            uint64 `json:"seq"`
	Participant    string `json:"participant"`
	Decision       string `json:"decision"`
	Tick           uint64 `json:"tick"`
	Accepted       string `json:"accepted"`
	Returned       string `json:"returned"`
	TokensAwarded  string `json:"tokensAwarded"`
	TokensReversed string `json:"tokensReversed"`
}

func newDecisionView(d sale.DecisionRecord) decisionView {
	return decisionView{
		Seq:            d.Seq,
		Participant:    d.Participant.Hex(),
		Decision:       d.Kind.String(),
		Tick:           d.Tick,
		Accepted:       d.Accepted.Dec(),
		Returned:       d.Returned.Dec(),
		TokensAwarded:  d.TokensAwarded.Dec(),
		TokensReversed: d.TokensReversed.Dec(),
	}
}

type transferView struct {
	ID        string `json:"id"`
	Seq       uint64 `json:"seq"`
	Type      string `json:"type"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Tick      uint64 `json:"tick"`
	Delivered bool   `json:"delivered"`
}

func newTransferView(tr sale.Transfer) transferView {
	return transferView{
		ID:        "0x" + hex.EncodeToString(tr.ID[:]),
		Seq:       tr.Seq,
		Type:      tr.Type.String(),
		To:        tr.To.Hex(),
		Amount:    tr.Amount.Dec(),
		Tick:      tr.Tick,
		Delivered: tr.Delivered,
	}
}

func newTransferViews(trs []sale.Transfer) []transferView {
	out := make([]transferView, 0, len(trs))
	for _, tr := range trs {
		out = append(out, newTransferView(tr))
	}
	return out
}

type settlementView struct {
	Decision       string         `json:"decision,omitempty"`
	Participant    string         `json:"participant"`
	Status         string         `json:"status"`
	Accepted       string         `json:"accepted"`
	Returned       string         `json:"returned"`
	TokensAwarded  string         `json:"tokensAwarded"`
	TokensReversed string         `json:"tokensReversed"`
	Transfers      []transferView `json:"transfers"`
}

func newSettlementView(s *sale.Settlement) *settlementView {
	if s == nil {
		return nil
	}
	view := &settlementView{
		Participant:    s.Participant.Hex(),
		Status:         s.Status.String(),
		Accepted:       s.Accepted.Dec(),
		Returned:       s.Returned.Dec(),
		TokensAwarded:  s.TokensAwarded.Dec(),
		TokensReversed: s.TokensReversed.Dec(),
		Transfers:      newTransferViews(s.Transfers),
	}
	if s.Decision != 0 {
		view.Decision = s.Decision.String()
	}
	return view
}

type contributeResponse struct {
	Contribution *contributionView `json:"contribution,omitempty"`
	Settlement   *settlementView   `json:"settlement,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Class string `json:"class,omitempty"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type decisionRequest struct {
	Participant string `json:"participant"`
	Decision    string `json:"decision"`
}

type pauseRequest struct {
	Module string `json:"module"`
}

func parseAmount(raw string) (*uint256.Int, error) {
	return uint256.FromDecimal(raw)
}
