package sale

import "rico/core/events"

func transferEvent(tr Transfer) events.SaleTransferRecorded {
	return events.SaleTransferRecorded{
		ID:        tr.ID,
		Seq:       tr.Seq,
		Kind:      tr.Type.String(),
		To:        tr.To,
		Amount:    u256(&tr.Amount),
		Delivered: tr.Delivered,
		Tick:      tr.Tick,
	}
}
