package server

import (
	"math/big"

	"tripartite/native/arbitration"
	"tripartite/storage/eventlog"
)

type deadlinesView struct {
	Delivery      int64 `json:"delivery"`
	DisputeClose  int64 `json:"disputeClose"`
	EvidenceClose int64 `json:"evidenceClose"`
	DecisionClose int64 `json:"decisionClose"`
}

type agreementView struct {
	ID                     uint64        `json:"id"`
	Consumer               string        `json:"consumer"`
	Provider               string        `json:"provider"`
	Arbiter                string        `json:"arbiter"`
	Status                 string        `json:"status"`
	Decision               string        `json:"decision"`
	ServicePrice           string        `json:"servicePrice"`
	FeeUnit                string        `json:"feeUnit"`
	ProviderFeeDeposit     string        `json:"providerFeeDeposit"`
	DisputeFeeStake        string        `json:"disputeFeeStake"`
	NegotiationAccumulator string        `json:"negotiationAccumulator"`
	ArbiterConfirmed       bool          `json:"arbiterConfirmed"`
	ContractDuration       int64         `json:"contractDuration"`
	ProcedureUnit          int64         `json:"procedureUnit"`
	StartTimestamp         int64         `json:"startTimestamp"`
	Deadlines              deadlinesView `json:"deadlines"`
	Window                 string        `json:"window"`
	Deposited              string        `json:"deposited"`
	PaidOut                string        `json:"paidOut"`
	Residual               string        `json:"residual"`
	Settled                bool          `json:"settled"`
}

func newAgreementView(a *arbitration.Agreement, window arbitration.Window) agreementView {
	d := a.Deadlines()
	return agreementView{
		ID:                     a.ID,
		Consumer:               arbitration.FormatAddress(a.Consumer),
		Provider:               arbitration.FormatAddress(a.Provider),
		Arbiter:                arbitration.FormatAddress(a.Arbiter),
		Status:                 a.Status.String(),
		Decision:               a.Decision.String(),
		ServicePrice:           amountString(a.ServicePrice),
		FeeUnit:                amountString(a.FeeUnit),
		ProviderFeeDeposit:     amountString(a.ProviderFeeDeposit),
		DisputeFeeStake:        amountString(a.DisputeFeeStake),
		NegotiationAccumulator: amountString(a.NegotiationAccumulator),
		ArbiterConfirmed:       a.ArbiterConfirmed,
		ContractDuration:       a.ContractDuration,
		ProcedureUnit:          a.ProcedureUnit,
		StartTimestamp:         a.StartTimestamp,
		Deadlines: deadlinesView{
			Delivery:      d.Delivery,
			DisputeClose:  d.DisputeClose,
			EvidenceClose: d.EvidenceClose,
			DecisionClose: d.DecisionClose,
		},
		Window:    window.String(),
		Deposited: amountString(a.Deposited),
		PaidOut:   amountString(a.PaidOut),
		Residual:  amountString(a.Residual()),
		Settled:   a.Settled,
	}
}

type eventView struct {
	Sequence   int64             `json:"sequence"`
	UID        string            `json:"uid"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  int64             `json:"createdAt"`
}

func newEventViews(records []eventlog.Record) []eventView {
	out := make([]eventView, 0, len(records))
	for _, rec := range records {
		out = append(out, eventView{
			Sequence:   rec.Sequence,
			UID:        rec.UID,
			Type:       rec.Type,
			Attributes: rec.Attributes,
			CreatedAt:  rec.CreatedAt.Unix(),
		})
	}
	return out
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
