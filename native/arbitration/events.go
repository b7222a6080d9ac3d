package arbitration

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"tripartite/core/types"
)

const (
	EventTypeEvidenceRecorded     = "arbitration.evidence_recorded"
	EventTypeDisputeRaised        = "arbitration.dispute_raised"
	EventTypeEvidenceSubmitted    = "arbitration.evidence_submitted"
	EventTypePartialRefundOffered = "arbitration.partial_refund_offered"
	EventTypeAgreementCreated     = "arbitration.agreement_created"
	EventTypeStatusChanged        = "arbitration.status_changed"
	EventTypeDecisionRendered     = "arbitration.decision_rendered"
	EventTypePayout               = "arbitration.payout"
)

// Payout recipient roles reported on payout events.
const (
	RoleConsumer = "consumer"
	RoleProvider = "provider"
)

// NewEvidenceRecordedEvent is emitted once at creation with the consumer's
// initial evidence reference.
func NewEvidenceRecordedEvent(id uint64, evidence string) *types.Event {
	return &types.Event{
		Type: EventTypeEvidenceRecorded,
		Attributes: map[string]string{
			"id":       formatID(id),
			"evidence": evidence,
		},
	}
}

// NewDisputeRaisedEvent notifies the arbiter that a dispute was opened.
func NewDisputeRaisedEvent(a *Agreement) *types.Event {
	attrs := map[string]string{}
	if a != nil {
		attrs["id"] = formatID(a.ID)
		attrs["arbiter"] = FormatAddress(a.Arbiter)
	}
	return &types.Event{Type: EventTypeDisputeRaised, Attributes: attrs}
}

// NewEvidenceSubmittedEvent records a piece of evidence from either party.
func NewEvidenceSubmittedEvent(a *Agreement, submitter [20]byte, evidence string) *types.Event {
	attrs := map[string]string{
		"submitter": FormatAddress(submitter),
		"evidence":  evidence,
	}
	if a != nil {
		attrs["id"] = formatID(a.ID)
		attrs["arbiter"] = FormatAddress(a.Arbiter)
	}
	return &types.Event{Type: EventTypeEvidenceSubmitted, Attributes: attrs}
}

// NewPartialRefundOfferedEvent reports the percentage of the service price the
// provider is offering back to the consumer.
func NewPartialRefundOfferedEvent(a *Agreement, percentage uint32) *types.Event {
	attrs := map[string]string{
		"percentage": strconv.FormatUint(uint64(percentage), 10),
	}
	if a != nil {
		attrs["id"] = formatID(a.ID)
		attrs["provider"] = FormatAddress(a.Provider)
	}
	return &types.Event{Type: EventTypePartialRefundOffered, Attributes: attrs}
}

func NewAgreementCreatedEvent(a *Agreement) *types.Event {
	attrs := map[string]string{}
	if a == nil {
		return &types.Event{Type: EventTypeAgreementCreated, Attributes: attrs}
	}
	attrs["id"] = formatID(a.ID)
	attrs["consumer"] = FormatAddress(a.Consumer)
	attrs["provider"] = FormatAddress(a.Provider)
	attrs["arbiter"] = FormatAddress(a.Arbiter)
	attrs["servicePrice"] = formatAmount(a.ServicePrice)
	attrs["contractDuration"] = strconv.FormatInt(a.ContractDuration, 10)
	attrs["procedureUnit"] = strconv.FormatInt(a.ProcedureUnit, 10)
	attrs["startTimestamp"] = strconv.FormatInt(a.StartTimestamp, 10)
	return &types.Event{Type: EventTypeAgreementCreated, Attributes: attrs}
}

func NewStatusChangedEvent(id uint64, from, to Status) *types.Event {
	return &types.Event{
		Type: EventTypeStatusChanged,
		Attributes: map[string]string{
			"id":   formatID(id),
			"from": from.String(),
			"to":   to.String(),
		},
	}
}

func NewDecisionRenderedEvent(a *Agreement) *types.Event {
	attrs := map[string]string{}
	if a != nil {
		attrs["id"] = formatID(a.ID)
		attrs["arbiter"] = FormatAddress(a.Arbiter)
		attrs["decision"] = a.Decision.String()
	}
	return &types.Event{Type: EventTypeDecisionRendered, Attributes: attrs}
}

func NewPayoutEvent(id uint64, recipient [20]byte, role string, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypePayout,
		Attributes: map[string]string{
			"id":        formatID(id),
			"recipient": FormatAddress(recipient),
			"role":      role,
			"amount":    formatAmount(amount),
		},
	}
}

// FormatAddress renders a participant identity in checksummed hex form.
func FormatAddress(addr [20]byte) string {
	return common.Address(addr).Hex()
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
