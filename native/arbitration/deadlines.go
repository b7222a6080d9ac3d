package arbitration

import "math"

// Deadlines holds the four offsets, measured in seconds since the
// agreement's start timestamp, that gate every time-sensitive transition.
type Deadlines struct {
	Delivery      int64 // D1: end of the service window
	DisputeClose  int64 // D2: last moment a dispute may be raised (exclusive)
	EvidenceClose int64 // D3: last moment evidence is accepted (inclusive)
	DecisionClose int64 // D4: arbiter window closes (exclusive)
}

// ComputeDeadlines derives D1..D4 from the contract duration and the
// procedure unit.
func ComputeDeadlines(contractDuration, procedureUnit int64) Deadlines {
	return Deadlines{
		Delivery:      contractDuration,
		DisputeClose:  contractDuration + procedureUnit,
		EvidenceClose: contractDuration + 2*procedureUnit,
		DecisionClose: contractDuration + 3*procedureUnit,
	}
}

// DeadlinesFit reports whether every deadline offset for the given units is
// representable as an int64.
func DeadlinesFit(contractDuration, procedureUnit int64) bool {
	if contractDuration < 0 || procedureUnit < 0 || procedureUnit > math.MaxInt64/3 {
		return false
	}
	return contractDuration <= math.MaxInt64-3*procedureUnit
}

// DisputeOpen reports D1 < elapsed < D2.
func (d Deadlines) DisputeOpen(elapsed int64) bool {
	return elapsed > d.Delivery && elapsed < d.DisputeClose
}

// EvidenceOpen reports elapsed <= D3.
func (d Deadlines) EvidenceOpen(elapsed int64) bool {
	return elapsed <= d.EvidenceClose
}

// DecisionOpen reports D3 < elapsed < D4.
func (d Deadlines) DecisionOpen(elapsed int64) bool {
	return elapsed > d.EvidenceClose && elapsed < d.DecisionClose
}

// ReleaseOpen reports elapsed > D2.
func (d Deadlines) ReleaseOpen(elapsed int64) bool {
	return elapsed > d.DisputeClose
}

// DecisionClosed reports elapsed > D4.
func (d Deadlines) DecisionClosed(elapsed int64) bool {
	return elapsed > d.DecisionClose
}

// Window names the span of the timeline an elapsed offset falls into. It is
// informational; transitions use the predicate methods because their
// boundaries are not uniformly inclusive.
type Window uint8

const (
	WindowDelivery Window = iota // [0, D1]
	WindowDispute                // (D1, D2)
	WindowEvidence               // [D2, D3]
	WindowDecision               // (D3, D4)
	WindowClosed                 // [D4, ∞)
)

func (w Window) String() string {
	switch w {
	case WindowDelivery:
		return "delivery"
	case WindowDispute:
		return "dispute"
	case WindowEvidence:
		return "evidence"
	case WindowDecision:
		return "decision"
	case WindowClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Phase classifies an elapsed offset.
func (d Deadlines) Phase(elapsed int64) Window {
	switch {
	case elapsed <= d.Delivery:
		return WindowDelivery
	case elapsed < d.DisputeClose:
		return WindowDispute
	case elapsed <= d.EvidenceClose:
		return WindowEvidence
	case elapsed < d.DecisionClose:
		return WindowDecision
	default:
		return WindowClosed
	}
}

// PhaseAt is the free-standing form of Deadlines.Phase.
func PhaseAt(elapsed, contractDuration, procedureUnit int64) Window {
	return ComputeDeadlines(contractDuration, procedureUnit).Phase(elapsed)
}
