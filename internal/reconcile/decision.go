package reconcile

// Decision is the outcome of reconciling one attest attempt.
type Decision string

const (
	// CheckLedger means the local checks passed and the ledger must be asked.
	CheckLedger Decision = "check_ledger"
	// Proceed submits a new attestation.
	Proceed Decision = "proceed"
	// Blocked means the mirror already holds an active attestation.
	Blocked Decision = "blocked"
	// Recoverable means the ledger holds an attestation the mirror missed.
	Recoverable Decision = "recoverable"
	// NoOp means the mirror already holds the recovered fact.
	NoOp Decision = "no_op"
	// Rejected means the attempt targets the caller's own wallet.
	Rejected Decision = "rejected"
)

// Observation is what is known about an attest attempt at decision time.
type Observation struct {
	Self         bool
	MirrorActive bool
	// Ledger is nil until the ledger has been queried.
	Ledger *bool
	// Recorded is set when the mirror reported the recovered fact as a duplicate.
	Recorded bool
}

// Decide maps an observation to a decision. It has no side effects.
func Decide(o Observation) Decision {
	switch {
	case o.Self:
		return Rejected
	case o.MirrorActive:
		return Blocked
	case o.Ledger == nil:
		return CheckLedger
	case !*o.Ledger:
		return Proceed
	case o.Recorded:
		return NoOp
	default:
		return Recoverable
	}
}
