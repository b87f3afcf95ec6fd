package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"trustScope/internal/contracts"
)

var (
	// ErrSelfAttestation is returned for an attempt to attest to one's own wallet.
	ErrSelfAttestation = errors.New("cannot attest to your own wallet")
	// ErrAlreadyAttested is returned when the mirror holds an active attestation.
	ErrAlreadyAttested = errors.New("you have already attested to this user, revoke it first")
	// ErrInvalidAddress is returned for a malformed target wallet.
	ErrInvalidAddress = errors.New("invalid wallet address")
	// ErrInvalidScore is returned for a score outside [-127, 127].
	ErrInvalidScore = errors.New("score must be an integer between -127 and 127")
	// ErrMirrorSync is wrapped into errors from a mirror write that followed a
	// successful transaction.
	ErrMirrorSync = errors.New("transaction confirmed but mirror update failed")
	// ErrMirrorUnavailable is returned when a ledger attestation has no located
	// event and the mirror could not be read to rule out a duplicate.
	ErrMirrorUnavailable = errors.New("attestation exists on chain but the mirror is unreachable")
)

// ErrorKind classifies ledger call failures for user messaging.
type ErrorKind string

const (
	KindUserCancelled ErrorKind = "user_cancelled"
	KindAlreadyExists ErrorKind = "already_exists"
	KindGeneric       ErrorKind = "generic"
)

// ExternalCallError is a failed ledger read or write.
type ExternalCallError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }

// Message is the text shown to the user.
func (e *ExternalCallError) Message() string {
	switch e.Kind {
	case KindUserCancelled:
		return "Transaction cancelled"
	case KindAlreadyExists:
		return "You have already attested to this user"
	default:
		return "Transaction failed"
	}
}

var cancelMarkers = []string{"user rejected", "user denied", "rejected by user", "request rejected"}

// classify wraps err from op into an ExternalCallError.
func classify(op string, err error) *ExternalCallError {
	kind := KindGeneric
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.Canceled):
		kind = KindUserCancelled
	case errors.Is(err, contracts.ErrAttestationExists):
		kind = KindAlreadyExists
	default:
		for _, marker := range cancelMarkers {
			if strings.Contains(msg, marker) {
				kind = KindUserCancelled
				break
			}
		}
	}
	return &ExternalCallError{Kind: kind, Op: op, Err: err}
}

// UserMessage renders any flow error for display.
func UserMessage(err error) string {
	var callErr *ExternalCallError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &callErr):
		return callErr.Message()
	case errors.Is(err, ErrMirrorSync):
		return "Transaction confirmed on-chain but failed to sync. It will appear after the next backfill."
	case errors.Is(err, ErrMirrorUnavailable):
		return "You have already attested to this user on-chain. Try again once the service is reachable."
	default:
		return err.Error()
	}
}
