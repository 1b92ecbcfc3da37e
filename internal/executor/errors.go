package executor

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoWalletSession means no active signing session exists for the user.
	// The caller must re-establish one through the wallet-session collaborator.
	ErrNoWalletSession = errors.New("no active wallet session")

	// ErrChainUnsupported means the session does not authorize the target
	// chain and the out-of-band add-chain request did not help.
	ErrChainUnsupported = errors.New("wallet session does not authorize target chain")

	// ErrConfirmationTimeout means the confirmation wait expired. The
	// transaction may still land; the caller must check explorer state before
	// retrying to avoid a double submit.
	ErrConfirmationTimeout = errors.New("confirmation timed out; check explorer state before retrying")

	// ErrPartialExecution means the approval confirmed but the action step
	// failed. Funds are approved, not deposited; the action may be retried
	// without re-approving.
	ErrPartialExecution = errors.New("approval confirmed but action failed; safe to retry the action step")
)

// RevertError carries the chain-reported revert reason verbatim, plus an
// actionable hint when the reason matches a known pattern.
type RevertError struct {
	Reason string
	Hint   string
}

func (e *RevertError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("transaction reverted: %s (%s)", e.Reason, e.Hint)
	}
	return fmt.Sprintf("transaction reverted: %s", e.Reason)
}

// revertHint pattern-matches balance and allowance reverts into hints the
// front-end can show directly.
func revertHint(reason string, chainName string) string {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "exceeds balance"), strings.Contains(lower, "insufficient balance"), strings.Contains(lower, "insufficient funds"):
		return fmt.Sprintf("insufficient balance on chain %s", chainName)
	case strings.Contains(lower, "insufficient allowance"), strings.Contains(lower, "exceeds allowance"):
		return "token approval is missing or too small; approve again"
	case strings.Contains(lower, "paused"):
		return "the pool is paused; try again later"
	default:
		return ""
	}
}

func newRevertError(reason, chainName string) *RevertError {
	if reason == "" {
		reason = "execution reverted"
	}
	return &RevertError{Reason: reason, Hint: revertHint(reason, chainName)}
}
