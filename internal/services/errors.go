package services

import (
	"fmt"
	"time"
)

// ErrorKind classifies a settlement failure. Handlers map kinds to transport
// status codes; clients use them to decide between fixing the request,
// backing off, and giving up.
type ErrorKind string

const (
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindNotFound      ErrorKind = "not_found"
	ErrorKindEligibility   ErrorKind = "eligibility"
	ErrorKindAuthorization ErrorKind = "authorization"
	ErrorKindConflict      ErrorKind = "conflict"
	ErrorKindIntegrity     ErrorKind = "integrity"
	ErrorKindLedger        ErrorKind = "ledger"
	ErrorKindInternal      ErrorKind = "internal"
)

// Error codes, one per distinct failure case.
const (
	CodeInvalidAmount       = "invalid_amount"
	CodeInvalidAddress      = "invalid_address"
	CodeInvalidSignature    = "invalid_signature_format"
	CodeInvalidAsset        = "invalid_asset"
	CodeTokenNotFound       = "token_not_found"
	CodePresaleNotFound     = "presale_not_found"
	CodePendingNotFound     = "pending_transaction_not_found"
	CodeAmountExceedsLimit  = "amount_exceeds_available"
	CodeNothingToClaim      = "nothing_to_claim"
	CodeNotYetUnlocked      = "not_yet_unlocked"
	CodeClaimableDecreased  = "claimable_decreased"
	CodeNoContribution      = "no_contribution"
	CodePresaleNotLaunched  = "presale_not_launched"
	CodePresaleLaunched     = "presale_already_launched"
	CodeNotAuthorized       = "not_authorized"
	CodeDesignationPending  = "designation_unverified"
	CodeLauncherBlocked     = "original_launcher_blocked"
	CodeCooldownActive      = "claim_cooldown_active"
	CodeBidAlreadyRecorded  = "bid_already_recorded"
	CodeClaimAlreadyExists  = "claim_already_recorded"
	CodeBlockhashExpired    = "blockhash_expired"
	CodeSignatureInvalid    = "signature_invalid"
	CodeInstructionMismatch = "instruction_mismatch"
	CodeTransferNotVerified = "transfer_not_verified"
	CodeSubmissionFailed    = "submission_failed"
	CodeLedgerRejected      = "ledger_rejected"
	CodeConfirmationTimeout = "confirmation_timeout"
	CodeStoreFailure        = "store_failure"
)

// Error is the structured settlement error. It carries enough detail to act
// on but never key material or internals.
type Error struct {
	Kind       ErrorKind     `json:"kind"`
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(kind ErrorKind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func validationError(code, format string, args ...interface{}) *Error {
	return newError(ErrorKindValidation, code, format, args...)
}

func notFoundError(code, format string, args ...interface{}) *Error {
	return newError(ErrorKindNotFound, code, format, args...)
}

func eligibilityError(code, format string, args ...interface{}) *Error {
	return newError(ErrorKindEligibility, code, format, args...)
}

func authorizationError(code, format string, args ...interface{}) *Error {
	return newError(ErrorKindAuthorization, code, format, args...)
}

func conflictError(code, format string, args ...interface{}) *Error {
	return newError(ErrorKindConflict, code, format, args...)
}

func integrityError(code, format string, args ...interface{}) *Error {
	return newError(ErrorKindIntegrity, code, format, args...)
}

func ledgerError(code, format string, args ...interface{}) *Error {
	return newError(ErrorKindLedger, code, format, args...)
}

func internalError(code, format string, args ...interface{}) *Error {
	return newError(ErrorKindInternal, code, format, args...)
}
