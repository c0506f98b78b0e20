package ledger

import "errors"

// Rejection reasons are sentinel errors so callers can distinguish a
// malformed transaction from a conflicting one. Checks run in a fixed order
// and nothing mutates until every check has passed, so a rejected transaction
// leaves no trace.
var (
	ErrStructural          = errors.New("transaction is structurally invalid")
	ErrUnrecognizedRoot    = errors.New("root is not within the acceptance window")
	ErrProofInvalid        = errors.New("proof does not verify")
	ErrAlreadySpent        = errors.New("input has already been spent")
	ErrAlreadyMinted       = errors.New("output commitment already exists")
	ErrUnknownInput        = errors.New("input commitment is not an unspent UTXO")
	ErrNotAuthorized       = errors.New("caller is not authorized")
	ErrLocked              = errors.New("input is locked to another delegate")
	ErrInsufficientReserve = errors.New("withdraw exceeds the deposit reserve")
)
