package ledger

import (
	"math/big"

	"github.com/consensys/gnark-crypto/signature"
	"github.com/zetolabs/zeto/types"
)

// Capability interfaces let callers depend on the slice of the state machine
// they actually use. A deployment that only mints and transfers never sees
// the reserve or lock operations.

type Mintable interface {
	Mint(caller signature.PublicKey, outputs []types.Commitment, data []byte) error
}

type Nullifiable interface {
	Transfer(tx *TransferTx) error
	IsSpent(n types.Nullifier) bool
	Root() *big.Int
}

type Registrable interface {
	IdentitiesRoot() *big.Int
}

type Redeemable interface {
	Deposit(tx *DepositTx) error
	Withdraw(tx *WithdrawTx) error
}

type LockCapable interface {
	Lock(inputs []types.Commitment, delegate []byte) error
	StatusOf(c types.Commitment) Status
}

var (
	_ Mintable    = (*Ledger)(nil)
	_ Nullifiable = (*Ledger)(nil)
	_ Registrable = (*Ledger)(nil)
	_ Redeemable  = (*Ledger)(nil)
	_ LockCapable = (*Ledger)(nil)
)
