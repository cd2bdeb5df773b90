// Package ledger is the value substrate for the protocol: a balance per
// party, moved only by transfers. Vault deposits, releases, refunds and fee
// routing are all expressed as transfers between accounts, so escrow
// conservation can be asserted against a single source of truth.
package ledger

import (
	"context"

	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
)

// Ledger moves value between party accounts. Implementations must apply a
// transfer atomically: either both balances change or neither does.
type Ledger interface {
	Balance(ctx context.Context, party id.PartyID) (int64, error)
	// Transfer moves amount from one account to the other. Fails with
	// sentinel.ErrInsufficient when the source balance is too low.
	Transfer(ctx context.Context, from, to id.PartyID, amount int64) error
	// Mint credits an account out of thin air. Deployment seeds balances
	// with it; tests fund parties with it.
	Mint(ctx context.Context, to id.PartyID, amount int64) error
}
