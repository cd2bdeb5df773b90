package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	escrowstore "github.com/agirails/actp-kernel-sub001/internal/escrow/store"
	"github.com/agirails/actp-kernel-sub001/internal/ledger"
	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
	"github.com/agirails/actp-kernel-sub001/pkg/requestcontext"
)

type VaultSuite struct {
	suite.Suite

	kernel    id.PartyID
	depositor id.PartyID
	recipient id.PartyID
	account   id.PartyID

	ledger *ledger.InMemory
	vault  *Vault
}

func TestVaultSuite(t *testing.T) {
	suite.Run(t, new(VaultSuite))
}

func (s *VaultSuite) SetupTest() {
	s.kernel = id.NewParty()
	s.depositor = id.NewParty()
	s.recipient = id.NewParty()
	s.account = id.NewParty()

	s.ledger = ledger.NewInMemory()
	s.Require().NoError(s.ledger.Mint(context.Background(), s.depositor, 50_000))

	s.vault = NewVault(id.VaultID(id.NewParty()), s.account, escrowstore.NewInMemory(), s.ledger, s.kernel)
}

func (s *VaultSuite) ctx() context.Context {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return requestcontext.WithTime(requestcontext.WithActor(context.Background(), s.depositor), now)
}

func (s *VaultSuite) key(b byte) id.EscrowKey {
	var key id.EscrowKey
	key[0] = b
	return key
}

func (s *VaultSuite) txID(b byte) id.TxID {
	var txID id.TxID
	txID[0] = b
	return txID
}

func (s *VaultSuite) balance(p id.PartyID) int64 {
	bal, err := s.ledger.Balance(context.Background(), p)
	s.Require().NoError(err)
	return bal
}

func (s *VaultSuite) TestDeposit() {
	s.Run("moves funds into custody and opens the record", func() {
		key := s.key(1)
		s.NoError(s.vault.Deposit(s.ctx(), s.txID(1), key, 10_000))

		s.Equal(int64(40_000), s.balance(s.depositor))
		s.Equal(int64(10_000), s.balance(s.account))

		remaining, err := s.vault.Remaining(context.Background(), key)
		s.Require().NoError(err)
		s.Equal(int64(10_000), remaining)

		active, err := s.vault.HasActive(context.Background(), key)
		s.Require().NoError(err)
		s.True(active)
	})

	s.Run("zero key rejected", func() {
		err := s.vault.Deposit(s.ctx(), s.txID(1), id.EscrowKey{}, 100)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("non-positive amount rejected", func() {
		err := s.vault.Deposit(s.ctx(), s.txID(1), s.key(2), 0)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("anonymous depositor rejected", func() {
		err := s.vault.Deposit(context.Background(), s.txID(1), s.key(2), 100)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("active key cannot be reused", func() {
		err := s.vault.Deposit(s.ctx(), s.txID(2), s.key(1), 100)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Equal(int64(40_000), s.balance(s.depositor), "rejected deposit moves nothing")
	})

	s.Run("insufficient balance rejected", func() {
		err := s.vault.Deposit(s.ctx(), s.txID(3), s.key(3), 1_000_000)
		s.True(dErrors.HasCode(err, dErrors.CodeResourceExhausted))
	})
}

func (s *VaultSuite) TestRelease() {
	key := s.key(1)
	s.Require().NoError(s.vault.Deposit(s.ctx(), s.txID(1), key, 10_000))

	s.Run("non-kernel caller rejected", func() {
		err := s.vault.Release(context.Background(), s.depositor, key, s.recipient, 100)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("partial release keeps the record active", func() {
		s.NoError(s.vault.Release(context.Background(), s.kernel, key, s.recipient, 9_750))
		s.Equal(int64(9_750), s.balance(s.recipient))

		remaining, err := s.vault.Remaining(context.Background(), key)
		s.Require().NoError(err)
		s.Equal(int64(250), remaining)
	})

	s.Run("over-release rejected", func() {
		err := s.vault.Release(context.Background(), s.kernel, key, s.recipient, 251)
		s.True(dErrors.HasCode(err, dErrors.CodeResourceExhausted))
	})

	s.Run("final release frees the key", func() {
		s.NoError(s.vault.Release(context.Background(), s.kernel, key, s.recipient, 250))

		active, err := s.vault.HasActive(context.Background(), key)
		s.Require().NoError(err)
		s.False(active)

		// Conservation: everything deposited came back out.
		s.Equal(int64(10_000), s.balance(s.recipient))
		s.Zero(s.balance(s.account))
	})

	s.Run("freed key accepts a new deposit", func() {
		s.NoError(s.vault.Deposit(s.ctx(), s.txID(2), key, 500))

		remaining, err := s.vault.Remaining(context.Background(), key)
		s.Require().NoError(err)
		s.Equal(int64(500), remaining)
	})

	s.Run("unknown key not found", func() {
		err := s.vault.Release(context.Background(), s.kernel, s.key(9), s.recipient, 1)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *VaultSuite) TestRefund() {
	key := s.key(1)
	s.Require().NoError(s.vault.Deposit(s.ctx(), s.txID(1), key, 10_000))
	s.Require().NoError(s.vault.Release(context.Background(), s.kernel, key, s.recipient, 4_000))

	s.Run("non-kernel caller rejected", func() {
		err := s.vault.Refund(context.Background(), s.depositor, key, s.depositor)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("refund returns the remaining balance and frees the key", func() {
		s.NoError(s.vault.Refund(context.Background(), s.kernel, key, s.depositor))
		s.Equal(int64(46_000), s.balance(s.depositor))
		s.Zero(s.balance(s.account))

		active, err := s.vault.HasActive(context.Background(), key)
		s.Require().NoError(err)
		s.False(active)
	})

	s.Run("unknown key not found", func() {
		err := s.vault.Refund(context.Background(), s.kernel, key, s.depositor)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *VaultSuite) TestRemainingUnknownKey() {
	remaining, err := s.vault.Remaining(context.Background(), s.key(42))
	s.Require().NoError(err)
	s.Zero(remaining)
}
