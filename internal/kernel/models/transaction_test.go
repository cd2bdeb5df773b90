package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
)

type TransactionModelSuite struct {
	suite.Suite
	requester id.PartyID
	provider  id.PartyID
	now       time.Time
}

func TestTransactionModelSuite(t *testing.T) {
	suite.Run(t, new(TransactionModelSuite))
}

func (s *TransactionModelSuite) SetupTest() {
	s.requester = id.NewParty()
	s.provider = id.NewParty()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *TransactionModelSuite) newTx() *Transaction {
	tx, err := NewTransaction(s.txID(1), s.requester, s.provider, 10_000,
		s.now.Add(72*time.Hour), 24*time.Hour, id.Hash256{0xAA}, "", s.now)
	s.Require().NoError(err)
	return tx
}

func (s *TransactionModelSuite) txID(b byte) id.TxID {
	var txID id.TxID
	txID[0] = b
	return txID
}

func (s *TransactionModelSuite) TestNewTransaction() {
	s.Run("valid terms open in INITIATED", func() {
		tx := s.newTx()
		s.Equal(StateInitiated, tx.State)
		s.Equal(s.now, tx.CreatedAt)
		s.Nil(tx.Escrow)
	})

	s.Run("zero id rejected", func() {
		_, err := NewTransaction(id.TxID{}, s.requester, s.provider, 1,
			s.now.Add(time.Hour), time.Hour, id.Hash256{}, "", s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("requester equal to provider rejected", func() {
		_, err := NewTransaction(s.txID(1), s.requester, s.requester, 1,
			s.now.Add(time.Hour), time.Hour, id.Hash256{}, "", s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("non-positive amount rejected", func() {
		_, err := NewTransaction(s.txID(1), s.requester, s.provider, 0,
			s.now.Add(time.Hour), time.Hour, id.Hash256{}, "", s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("past deadline rejected", func() {
		_, err := NewTransaction(s.txID(1), s.requester, s.provider, 1,
			s.now.Add(-time.Hour), time.Hour, id.Hash256{}, "", s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("zero dispute window rejected", func() {
		_, err := NewTransaction(s.txID(1), s.requester, s.provider, 1,
			s.now.Add(time.Hour), 0, id.Hash256{}, "", s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func (s *TransactionModelSuite) TestLifecycleEdges() {
	s.Run("full happy path", func() {
		tx := s.newTx()
		s.NoError(tx.ApplyQuote(s.now))
		s.NoError(tx.ApplyCommit(EscrowRef{Vault: id.VaultID(id.NewParty()), Key: id.EscrowKey{1}}, 250, id.NewParty(), s.now))
		s.NoError(tx.ApplyStart(s.now))
		s.NoError(tx.ApplyDeliver(0, s.now))
		s.NoError(tx.ApplySettle(s.now))
		s.Equal(StateSettled, tx.State)
		s.Nil(tx.Escrow, "settlement clears the escrow link")
		s.True(tx.State.IsTerminal())
	})

	s.Run("skipping states is rejected", func() {
		tx := s.newTx()
		err := tx.ApplyStart(s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		s.Equal(StateInitiated, tx.State, "failed transition must not move state")
	})

	s.Run("terminal states accept nothing", func() {
		tx := s.newTx()
		s.NoError(tx.ApplyCancel(s.now))
		s.True(dErrors.HasCode(tx.ApplyQuote(s.now), dErrors.CodeInvalidState))
		s.True(dErrors.HasCode(tx.ApplyCancel(s.now), dErrors.CodeInvalidState))
	})

	s.Run("dispute only from delivered", func() {
		tx := s.newTx()
		s.True(dErrors.HasCode(tx.ApplyDispute(s.now), dErrors.CodeInvalidState))
	})

	s.Run("disputed resolves to settled or cancelled", func() {
		s.True(StateDisputed.CanTransitionTo(StateSettled))
		s.True(StateDisputed.CanTransitionTo(StateCancelled))
		s.False(StateDisputed.CanTransitionTo(StateDelivered))
	})
}

func (s *TransactionModelSuite) TestDeliver() {
	s.Run("records delivery time", func() {
		tx := s.newTx()
		s.NoError(tx.ApplyQuote(s.now))
		s.NoError(tx.ApplyCommit(EscrowRef{Key: id.EscrowKey{1}}, 0, id.NewParty(), s.now))
		s.NoError(tx.ApplyStart(s.now))

		deliveredAt := s.now.Add(time.Hour)
		s.NoError(tx.ApplyDeliver(0, deliveredAt))
		s.Equal(deliveredAt, tx.DeliveredAt)
		s.Equal(deliveredAt.Add(24*time.Hour), tx.DisputeDeadline())
	})

	s.Run("override shortens the window", func() {
		tx := s.newTx()
		s.NoError(tx.ApplyQuote(s.now))
		s.NoError(tx.ApplyCommit(EscrowRef{Key: id.EscrowKey{1}}, 0, id.NewParty(), s.now))
		s.NoError(tx.ApplyStart(s.now))
		s.NoError(tx.ApplyDeliver(time.Hour, s.now))
		s.Equal(time.Hour, tx.DisputeWindow)
	})

	s.Run("negative override rejected", func() {
		tx := s.newTx()
		s.NoError(tx.ApplyQuote(s.now))
		s.NoError(tx.ApplyCommit(EscrowRef{Key: id.EscrowKey{1}}, 0, id.NewParty(), s.now))
		s.NoError(tx.ApplyStart(s.now))
		s.True(dErrors.HasCode(tx.ApplyDeliver(-time.Hour, s.now), dErrors.CodeValidation))
	})
}

func (s *TransactionModelSuite) TestFeeShare() {
	tx := s.newTx()
	s.NoError(tx.ApplyQuote(s.now))
	s.NoError(tx.ApplyCommit(EscrowRef{Key: id.EscrowKey{1}}, 250, id.NewParty(), s.now))

	s.Equal(int64(250), tx.FeeShare(), "250 bps of 10000")

	tx.Amount = 39
	s.Equal(int64(0), tx.FeeShare(), "fee rounds down")

	// A naive amount*bps product would overflow int64 here.
	tx.Amount = 5_000_000_000_000_000_123
	s.Equal(int64(125_000_000_000_000_003), tx.FeeShare(), "large amounts stay exact")

	tx.Amount = math.MaxInt64
	fee := tx.FeeShare()
	s.Positive(fee)
	s.LessOrEqual(fee, tx.Amount)
}

func (s *TransactionModelSuite) TestCounterparty() {
	tx := s.newTx()
	s.Equal(s.provider, tx.Counterparty(s.requester))
	s.Equal(s.requester, tx.Counterparty(s.provider))
	s.Equal(id.NilParty, tx.Counterparty(id.NewParty()))
}

func (s *TransactionModelSuite) TestClone() {
	tx := s.newTx()
	s.NoError(tx.ApplyQuote(s.now))
	s.NoError(tx.ApplyCommit(EscrowRef{Key: id.EscrowKey{7}}, 100, id.NewParty(), s.now))

	cp := tx.Clone()
	cp.Escrow.Key = id.EscrowKey{9}
	s.Equal(id.EscrowKey{7}, tx.Escrow.Key, "clone must not alias the escrow ref")
}
