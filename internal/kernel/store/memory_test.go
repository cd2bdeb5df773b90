package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/agirails/actp-kernel-sub001/internal/kernel/models"
	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	"github.com/agirails/actp-kernel-sub001/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *MemoryStoreSuite) newTx(b byte) *models.Transaction {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var txID id.TxID
	txID[0] = b
	tx, err := models.NewTransaction(txID, id.NewParty(), id.NewParty(), 1_000,
		now.Add(72*time.Hour), 24*time.Hour, id.Hash256{0x01}, "", now)
	s.Require().NoError(err)
	return tx
}

func (s *MemoryStoreSuite) TestCreateAndGet() {
	s.Run("round-trips a record", func() {
		tx := s.newTx(1)
		s.Require().NoError(s.store.Create(s.ctx, tx))

		got, err := s.store.Get(s.ctx, tx.ID)
		s.Require().NoError(err)
		s.Equal(tx.ID, got.ID)
		s.Equal(models.StateInitiated, got.State)
	})

	s.Run("id collision fails with already used", func() {
		err := s.store.Create(s.ctx, s.newTx(1))
		s.True(errors.Is(err, sentinel.ErrAlreadyUsed))
	})

	s.Run("unknown id is not found", func() {
		var missing id.TxID
		missing[0] = 0xFF
		_, err := s.store.Get(s.ctx, missing)
		s.True(errors.Is(err, sentinel.ErrNotFound))
	})

	s.Run("returned records do not alias the store", func() {
		tx := s.newTx(2)
		s.Require().NoError(s.store.Create(s.ctx, tx))

		got, err := s.store.Get(s.ctx, tx.ID)
		s.Require().NoError(err)
		got.State = models.StateSettled

		fresh, err := s.store.Get(s.ctx, tx.ID)
		s.Require().NoError(err)
		s.Equal(models.StateInitiated, fresh.State)
	})
}

func (s *MemoryStoreSuite) TestExecute() {
	tx := s.newTx(1)
	s.Require().NoError(s.store.Create(s.ctx, tx))

	s.Run("commits the callback's mutation", func() {
		err := s.store.Execute(s.ctx, tx.ID, func(tx *models.Transaction) error {
			return tx.ApplyQuote(time.Now())
		})
		s.Require().NoError(err)

		got, err := s.store.Get(s.ctx, tx.ID)
		s.Require().NoError(err)
		s.Equal(models.StateQuoted, got.State)
	})

	s.Run("a failing callback commits nothing", func() {
		boom := errors.New("boom")
		err := s.store.Execute(s.ctx, tx.ID, func(tx *models.Transaction) error {
			tx.State = models.StateSettled
			return boom
		})
		s.True(errors.Is(err, boom))

		got, err := s.store.Get(s.ctx, tx.ID)
		s.Require().NoError(err)
		s.Equal(models.StateQuoted, got.State)
	})

	s.Run("unknown id is not found", func() {
		var missing id.TxID
		missing[0] = 0xFF
		err := s.store.Execute(s.ctx, missing, func(tx *models.Transaction) error { return nil })
		s.True(errors.Is(err, sentinel.ErrNotFound))
	})
}

func (s *MemoryStoreSuite) TestListByParty() {
	first := s.newTx(1)
	second := s.newTx(2)
	second.Requester = first.Requester
	s.Require().NoError(s.store.Create(s.ctx, first))
	s.Require().NoError(s.store.Create(s.ctx, second))

	txs, err := s.store.ListByParty(s.ctx, first.Requester)
	s.Require().NoError(err)
	s.Len(txs, 2)

	txs, err = s.store.ListByParty(s.ctx, first.Provider)
	s.Require().NoError(err)
	s.Len(txs, 1)

	txs, err = s.store.ListByParty(s.ctx, id.NewParty())
	s.Require().NoError(err)
	s.Empty(txs)
}
