package service

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/sha3"

	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
)

// idGenerator derives transaction ids from the creation parameters plus a
// monotonically incorporated nonce, so two identical create calls still get
// distinct ids. The kernel instance identity is part of the preimage, which
// keeps ids from colliding across deployments.
type idGenerator struct {
	instance id.PartyID
	nonce    atomic.Uint64
}

func newIDGenerator(instance id.PartyID) *idGenerator {
	return &idGenerator{instance: instance}
}

func (g *idGenerator) next(requester, provider id.PartyID, amount int64, deadline time.Time, serviceHash id.Hash256) id.TxID {
	nonce := g.nonce.Add(1)

	h := sha3.New256()
	instanceUUID := [16]byte(g.instance)
	requesterUUID := [16]byte(requester)
	providerUUID := [16]byte(provider)
	h.Write(instanceUUID[:])
	h.Write(requesterUUID[:])
	h.Write(providerUUID[:])

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(amount))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(deadline.UnixNano()))
	h.Write(buf[:])
	h.Write(serviceHash[:])

	var out id.TxID
	copy(out[:], h.Sum(nil))
	return out
}
