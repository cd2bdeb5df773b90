package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
)

func TestParseParty(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseParty("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseParty("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseParty(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("round-trips a valid party", func(t *testing.T) {
		p := NewParty()
		parsed, err := ParseParty(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	})
}

func TestParseHash256(t *testing.T) {
	canonical := "0x" + strings.Repeat("ab", 32)

	t.Run("parses 0x-prefixed hex", func(t *testing.T) {
		h, err := ParseHash256(canonical)
		require.NoError(t, err)
		assert.Equal(t, canonical, h.String())
	})

	t.Run("parses bare hex", func(t *testing.T) {
		h, err := ParseHash256(strings.Repeat("ab", 32))
		require.NoError(t, err)
		assert.Equal(t, canonical, h.String())
	})

	t.Run("rejects short input", func(t *testing.T) {
		_, err := ParseHash256("0xabcd")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects non-hex digits", func(t *testing.T) {
		_, err := ParseHash256("0x" + strings.Repeat("zz", 32))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("zero value reports zero", func(t *testing.T) {
		h, err := ParseHash256("0x" + strings.Repeat("00", 32))
		require.NoError(t, err)
		assert.True(t, h.IsZero())
	})
}

func TestTypedIdentifiers(t *testing.T) {
	hexID := "0x" + strings.Repeat("cd", 32)

	t.Run("transaction id round-trips", func(t *testing.T) {
		txID, err := ParseTxID(hexID)
		require.NoError(t, err)
		assert.Equal(t, hexID, txID.String())
		assert.False(t, txID.IsZero())
	})

	t.Run("escrow key round-trips", func(t *testing.T) {
		key, err := ParseEscrowKey(hexID)
		require.NoError(t, err)
		assert.Equal(t, hexID, key.String())
	})

	t.Run("vault id round-trips", func(t *testing.T) {
		v := VaultID(NewParty())
		parsed, err := ParseVault(v.String())
		require.NoError(t, err)
		assert.Equal(t, v, parsed)
	})

	t.Run("vault id rejects nil", func(t *testing.T) {
		_, err := ParseVault(uuid.Nil.String())
		require.Error(t, err)
	})
}
