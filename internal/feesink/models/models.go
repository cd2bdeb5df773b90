package models

import (
	"time"

	"github.com/mr-tron/base58"

	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	dErrors "github.com/agirails/actp-kernel-sub001/pkg/domain-errors"
)

// ExternalRefLength is the exact encoded length of an external storage
// reference (a base58 content identifier).
const ExternalRefLength = 46

// WithdrawalLedger is the sink's accounting record.
//
// Invariants:
//   - DayWithdrawn ≤ the configured daily cap at all times
//   - CumulativeSpent ≤ CumulativeReceived
//   - DayWithdrawn resets exactly when the UTC calendar day advances
type WithdrawalLedger struct {
	CumulativeReceived int64
	CumulativeSpent    int64
	DayWithdrawn       int64
	// Day is the UTC calendar day the DayWithdrawn counter belongs to.
	Day string
}

// DayOf renders the UTC calendar day marker for t.
func DayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Rollover resets the daily counter when the calendar day has advanced.
func (l *WithdrawalLedger) Rollover(now time.Time) {
	if day := DayOf(now); l.Day != day {
		l.Day = day
		l.DayWithdrawn = 0
	}
}

// Available is the sink balance remaining for withdrawal.
func (l *WithdrawalLedger) Available() int64 {
	return l.CumulativeReceived - l.CumulativeSpent
}

// ArchiveRecord pins a terminal transaction to external storage. Immutable
// once set; at most one per transaction.
type ArchiveRecord struct {
	TxID        id.TxID
	ExternalRef string
	ArchivedAt  time.Time
}

// ValidateExternalRef enforces the fixed-length base58 encoding.
func ValidateExternalRef(ref string) error {
	if len(ref) != ExternalRefLength {
		return dErrors.Newf(dErrors.CodeValidation, "external reference must be %d characters", ExternalRefLength)
	}
	if _, err := base58.Decode(ref); err != nil {
		return dErrors.New(dErrors.CodeValidation, "external reference must be base58")
	}
	return nil
}
