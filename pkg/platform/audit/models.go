package audit

import (
	"context"
	"time"

	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
)

// Event is emitted from domain logic to capture key protocol actions. Keep
// it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	// Actor is the party that triggered the action.
	Actor id.PartyID
	// TxID is set for transaction-scoped events.
	TxID id.TxID
	// Action is one of the AuditEvent names below.
	Action string
	// OldState/NewState record lifecycle transitions.
	OldState string
	NewState string
	// Amount is the value moved, for settlement/refund/withdrawal events.
	Amount int64
	// Reason carries the failure or policy note where relevant.
	Reason string
	// RequestID is the correlation ID from the request context.
	RequestID string
}

type AuditEvent string

const (
	// Transaction lifecycle events
	EventTxCreated         AuditEvent = "tx_created"
	EventTxQuoted          AuditEvent = "tx_quoted"
	EventTxCommitted       AuditEvent = "tx_committed"
	EventTxStarted         AuditEvent = "tx_started"
	EventTxDelivered       AuditEvent = "tx_delivered"
	EventTxSettled         AuditEvent = "tx_settled"
	EventTxDisputed        AuditEvent = "tx_disputed"
	EventTxResolved        AuditEvent = "tx_resolved"
	EventTxCancelled       AuditEvent = "tx_cancelled"
	EventTxCancelRequested AuditEvent = "tx_cancel_requested"
	EventEscrowLinked      AuditEvent = "escrow_linked"
	EventEscrowRelease     AuditEvent = "escrow_released"
	EventEscrowRefund      AuditEvent = "escrow_refunded"

	// Governance events
	EventAuthorityProposed AuditEvent = "authority_proposed"
	EventAuthorityAccepted AuditEvent = "authority_accepted"
	EventPauserChanged     AuditEvent = "pauser_changed"
	EventKernelPaused      AuditEvent = "kernel_paused"
	EventKernelUnpaused    AuditEvent = "kernel_unpaused"
	EventVaultApproved     AuditEvent = "vault_approved"
	EventVaultRevoked      AuditEvent = "vault_revoked"
	EventMediatorProposed  AuditEvent = "mediator_proposed"
	EventMediatorActivated AuditEvent = "mediator_activated"
	EventMediatorRevoked   AuditEvent = "mediator_revoked"
	EventFeeConfigChanged  AuditEvent = "fee_config_changed"

	// Fee sink events
	EventFundsReceived   AuditEvent = "funds_received"
	EventFundsWithdrawn  AuditEvent = "funds_withdrawn"
	EventRecordAnchored  AuditEvent = "record_anchored"
	EventOperatorChanged AuditEvent = "operator_changed"

	// Identity registry events
	EventOwnerChanged     AuditEvent = "identity_owner_changed"
	EventDelegateAdded    AuditEvent = "identity_delegate_added"
	EventDelegateRevoked  AuditEvent = "identity_delegate_revoked"
	EventAttributeSet     AuditEvent = "identity_attribute_set"
	EventAttributeRevoked AuditEvent = "identity_attribute_revoked"
)

// Store persists audit events. Implementations: in-memory (tests, single
// node) and Kafka-backed (durable pipeline).
type Store interface {
	Append(ctx context.Context, event Event) error
}
