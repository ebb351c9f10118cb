package domain

import "errors"

var (
	ErrEmptyPayload      = errors.New("empty_payload")
	ErrInvalidPayload    = errors.New("invalid_payload")
	ErrInvalidEvent      = errors.New("invalid_event")
	ErrReceiptNotFound   = errors.New("receipt_not_found")
	ErrInvalidReceiptID  = errors.New("invalid_receipt_id")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrLedgerUnavailable = errors.New("ledger_unavailable")
	ErrSinkUnavailable   = errors.New("mutation_sink_unavailable")
)
