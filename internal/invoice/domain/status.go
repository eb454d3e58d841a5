package domain

import "strings"

type Status string

const (
	StatusUnpaid  Status = "UNPAID"
	StatusPartial Status = "PARTIAL"
	StatusPaid    Status = "PAID"
	StatusOverdue Status = "OVERDUE"
	StatusWaived  Status = "WAIVED"
)

func ParseStatus(raw string) (Status, error) {
	switch status := Status(strings.ToUpper(strings.TrimSpace(raw))); status {
	case StatusUnpaid, StatusPartial, StatusPaid, StatusOverdue, StatusWaived:
		return status, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Settled reports whether no further payment may be taken.
func (s Status) Settled() bool {
	return s == StatusPaid || s == StatusWaived
}

// Unresolved reports whether the invoice contributes to a carried balance.
func (s Status) Unresolved() bool {
	return s == StatusUnpaid || s == StatusPartial
}
