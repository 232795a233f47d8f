package domain

import (
	"fmt"
	"strings"
)

// Status is the closed set of invoice lifecycle states.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusIssued    Status = "ISSUED"
	StatusSent      Status = "SENT"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

var transitions = map[Status]map[Status]struct{}{
	StatusPending:   {StatusIssued: {}, StatusCancelled: {}},
	StatusIssued:    {StatusSent: {}, StatusCancelled: {}},
	StatusSent:      {StatusPaid: {}, StatusCancelled: {}},
	StatusPaid:      {},
	StatusCancelled: {},
}

func ParseStatus(raw string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return status, nil
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Locked reports whether lines and totals are frozen.
func (s Status) Locked() bool {
	return s.Valid() && s != StatusPending
}

func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to Status) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}
