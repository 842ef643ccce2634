package tui

import "github.com/hpungsan/tabula/internal/review"

// StateMsg carries a published session snapshot.
type StateMsg struct {
	State review.State
}

// SessionClosedMsg is sent when the state subscription ends.
type SessionClosedMsg struct{}

// ConsentAnsweredMsg carries the outcome of answering a pending consent.
type ConsentAnsweredMsg struct {
	Err error
}

// ClearErrorMsg clears the error bar after a timeout.
type ClearErrorMsg struct{}
