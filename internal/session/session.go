// Package session owns the canonical state of every support session: its
// status, assignment and append-only message history.
package session

import (
	"errors"
	"fmt"

	"github.com/zulandar/switchboard/internal/models"
)

var (
	// ErrNotFound is returned for an unknown session id.
	ErrNotFound = errors.New("session not found")
	// ErrSessionClosed is returned when writing to a closed session.
	ErrSessionClosed = errors.New("session is closed")
	// ErrInvalidTransition is returned for a status change outside the
	// lifecycle graph.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// transitions is the lifecycle graph. closed has no outgoing edges.
var transitions = map[models.SessionStatus][]models.SessionStatus{
	models.StatusBot:     {models.StatusWaiting, models.StatusClosed},
	models.StatusWaiting: {models.StatusAgent, models.StatusClosed},
	models.StatusAgent:   {models.StatusClosed},
}

// CanTransition reports whether a session may move from one status to another.
func CanTransition(from, to models.SessionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition describes a requested status change. AssignedAgent is required
// for the agent status and ignored otherwise; Priority and Reason only apply
// when entering waiting.
type Transition struct {
	Status        models.SessionStatus
	AssignedAgent string
	Priority      models.Priority
	Reason        string
}

func (tr Transition) check(from models.SessionStatus) error {
	if !CanTransition(from, tr.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, tr.Status)
	}
	if tr.Status == models.StatusAgent && tr.AssignedAgent == "" {
		return fmt.Errorf("%w: agent status requires an assigned agent", ErrInvalidTransition)
	}
	return nil
}
