package domain

import (
	"errors"
	"fmt"
)

// ActionState is the lifecycle state of one optimistic like-edge mutation.
type ActionState int

const (
	ActionIdle ActionState = iota
	ActionPending
	ActionConfirmed
	ActionReconciledDuplicate
	ActionRejected
)

func (s ActionState) String() string {
	switch s {
	case ActionIdle:
		return "idle"
	case ActionPending:
		return "pending"
	case ActionConfirmed:
		return "confirmed"
	case ActionReconciledDuplicate:
		return "reconciled_duplicate"
	case ActionRejected:
		return "rejected"
	default:
		return fmt.Sprintf("ActionState(%d)", int(s))
	}
}

// Terminal reports whether no further transition is allowed from s.
func (s ActionState) Terminal() bool {
	return s == ActionConfirmed || s == ActionReconciledDuplicate || s == ActionRejected
}

var actionTransitions = map[ActionState][]ActionState{
	ActionIdle:    {ActionPending},
	ActionPending: {ActionConfirmed, ActionReconciledDuplicate, ActionRejected},
}

// ActionKind names the remote mutation an action performs.
type ActionKind string

const (
	ActionLike    ActionKind = "like"
	ActionUnlike  ActionKind = "unlike"
	ActionDismiss ActionKind = "dismiss"
)

// action tracks one in-flight mutation of a like-edge.
type action struct {
	kind      ActionKind
	listingID string
	state     ActionState
	err       error
}

func newAction(kind ActionKind, listingID string) *action {
	return &action{kind: kind, listingID: listingID, state: ActionIdle}
}

func (a *action) transition(to ActionState) error {
	for _, allowed := range actionTransitions[a.state] {
		if allowed == to {
			a.state = to
			return nil
		}
	}
	return fmt.Errorf("%s %s: invalid transition %s -> %s", a.kind, a.listingID, a.state, to)
}

// resolveInsert maps the result of a remote like-edge insert onto the
// terminal state it drives the action to.
func resolveInsert(err error) ActionState {
	switch {
	case err == nil:
		return ActionConfirmed
	case errors.Is(err, ErrDuplicateLike):
		return ActionReconciledDuplicate
	default:
		return ActionRejected
	}
}

// resolveDelete maps the result of a remote like-edge delete. Deletes have
// no benign-race error code.
func resolveDelete(err error) ActionState {
	if err == nil {
		return ActionConfirmed
	}
	return ActionRejected
}
