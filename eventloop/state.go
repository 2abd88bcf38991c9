package eventloop

import (
	"sync/atomic"
)

// LoopState represents the current state of the event loop.
//
// State Machine:
//
//	StateAwake → StateRunning              [Run()]
//	StateAwake → StateTerminated           [Shutdown() before Run()]
//	StateRunning → StateTerminating        [Shutdown()]
//	StateRunning → StateTerminated         [idle, or uncaught fault]
//	StateTerminating → StateTerminated     [queued work drained]
//	StateTerminated → (terminal)
type LoopState uint32

const (
	// StateAwake indicates the loop has been created but not started.
	StateAwake LoopState = iota
	// StateRunning indicates the loop is processing tasks.
	StateRunning
	// StateTerminating indicates shutdown has been requested but not completed.
	StateTerminating
	// StateTerminated indicates the loop has stopped.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// loopState is a lock-free state holder.
type loopState struct {
	v atomic.Uint32
}

func (s *loopState) Load() LoopState {
	return LoopState(s.v.Load())
}

// Store is only valid for irreversible states (Terminated).
func (s *loopState) Store(state LoopState) {
	s.v.Store(uint32(state))
}

func (s *loopState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// CanAcceptWork returns true if the loop can accept new work.
func (s *loopState) CanAcceptWork() bool {
	state := s.Load()
	return state == StateAwake || state == StateRunning
}
