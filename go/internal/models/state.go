package models

// State is a participant's current interaction state, derived from stored facts.
type State string

const (
	StateLobby    State = "lobby"
	StateDecide   State = "decide"
	StateAwaiting State = "awaiting"
	StateReveal   State = "reveal"
	StateFeedback State = "feedback"
	StateFinished State = "finished"
)

// AllStates lists every state in life-cycle order.
var AllStates = []State{
	StateLobby,
	StateDecide,
	StateAwaiting,
	StateReveal,
	StateFeedback,
	StateFinished,
}
