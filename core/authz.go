package core

// Action is an operation an AuthContext may or may not be allowed to perform.
type Action string

const (
	ActionGenerateSeating Action = "seating:generate"
	ActionViewSeating     Action = "seating:view"
	ActionManageSeating   Action = "seating:manage" // delete, toggle active
	ActionViewOwnSeat     Action = "seating:view-own"

	ActionRunPrediction     Action = "prediction:run"
	ActionViewPrediction    Action = "prediction:view"
	ActionViewOwnPrediction Action = "prediction:view-own"
)

// AuthContext carries the identity and permissions of whoever triggered an operation.
type AuthContext interface {
	CanPerform(action Action) bool
	// ActorID is the ID of the acting user; 0 for system actors.
	ActorID() int
}

type systemAuth struct{}

// SystemAuth returns an AuthContext allowed to perform every action, for trusted internal callers.
func SystemAuth() AuthContext { return systemAuth{} }

func (systemAuth) CanPerform(Action) bool { return true }
func (systemAuth) ActorID() int           { return 0 }
