package command

// State is the per-connection authentication state. Every verb declares
// which states it is legal in; a verb issued elsewhere fails with a
// StateError and leaves the state untouched.
type State int

const (
	StateAwaitingLogin State = iota
	StateAwaitingPassword
	StateRegisteringLogin
	StateRegisteringPassword
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAwaitingLogin:
		return "AWAITING_LOGIN"
	case StateAwaitingPassword:
		return "AWAITING_PASSWORD"
	case StateRegisteringLogin:
		return "REGISTERING_LOGIN"
	case StateRegisteringPassword:
		return "REGISTERING_PASSWORD"
	case StateAuthenticated:
		return "AUTHENTICATED"
	default:
		return "UNKNOWN"
	}
}
