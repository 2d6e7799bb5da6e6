package refresh

// State is the refresh worker's lifecycle state (spec.md §4.4): a freshly
// built worker starts in Init, dials out to Connecting, alternates between
// Active (ticking normally) and Reconnecting (a tick's fetch failed and the
// next tick must re-establish the session first), and ends in Stopped once
// Stop is called.
type State string

const (
	StateInit         State = "INIT"
	StateConnecting   State = "CONNECTING"
	StateActive       State = "ACTIVE"
	StateReconnecting State = "RECONNECTING"
	StateStopped      State = "STOPPED"
)
