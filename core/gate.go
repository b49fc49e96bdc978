package core

// GateKind enumerates the reasons the orchestration machine can pause a
// thread while waiting for external input.
type GateKind string

const (
	// GateAuthRequired pauses the thread until the user authenticates.
	GateAuthRequired GateKind = "auth_required"
	// GateConfigRequired pauses the thread until a missing preference is
	// supplied.
	GateConfigRequired GateKind = "config_required"
)

// Gate records why a thread is paused and, for configuration gates, which
// preference key is missing. A nil *Gate on ConversationState means the
// machine is not paused.
type Gate struct {
	Kind GateKind `json:"kind"`
	// Missing names the preference key awaited by a config gate; empty for
	// auth gates.
	Missing string `json:"missing,omitempty"`
}
