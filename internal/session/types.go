// Package session implements C2: the per-(user,device) WebSocket session
// service that binds one user to one dedicated simulator pod, relays
// heartbeats, forwards the C1 gRPC stream to the client, and coordinates
// start_simulator/stop_simulator against the orchestrator.
package session

import (
	"time"

	"simcore/pkg/dbgateway"
)

// ConnectionQuality mirrors SessionDetails.quality (§3/§4.2).
type ConnectionQuality string

const (
	QualityGood     ConnectionQuality = "GOOD"
	QualityDegraded ConnectionQuality = "DEGRADED"
	QualityPoor     ConnectionQuality = "POOR"
)

// SimulatorCoordState is the start_simulator coordinator's status (§4.2).
type SimulatorCoordState string

const (
	SimNone         SimulatorCoordState = "NONE"
	SimChecking     SimulatorCoordState = "CHECKING"
	SimCreating     SimulatorCoordState = "CREATING"
	SimStarting     SimulatorCoordState = "STARTING"
	SimInitializing SimulatorCoordState = "INITIALIZING"
	SimRunning      SimulatorCoordState = "RUNNING"
	SimError        SimulatorCoordState = "ERROR"
)

// inFlight reports whether a start_simulator request should collapse onto an
// already-running attempt instead of starting a second one (§4.2: "exactly once").
func (s SimulatorCoordState) inFlight() bool {
	switch s {
	case SimChecking, SimCreating, SimStarting, SimInitializing, SimRunning:
		return true
	default:
		return false
	}
}

// DeviceInfo identifies the device bound to a session, echoed in
// connection_replaced frames (§4.2).
type DeviceInfo struct {
	DeviceID      string `json:"deviceId"`
	ConnectionType string `json:"connectionType,omitempty"`
}

// SessionDetails is derived connection-quality state, updated on every
// client heartbeat (§3).
type SessionDetails struct {
	LatencyMs        int64
	MissedHeartbeats int
	ReconnectCount   int
	Quality          ConnectionQuality
}

// quality derives ConnectionQuality from the latest heartbeat sample (§4.2):
// POOR if missed>=3 (recommend reconnect); DEGRADED if missed>0 or latency>500ms; else GOOD.
func quality(latencyMs int64, missed int) ConnectionQuality {
	switch {
	case missed >= 3:
		return QualityPoor
	case missed > 0 || latencyMs > 500:
		return QualityDegraded
	default:
		return QualityGood
	}
}

// Config parameterises one session (§6 env table).
type Config struct {
	SessionTTL       time.Duration
	ReconnectTimeout time.Duration
	StartupTimeout   time.Duration
}

// --- WebSocket wire shapes (§4.2) ---

// Envelope is the `{type, ...}` discriminated wire message every inbound/outbound
// WS frame uses.
type Envelope struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// Inbound message type discriminators.
const (
	MsgReconnect      = "reconnect"
	MsgHeartbeat      = "heartbeat"
	MsgSessionInfo    = "session_info"
	MsgStopSession    = "stop_session"
	MsgStartSimulator = "start_simulator"
	MsgStopSimulator  = "stop_simulator"
)

// Outbound message type discriminators.
const (
	MsgConnected          = "connected"
	MsgTimeout            = "timeout"
	MsgShutdown           = "shutdown"
	MsgConnectionReplaced = "connection_replaced"
	MsgError              = "error"
	MsgExchangeData       = "exchange_data"
	MsgSimulatorStatus    = "simulator_status"
)

// HeartbeatPayload is the inbound heartbeat sample (§4.2).
type HeartbeatPayload struct {
	LatencyMs        int64  `json:"latency_ms"`
	MissedHeartbeats int    `json:"missed_heartbeats"`
	ConnectionType   string `json:"connection_type"`
}

// StartSimulatorPayload requests a dedicated simulator pod for this session.
type StartSimulatorPayload struct {
	ExchangeID string   `json:"exchangeId"`
	Symbols    []string `json:"symbols"`
}

// ConnectionReplacedPayload is emitted to the displaced WS (§4.2).
type ConnectionReplacedPayload struct {
	NewDeviceInfo DeviceInfo `json:"newDeviceInfo"`
}

// ErrorPayload is the WS error frame shape (§7).
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SimulatorStatusPayload reports the start_simulator coordinator's progress.
type SimulatorStatusPayload struct {
	Status      SimulatorCoordState `json:"status"`
	SimulatorID string              `json:"simulatorId,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// SessionInfoPayload answers the session_info query.
type SessionInfoPayload struct {
	SessionID   string                   `json:"sessionId"`
	UserID      string                   `json:"userId"`
	Status      dbgateway.SessionStatus  `json:"status"`
	Details     SessionDetails           `json:"details"`
	SimState    SimulatorCoordState      `json:"simulatorState"`
	SimulatorID string                   `json:"simulatorId,omitempty"`
}
