package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"simcore/internal/authsvc"
	"simcore/internal/breaker"
	"simcore/internal/rpc"
	"simcore/internal/telemetry"
	"simcore/pkg/dbgateway"
)

// call is one unit of work executed on the session's coordinator goroutine,
// the mechanism that keeps every mutation to Session/SessionDetails
// single-threaded (§5).
type call struct {
	fn   func()
	done chan struct{}
}

// Session is C2's per-(user) coordinator: one WS connection, one simulator
// binding, one device, all mutated exclusively on Run's goroutine.
type Session struct {
	userID string

	cfg         Config
	db          dbgateway.DatabaseGateway
	auth        authsvc.Validator
	provisioner Provisioner
	dial        GRPCDialer
	tracer      *telemetry.Tracer
	metrics     *telemetry.Metrics
	log         zerolog.Logger

	calls   chan call
	stopped chan struct{}
	stopReq bool
	stopOnce sync.Once

	sessionID  string
	deviceID   string
	status     dbgateway.SessionStatus
	details    SessionDetails
	lastActive time.Time

	conn *websocket.Conn

	simState     SimulatorCoordState
	simulatorID  string
	podHandle    PodHandle
	simClient    rpc.ExchangeSimulatorClient
	simClose     func() error
	simBreaker   *breaker.Breaker
	streamCancel context.CancelFunc
}

func newSession(userID string, cfg Config, db dbgateway.DatabaseGateway, auth authsvc.Validator, provisioner Provisioner, dial GRPCDialer, tracer *telemetry.Tracer, metrics *telemetry.Metrics, log zerolog.Logger) *Session {
	return &Session{
		userID:      userID,
		cfg:         cfg,
		db:          db,
		auth:        auth,
		provisioner: provisioner,
		dial:        dial,
		tracer:      tracer,
		metrics:     metrics,
		log:         log.With().Str("user_id", userID).Logger(),
		calls:       make(chan call),
		stopped:     make(chan struct{}),
		status:      dbgateway.SessionInactive,
		simState:    SimNone,
		simBreaker:  breaker.New(),
	}
}

// do executes fn on the coordinator goroutine and blocks until it completes,
// or until the coordinator has already stopped.
func (s *Session) do(fn func()) {
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case s.calls <- c:
		<-c.done
	case <-s.stopped:
	}
}

// Run is the coordinator loop: the only goroutine that ever mutates Session/
// SessionDetails state, servicing WS dispatch and the reconnect-grace
// watchdog from one select (§5).
func (s *Session) Run(ctx context.Context) {
	grace := time.NewTicker(time.Second)
	defer grace.Stop()
	defer s.stopOnce.Do(func() { close(s.stopped) })

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-s.calls:
			c.fn()
			close(c.done)
			if s.stopReq {
				return
			}
		case <-grace.C:
			if s.checkGraceExpiry(ctx) {
				return
			}
		}
	}
}

// checkGraceExpiry transitions RECONNECTING -> INACTIVE -> EXPIRED once the
// reconnect grace period elapses (§4.2 state machine), destroying the bound
// simulator. Returns true once the coordinator should stop.
func (s *Session) checkGraceExpiry(ctx context.Context) bool {
	if s.status != dbgateway.SessionReconnecting {
		return false
	}
	if time.Since(s.lastActive) <= s.cfg.ReconnectTimeout {
		return false
	}
	s.status = dbgateway.SessionExpired
	s.log.Info().Msg("reconnect grace expired, session EXPIRED")
	s.persistStatusLocked(ctx)
	s.teardownSimulatorLocked(ctx)
	return true
}

func (s *Session) persistStatusLocked(ctx context.Context) {
	if s.db == nil || s.sessionID == "" {
		return
	}
	if err := s.db.Sessions().UpdateStatus(ctx, s.sessionID, s.status); err != nil {
		s.log.Warn().Err(err).Msg("persist session status failed")
	}
}

func (s *Session) teardownSimulatorLocked(ctx context.Context) {
	if s.streamCancel != nil {
		s.streamCancel()
		s.streamCancel = nil
	}
	if s.simClose != nil {
		_ = s.simClose()
		s.simClose = nil
	}
	if s.podHandle.PodName != "" {
		_ = s.provisioner.ReleaseSimulatorPod(ctx, s.podHandle)
		s.podHandle = PodHandle{}
	}
	s.simClient = nil
	s.simState = SimNone
	s.simulatorID = ""
}

// StatusSnapshot reads the current session status on the coordinator
// goroutine while it runs; once the coordinator has stopped the status no
// longer changes and is read directly, so an EXPIRED session reports EXPIRED
// (used by Registry.Reap's best-effort sweep).
func (s *Session) StatusSnapshot() dbgateway.SessionStatus {
	var st dbgateway.SessionStatus
	ran := false
	s.do(func() { st = s.status; ran = true })
	if !ran {
		<-s.stopped
		st = s.status
	}
	return st
}

// Attach resolves the device-binding/connection-replacement rules of §4.2
// for a freshly upgraded WebSocket and installs it as the session's
// transport. It returns the session_id assigned to this binding.
func (s *Session) Attach(ctx context.Context, deviceID string, conn *websocket.Conn) string {
	var oldConn *websocket.Conn
	var sessionID string
	var fresh bool
	var rebind bool
	s.do(func() {
		switch {
		case s.deviceID == "":
			s.deviceID = deviceID
			s.sessionID = uuid.NewString()
			s.status = dbgateway.SessionActive
			fresh = true
		case s.deviceID == deviceID:
			s.details.ReconnectCount++
			s.status = dbgateway.SessionActive
		default:
			oldConn = s.conn
			s.deviceID = deviceID
			s.status = dbgateway.SessionActive
			rebind = true
		}
		s.lastActive = time.Now()
		s.conn = conn
		sessionID = s.sessionID

		if s.db == nil {
			return
		}
		switch {
		case fresh:
			_ = s.db.Sessions().Create(ctx, dbgateway.Session{
				SessionID: s.sessionID, UserID: s.userID, DeviceID: s.deviceID, Status: s.status,
			})
		case rebind:
			_ = s.db.Sessions().BindDevice(ctx, s.sessionID, s.deviceID)
			s.persistStatusLocked(ctx)
		default:
			_ = s.db.Sessions().Touch(ctx, s.sessionID)
			s.persistStatusLocked(ctx)
		}
	})

	if oldConn != nil {
		env := Envelope{Type: MsgConnectionReplaced, Payload: ConnectionReplacedPayload{NewDeviceInfo: DeviceInfo{DeviceID: deviceID}}}
		if b, err := json.Marshal(env); err == nil {
			_ = oldConn.WriteMessage(websocket.TextMessage, b)
		}
		_ = oldConn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(4000, "connection_replaced"), time.Now().Add(time.Second))
		_ = oldConn.Close()
	}

	s.Send(Envelope{Type: MsgConnected, Payload: SessionInfoPayload{SessionID: sessionID, UserID: s.userID, Status: dbgateway.SessionActive}})
	return sessionID
}

// sendLocked writes one frame to the currently attached WS connection. Must
// only be called from the coordinator goroutine.
func (s *Session) sendLocked(env Envelope) {
	if s.conn == nil {
		return
	}
	b, err := json.Marshal(env)
	if err != nil {
		s.log.Warn().Err(err).Msg("marshal outbound frame failed")
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		s.log.Debug().Err(err).Str("type", env.Type).Msg("ws write failed")
	}
}

// Send enqueues a frame write on the coordinator goroutine.
func (s *Session) Send(env Envelope) {
	s.do(func() { s.sendLocked(env) })
}

// Info returns a snapshot of session_info (§4.2).
func (s *Session) Info() SessionInfoPayload {
	var info SessionInfoPayload
	s.do(func() {
		info = SessionInfoPayload{
			SessionID: s.sessionID, UserID: s.userID, Status: s.status,
			Details: s.details, SimState: s.simState, SimulatorID: s.simulatorID,
		}
	})
	return info
}
