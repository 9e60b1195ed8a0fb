package session

import (
	"context"
	"encoding/json"
	"time"

	"simcore/internal/rpc"
	"simcore/pkg/apierr"
	"simcore/pkg/dbgateway"
)

// HandleMessage decodes one inbound WS frame and routes it to the matching
// handler (§4.2: "Handled on the single-threaded per-connection coordinator").
func (s *Session) HandleMessage(ctx context.Context, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.Send(Envelope{Type: MsgError, Payload: ErrorPayload{Code: string(apierr.Validation), Message: "malformed message"}})
		return
	}

	switch env.Type {
	case MsgHeartbeat:
		s.handleHeartbeat(ctx, env)
	case MsgReconnect:
		s.handleReconnect(ctx, env)
	case MsgSessionInfo:
		s.Send(Envelope{Type: MsgSessionInfo, RequestID: env.RequestID, Payload: s.Info()})
	case MsgStopSession:
		s.handleStopSession(ctx, env)
	case MsgStartSimulator:
		s.handleStartSimulator(ctx, env)
	case MsgStopSimulator:
		s.handleStopSimulator(ctx, env)
	default:
		s.Send(Envelope{Type: MsgError, RequestID: env.RequestID, Payload: ErrorPayload{Code: string(apierr.Validation), Message: "unknown message type"}})
	}
}

func decodePayload[T any](env Envelope) (T, error) {
	var out T
	b, err := json.Marshal(env.Payload)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(b, &out)
	return out, err
}

// handleHeartbeat updates connection quality (§4.2) and relays the keep-alive
// to the bound simulator; repeated C1-heartbeat failures mark the session's
// simulator lost (§2: "reverse health signal ... causes C2 to mark the
// session SIMULATOR_LOST").
func (s *Session) handleHeartbeat(ctx context.Context, env Envelope) {
	hb, err := decodePayload[HeartbeatPayload](env)
	if err != nil {
		s.Send(Envelope{Type: MsgError, RequestID: env.RequestID, Payload: ErrorPayload{Code: string(apierr.Validation), Message: "bad heartbeat payload"}})
		return
	}

	var client rpc.ExchangeSimulatorClient
	var sessionID string
	s.do(func() {
		s.details.LatencyMs = hb.LatencyMs
		s.details.MissedHeartbeats = hb.MissedHeartbeats
		s.details.Quality = quality(hb.LatencyMs, hb.MissedHeartbeats)
		s.lastActive = time.Now()
		if s.status == dbgateway.SessionReconnecting {
			s.status = dbgateway.SessionActive
		}
		client = s.simClient
		sessionID = s.sessionID
	})

	if client == nil {
		return
	}
	err = s.simBreaker.Call(func() error {
		resp, err := client.Heartbeat(ctx, &rpc.HeartbeatRequest{SessionID: sessionID, ClientTS: time.Now().UnixMilli()})
		if err != nil {
			return err
		}
		if !resp.OK {
			return apierr.New(apierr.Unavailable, "simulator heartbeat not ok")
		}
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("simulator heartbeat failed, marking SIMULATOR_LOST")
		s.Send(Envelope{Type: MsgError, Payload: ErrorPayload{Code: "SIMULATOR_LOST", Message: "simulator unreachable, reissue start_simulator"}})
		s.do(func() { s.simState = SimError })
	}
}

// handleReconnect re-attaches the same device to a session paused in
// RECONNECTING (§4.2).
func (s *Session) handleReconnect(ctx context.Context, env Envelope) {
	s.do(func() {
		s.status = dbgateway.SessionActive
		s.lastActive = time.Now()
		s.persistStatusLocked(ctx)
	})
	s.Send(Envelope{Type: MsgConnected, RequestID: env.RequestID, Payload: s.Info()})
}

// handleStopSession is the explicit-stop transition ACTIVE -> INACTIVE (§4.2).
func (s *Session) handleStopSession(ctx context.Context, env Envelope) {
	s.do(func() {
		s.status = dbgateway.SessionInactive
		s.persistStatusLocked(ctx)
		s.teardownSimulatorLocked(ctx)
		s.stopReq = true
	})
	s.Send(Envelope{Type: MsgShutdown, RequestID: env.RequestID})
}

func (s *Session) handleStopSimulator(ctx context.Context, env Envelope) {
	s.do(func() { s.teardownSimulatorLocked(ctx) })
	s.Send(Envelope{Type: MsgSimulatorStatus, RequestID: env.RequestID, Payload: SimulatorStatusPayload{Status: SimNone}})
}

// OnDisconnect marks a dropped WS as RECONNECTING, starting the grace
// countdown watched by Run's ticker (§4.2).
func (s *Session) OnDisconnect(ctx context.Context) {
	s.do(func() {
		if s.status == dbgateway.SessionActive {
			s.status = dbgateway.SessionReconnecting
			s.lastActive = time.Now()
			s.persistStatusLocked(ctx)
		}
	})
}
