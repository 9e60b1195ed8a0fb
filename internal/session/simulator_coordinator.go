package session

import (
	"context"
	"time"

	"simcore/internal/rpc"
)

// handleStartSimulator implements §4.2's exactly-once start_simulator
// coordination: a request collapses onto any in-flight attempt instead of
// starting a second pod.
func (s *Session) handleStartSimulator(ctx context.Context, env Envelope) {
	payload, err := decodePayload[StartSimulatorPayload](env)
	if err != nil {
		s.Send(Envelope{Type: MsgError, RequestID: env.RequestID, Payload: ErrorPayload{Message: "bad start_simulator payload"}})
		return
	}

	var inFlight bool
	var current SimulatorCoordState
	s.do(func() {
		current = s.simState
		if current.inFlight() {
			inFlight = true
			return
		}
		s.simState = SimChecking
		current = s.simState
	})
	s.Send(Envelope{Type: MsgSimulatorStatus, RequestID: env.RequestID, Payload: SimulatorStatusPayload{Status: current}})
	if inFlight {
		return
	}

	go s.provisionSimulator(ctx, payload)
}

// provisionSimulator runs off the coordinator goroutine (it blocks on
// network calls to the orchestrator and the new pod) and reports every
// state transition back through do()/Send so mutation stays single-threaded.
func (s *Session) provisionSimulator(ctx context.Context, payload StartSimulatorPayload) {
	s.setSimState(SimCreating)

	var userID, sessionID string
	s.do(func() { userID = s.userID; sessionID = s.sessionID })

	handle, err := s.provisioner.EnsureSimulatorPod(ctx, PodRequest{
		UserID: userID, SessionID: sessionID, ExchangeID: payload.ExchangeID, Symbols: payload.Symbols,
	})
	if err != nil {
		s.failSimulator(err)
		return
	}
	s.do(func() { s.podHandle = handle; s.simulatorID = handle.PodName })
	s.setSimState(SimStarting)

	client, closeFn, err := s.dial(ctx, handle.Endpoint)
	if err != nil {
		s.failSimulator(err)
		return
	}
	s.do(func() { s.simClient = client; s.simClose = closeFn })
	s.setSimState(SimInitializing)

	if !s.pollReady(ctx, client, sessionID) {
		s.failSimulator(nil)
		return
	}

	s.setSimState(SimRunning)
	s.startStreamForwarder(ctx, payload.Symbols)
}

// pollReady polls the new pod's Heartbeat RPC until it answers OK or the
// startup timeout elapses (§4.2).
func (s *Session) pollReady(ctx context.Context, client rpc.ExchangeSimulatorClient, sessionID string) bool {
	timeout := s.cfg.StartupTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Heartbeat(ctx, &rpc.HeartbeatRequest{SessionID: sessionID, ClientTS: time.Now().UnixMilli()})
		if err == nil && resp.OK {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(200 * time.Millisecond):
		}
	}
	return false
}

// startStreamForwarder opens C1's StreamExchangeData and re-emits every
// frame to the client WS 1:1 (§4.2), until the stream context is canceled.
func (s *Session) startStreamForwarder(ctx context.Context, symbols []string) {
	streamCtx, cancel := context.WithCancel(ctx)
	var client rpc.ExchangeSimulatorClient
	s.do(func() { s.streamCancel = cancel; client = s.simClient })
	if client == nil {
		cancel()
		return
	}

	stream, err := client.StreamExchangeData(streamCtx, &rpc.StreamExchangeDataRequest{Symbols: symbols})
	if err != nil {
		s.log.Warn().Err(err).Msg("open StreamExchangeData failed")
		return
	}

	go func() {
		for {
			update, err := stream.Recv()
			if err != nil {
				if streamCtx.Err() == nil {
					s.log.Debug().Err(err).Msg("simulator stream ended")
				}
				return
			}
			s.Send(Envelope{Type: MsgExchangeData, Payload: update})
		}
	}()
}

func (s *Session) setSimState(st SimulatorCoordState) {
	s.do(func() { s.simState = st })
	s.Send(Envelope{Type: MsgSimulatorStatus, Payload: SimulatorStatusPayload{Status: st}})
}

func (s *Session) failSimulator(err error) {
	msg := "simulator did not become ready before timeout"
	if err != nil {
		msg = err.Error()
	}
	s.do(func() { s.simState = SimError })
	s.Send(Envelope{Type: MsgSimulatorStatus, Payload: SimulatorStatusPayload{Status: SimError, Error: msg}})
}
