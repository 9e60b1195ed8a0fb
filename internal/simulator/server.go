package simulator

import (
	"context"

	"simcore/internal/rpc"
	"simcore/pkg/apierr"
	"simcore/pkg/dbgateway"
)

// Server adapts one Engine to the rpc.ExchangeSimulatorServer contract.
type Server struct {
	engine *Engine
}

// NewServer wraps engine for registration against a *grpc.Server.
func NewServer(engine *Engine) *Server {
	return &Server{engine: engine}
}

func (s *Server) Heartbeat(ctx context.Context, req *rpc.HeartbeatRequest) (*rpc.HeartbeatResponse, error) {
	ok, serverTS := s.engine.Heartbeat(req.ClientTS)
	return &rpc.HeartbeatResponse{OK: ok, ServerTS: serverTS}, nil
}

func (s *Server) StreamExchangeData(req *rpc.StreamExchangeDataRequest, stream rpc.ExchangeSimulator_StreamExchangeDataServer) error {
	ch, unsub, err := s.engine.Subscribe()
	if err != nil {
		return err
	}
	defer unsub()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.engine.Terminated():
			return apierr.New(apierr.Unavailable, "simulator terminated: "+s.engine.TerminationReason())
		case update, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.Send(update); err != nil {
				return err
			}
		}
	}
}

func (s *Server) SubmitOrder(ctx context.Context, req *rpc.SubmitOrderRequest) (*rpc.SubmitOrderResponse, error) {
	result := s.engine.SubmitOrder(ctx, SubmitOrderInput{
		Symbol:    req.Symbol,
		Side:      dbgateway.OrderSide(req.Side),
		Type:      dbgateway.OrderType(req.Type),
		Quantity:  req.Quantity,
		Price:     req.Price,
		RequestID: req.RequestID,
	})
	return &rpc.SubmitOrderResponse{Success: result.Success, OrderID: result.OrderID, Error: result.Error}, nil
}

func (s *Server) CancelOrder(ctx context.Context, req *rpc.CancelOrderRequest) (*rpc.CancelOrderResponse, error) {
	ok, errMsg := s.engine.CancelOrder(ctx, req.OrderID)
	return &rpc.CancelOrderResponse{Success: ok, Error: errMsg}, nil
}

func (s *Server) SubmitConviction(ctx context.Context, req *rpc.SubmitConvictionRequest) (*rpc.SubmitConvictionResponse, error) {
	in := make([]ConvictionInput, 0, len(req.Convictions))
	for _, c := range req.Convictions {
		in = append(in, ConvictionInput{
			Symbol:         c.Symbol,
			TargetWeight:   c.TargetWeight,
			TargetNotional: c.TargetNotional,
			Score:          c.Score,
			Urgency:        Urgency(c.Urgency),
			RequestID:      c.RequestID,
		})
	}
	results, log := s.engine.SubmitConviction(ctx, in)

	resp := &rpc.SubmitConvictionResponse{}
	for _, r := range results {
		resp.Results = append(resp.Results, rpc.ConvictionResult{
			Symbol: r.Symbol, OrderIDs: r.OrderIDs, Success: r.Success, Error: r.Error,
		})
	}
	for _, l := range log {
		resp.DecisionLog = append(resp.DecisionLog, l.Stage+": "+l.Symbol+": "+l.Message)
	}
	return resp, nil
}

var _ rpc.ExchangeSimulatorServer = (*Server)(nil)
