package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"simcore/internal/rpc"
	"simcore/pkg/apierr"
)

const (
	domainOrder      = "order"
	domainConviction = "conviction"
)

// withUserLock acquires the per-user lease for the duration of fn, replying
// 503 on a lock miss (§4.4/§7: "Lock busy -> 503").
func (s *Server) withUserLock(c *gin.Context, userID string, fn func()) {
	token := uuid.NewString()
	if !s.locks.Acquire(userID, token) {
		s.fail(c, apierr.New(apierr.Unavailable, "another mutation is in progress for this user"))
		return
	}
	defer s.locks.Release(userID, token)
	fn()
}

func (s *Server) dialSimulator(ctx context.Context, userID string) (rpc.ExchangeSimulatorClient, func() error, error) {
	endpoint, err := s.resolveSimulatorEndpoint(ctx, userID)
	if err != nil {
		return nil, nil, apierr.Wrap(apierr.NotFound, "no running simulator for user", err)
	}
	client, closeFn, err := s.dial(ctx, endpoint)
	if err != nil {
		return nil, nil, apierr.Wrap(apierr.Unavailable, "dial simulator failed", err)
	}
	return client, closeFn, nil
}

func (s *Server) submitOrders(c *gin.Context) {
	var req SubmitOrdersRequest
	if err := c.BindJSON(&req); err != nil {
		s.fail(c, apierr.New(apierr.Validation, "invalid request payload"))
		return
	}
	if len(req.Orders) > s.cfg.BatchCap {
		s.fail(c, apierr.New(apierr.Validation, fmt.Sprintf("batch exceeds cap of %d", s.cfg.BatchCap)))
		return
	}

	userID := currentUserID(c)
	ctx := c.Request.Context()

	s.withUserLock(c, userID, func() {
		client, closeFn, err := s.dialSimulator(ctx, userID)
		if err != nil {
			s.fail(c, err)
			return
		}
		defer closeFn()

		results := make([]ItemResult, len(req.Orders))
		for i, o := range req.Orders {
			if o.RequestID != "" {
				if cached, ok := s.idempo.Get(userID, o.RequestID, domainOrder); ok {
					var r ItemResult
					_ = json.Unmarshal([]byte(cached), &r)
					results[i] = r
					continue
				}
			}

			resp, err := client.SubmitOrder(ctx, &rpc.SubmitOrderRequest{
				Symbol: o.Symbol, Side: o.Side, Type: o.Type, Quantity: o.Quantity, Price: o.Price, RequestID: o.RequestID,
			})
			var r ItemResult
			if err != nil {
				r = ItemResult{Success: false, Error: err.Error()}
			} else {
				r = ItemResult{Success: resp.Success, OrderID: resp.OrderID, Error: resp.Error}
			}
			results[i] = r

			if o.RequestID != "" {
				if b, err := json.Marshal(r); err == nil {
					s.idempo.Put(userID, o.RequestID, domainOrder, string(b))
				}
			}
		}
		c.JSON(200, BatchResponse{Results: results})
	})
}

func (s *Server) cancelOrders(c *gin.Context) {
	var req CancelOrdersRequest
	if err := c.BindJSON(&req); err != nil {
		s.fail(c, apierr.New(apierr.Validation, "invalid request payload"))
		return
	}
	if len(req.OrderIDs) > s.cfg.BatchCap {
		s.fail(c, apierr.New(apierr.Validation, fmt.Sprintf("batch exceeds cap of %d", s.cfg.BatchCap)))
		return
	}

	userID := currentUserID(c)
	ctx := c.Request.Context()

	s.withUserLock(c, userID, func() {
		client, closeFn, err := s.dialSimulator(ctx, userID)
		if err != nil {
			s.fail(c, err)
			return
		}
		defer closeFn()

		results := make([]ItemResult, len(req.OrderIDs))
		for i, id := range req.OrderIDs {
			resp, err := client.CancelOrder(ctx, &rpc.CancelOrderRequest{OrderID: id})
			if err != nil {
				results[i] = ItemResult{Success: false, Error: err.Error()}
				continue
			}
			results[i] = ItemResult{Success: resp.Success, Error: resp.Error}
		}
		c.JSON(200, BatchResponse{Results: results})
	})
}

func (s *Server) submitConvictions(c *gin.Context) {
	var req SubmitConvictionsRequest
	if err := c.BindJSON(&req); err != nil {
		s.fail(c, apierr.New(apierr.Validation, "invalid request payload"))
		return
	}
	if len(req.Convictions) > s.cfg.BatchCap {
		s.fail(c, apierr.New(apierr.Validation, fmt.Sprintf("batch exceeds cap of %d", s.cfg.BatchCap)))
		return
	}

	userID := currentUserID(c)
	ctx := c.Request.Context()

	s.withUserLock(c, userID, func() {
		client, closeFn, err := s.dialSimulator(ctx, userID)
		if err != nil {
			s.fail(c, err)
			return
		}
		defer closeFn()

		wire := make([]rpc.ConvictionInput, len(req.Convictions))
		for i, conv := range req.Convictions {
			wire[i] = rpc.ConvictionInput{
				Symbol: conv.Symbol, TargetWeight: conv.TargetWeight, TargetNotional: conv.TargetNotional,
				Score: conv.Score, Urgency: conv.Urgency, RequestID: conv.RequestID,
			}
		}

		resp, err := client.SubmitConviction(ctx, &rpc.SubmitConvictionRequest{Convictions: wire})
		if err != nil {
			s.fail(c, apierr.Wrap(apierr.Unavailable, "submit conviction failed", err))
			return
		}

		results := make([]ConvictionItemResult, len(resp.Results))
		for i, r := range resp.Results {
			results[i] = ConvictionItemResult{Symbol: r.Symbol, OrderIDs: r.OrderIDs, Success: r.Success, Error: r.Error}
		}
		c.JSON(200, ConvictionBatchResponse{Results: results, DecisionLog: resp.DecisionLog})
	})
}

// cancelConvictions cancels the orders a prior conviction produced. Convictions
// never carry their own identity downstream of C1 (SubmitConviction returns
// order_ids, not a conviction id), so "convictionIds" here are the order ids a
// client received back from submitConvictions.
func (s *Server) cancelConvictions(c *gin.Context) {
	var req CancelConvictionsRequest
	if err := c.BindJSON(&req); err != nil {
		s.fail(c, apierr.New(apierr.Validation, "invalid request payload"))
		return
	}
	if len(req.ConvictionIDs) > s.cfg.BatchCap {
		s.fail(c, apierr.New(apierr.Validation, fmt.Sprintf("batch exceeds cap of %d", s.cfg.BatchCap)))
		return
	}

	userID := currentUserID(c)
	ctx := c.Request.Context()

	s.withUserLock(c, userID, func() {
		client, closeFn, err := s.dialSimulator(ctx, userID)
		if err != nil {
			s.fail(c, err)
			return
		}
		defer closeFn()

		results := make([]ItemResult, len(req.ConvictionIDs))
		for i, id := range req.ConvictionIDs {
			resp, err := client.CancelOrder(ctx, &rpc.CancelOrderRequest{OrderID: id})
			if err != nil {
				results[i] = ItemResult{Success: false, Error: err.Error()}
				continue
			}
			results[i] = ItemResult{Success: resp.Success, Error: resp.Error}
		}
		c.JSON(200, BatchResponse{Results: results})
	})
}
