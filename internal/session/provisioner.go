package session

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"simcore/internal/rpc"
)

// PodRequest is what a session asks its Provisioner to start. ExchangeID is
// carried onto the pod as its exch_id label; nothing gates the request
// against market hours. The resulting pod is dedicated to one
// (user_id, session_id) per §3's Simulator invariant.
type PodRequest struct {
	UserID     string
	SessionID  string
	ExchangeID string
	Symbols    []string
}

// PodHandle is what the Provisioner hands back once the pod is started.
type PodHandle struct {
	PodName  string
	Endpoint string
}

// Provisioner is the narrow interface session coordinators depend on to
// request and tear down a dedicated simulator pod, keeping C2 decoupled from
// C3's internal container-API plumbing (§9: "unidirectional, narrow interface").
type Provisioner interface {
	EnsureSimulatorPod(ctx context.Context, req PodRequest) (PodHandle, error)
	ReleaseSimulatorPod(ctx context.Context, pod PodHandle) error
}

// GRPCDialer dials a simulator pod's endpoint and returns a ready client,
// reused for both the initial readiness poll and the long-lived stream.
type GRPCDialer func(ctx context.Context, endpoint string) (rpc.ExchangeSimulatorClient, func() error, error)

// DialInsecure is the platform's default GRPCDialer: plaintext gRPC, suitable
// for pods reachable only inside the cluster network.
func DialInsecure(ctx context.Context, endpoint string) (rpc.ExchangeSimulatorClient, func() error, error) {
	cc, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial simulator %s: %w", endpoint, err)
	}
	return rpc.NewExchangeSimulatorClient(cc), cc.Close, nil
}

// inMemoryProvisioner is a local-development/test fake good enough to
// exercise the exactly-once start_simulator coordination without starting a
// pod. Production wiring (cmd/session) uses NewContainerProvisioner instead.
type inMemoryProvisioner struct {
	mu   sync.Mutex
	next func(req PodRequest) (PodHandle, error)
}

// NewInMemoryProvisioner builds a fake Provisioner whose pod handles are
// produced by fn, letting tests control success/failure/latency per call.
func NewInMemoryProvisioner(fn func(req PodRequest) (PodHandle, error)) Provisioner {
	return &inMemoryProvisioner{next: fn}
}

func (p *inMemoryProvisioner) EnsureSimulatorPod(ctx context.Context, req PodRequest) (PodHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next(req)
}

func (p *inMemoryProvisioner) ReleaseSimulatorPod(ctx context.Context, pod PodHandle) error {
	return nil
}
