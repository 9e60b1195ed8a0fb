package session

import (
	"context"
	"fmt"
	"time"

	"simcore/internal/containerapi"
)

// containerProvisioner adapts containerapi.API to the Provisioner contract C2
// depends on. The spec names no separate session-to-orchestrator RPC: C3's
// external contract is exactly the four container-API verbs of §4.3/§6, so a
// session asking "for a pod" is, concretely, a direct Start/Read/Stop against
// that same API rather than a round trip through another process.
type containerProvisioner struct {
	pods      containerapi.API
	image     string
	pollEvery time.Duration
	pollFor   time.Duration
}

// NewContainerProvisioner builds a Provisioner that starts one pod per
// session request and polls it until RUNNING (or pollFor elapses).
func NewContainerProvisioner(pods containerapi.API, image string) Provisioner {
	return &containerProvisioner{pods: pods, image: image, pollEvery: 200 * time.Millisecond, pollFor: 30 * time.Second}
}

func (p *containerProvisioner) EnsureSimulatorPod(ctx context.Context, req PodRequest) (PodHandle, error) {
	spec := containerapi.Spec{
		Image: p.image,
		Labels: map[string]string{
			"user_id":    req.UserID,
			"session_id": req.SessionID,
			"exch_id":    req.ExchangeID,
		},
		Env: map[string]string{
			"SESSION_ID": req.SessionID,
			"USER_ID":    req.UserID,
			"SYMBOLS":    joinSymbols(req.Symbols),
		},
	}

	ref, err := p.pods.Start(ctx, spec)
	if err != nil {
		return PodHandle{}, fmt.Errorf("start simulator pod: %w", err)
	}

	deadline := time.Now().Add(p.pollFor)
	for {
		status, err := p.pods.Read(ctx, ref)
		if err == nil && status.Phase == containerapi.PhaseRunning && len(status.Ports) > 0 {
			return PodHandle{PodName: ref.Name, Endpoint: fmt.Sprintf("%s:%d", status.IP, status.Ports[0])}, nil
		}
		if time.Now().After(deadline) {
			return PodHandle{}, fmt.Errorf("simulator pod %s did not reach RUNNING in time", ref.Name)
		}
		select {
		case <-ctx.Done():
			return PodHandle{}, ctx.Err()
		case <-time.After(p.pollEvery):
		}
	}
}

func (p *containerProvisioner) ReleaseSimulatorPod(ctx context.Context, pod PodHandle) error {
	return p.pods.Stop(ctx, containerapi.PodRef{Name: pod.PodName})
}

func joinSymbols(symbols []string) string {
	out := ""
	for i, s := range symbols {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
