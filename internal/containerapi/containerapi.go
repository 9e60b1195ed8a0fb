// Package containerapi is the container-orchestrator contract of spec §4.3/§6b:
// exactly four verbs, start/stop/read/list. The real orchestrator (k8s or
// equivalent) is out of scope; this package defines the interface C3 depends
// on and an in-memory fake for local development and tests.
package containerapi

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// PodRef identifies a running pod.
type PodRef struct {
	Name string
}

// PodPhase mirrors a Kubernetes-style pod phase.
type PodPhase string

const (
	PhasePending PodPhase = "PENDING"
	PhaseRunning PodPhase = "RUNNING"
	PhaseFailed  PodPhase = "FAILED"
)

// PodStatus is the result of Read.
type PodStatus struct {
	Phase  PodPhase
	IP     string
	Ports  []int
	ExchID string // the "exch_id" label, if the spec started with one (used by C3's orphan sweep)
}

// Spec describes the pod to start, e.g. one exchange-simulator manifest.
type Spec struct {
	Labels map[string]string
	Image  string
	Env    map[string]string
}

// API is the exact four-verb contract named in spec §4.3.
type API interface {
	Start(ctx context.Context, spec Spec) (PodRef, error)
	Stop(ctx context.Context, pod PodRef) error
	Read(ctx context.Context, pod PodRef) (PodStatus, error)
	List(ctx context.Context, labelSelector map[string]string) ([]PodRef, error)
}

// InMemory is a fake implementation good enough to exercise C3's control loop
// and reconciliation logic in tests without a real container runtime.
type InMemory struct {
	mu   sync.Mutex
	pods map[string]podEntry
}

type podEntry struct {
	labels map[string]string
	status PodStatus
}

// NewInMemory creates an empty fake pod store.
func NewInMemory() *InMemory {
	return &InMemory{pods: make(map[string]podEntry)}
}

func (f *InMemory) Start(ctx context.Context, spec Spec) (PodRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := fmt.Sprintf("pod-%s", uuid.NewString()[:8])
	f.pods[name] = podEntry{
		labels: spec.Labels,
		status: PodStatus{Phase: PhaseRunning, IP: "127.0.0.1", Ports: []int{50060}, ExchID: spec.Labels["exch_id"]},
	}
	return PodRef{Name: name}, nil
}

func (f *InMemory) Stop(ctx context.Context, pod PodRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pods, pod.Name)
	return nil
}

func (f *InMemory) Read(ctx context.Context, pod PodRef) (PodStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.pods[pod.Name]
	if !ok {
		return PodStatus{}, fmt.Errorf("pod %s not found", pod.Name)
	}
	return e.status, nil
}

func (f *InMemory) List(ctx context.Context, labelSelector map[string]string) ([]PodRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []PodRef
	for name, e := range f.pods {
		if matches(e.labels, labelSelector) {
			out = append(out, PodRef{Name: name})
		}
	}
	return out, nil
}

func matches(labels, selector map[string]string) bool {
	for k, v := range selector {
		if labels[k] != v {
			return false
		}
	}
	return true
}
