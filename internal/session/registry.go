package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"simcore/internal/authsvc"
	"simcore/internal/telemetry"
	"simcore/pkg/dbgateway"
)

// Registry is the per-process session map keyed by user_id, mirroring the
// teacher's idle-map-with-lastSeen idiom (risk.MultiUserManager): at most one
// live Session per user is the invariant this type exists to enforce (§8).
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	lastSeen map[string]time.Time

	cfg         Config
	db          dbgateway.DatabaseGateway
	auth        authsvc.Validator
	provisioner Provisioner
	dial        GRPCDialer
	tracer      *telemetry.Tracer
	metrics     *telemetry.Metrics
	log         zerolog.Logger
}

// NewRegistry builds an empty session registry.
func NewRegistry(cfg Config, db dbgateway.DatabaseGateway, auth authsvc.Validator, provisioner Provisioner, dial GRPCDialer, tracer *telemetry.Tracer, metrics *telemetry.Metrics, log zerolog.Logger) *Registry {
	if dial == nil {
		dial = DialInsecure
	}
	return &Registry{
		sessions:    make(map[string]*Session),
		lastSeen:    make(map[string]time.Time),
		cfg:         cfg,
		db:          db,
		auth:        auth,
		provisioner: provisioner,
		dial:        dial,
		tracer:      tracer,
		metrics:     metrics,
		log:         log,
	}
}

// GetOrCreate returns the live Session for userID, starting its coordinator
// goroutine the first time it is requested.
func (r *Registry) GetOrCreate(ctx context.Context, userID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[userID]; ok {
		r.lastSeen[userID] = time.Now()
		return s
	}

	s := newSession(userID, r.cfg, r.db, r.auth, r.provisioner, r.dial, r.tracer, r.metrics, r.log)
	r.sessions[userID] = s
	r.lastSeen[userID] = time.Now()
	go s.Run(ctx)
	return s
}

// Get returns the existing session for userID without creating one.
func (r *Registry) Get(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Remove drops userID's session from the registry (called once its
// coordinator reaches EXPIRED).
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
	delete(r.lastSeen, userID)
}

// Count reports the number of tracked sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Reap periodically removes sessions that reached EXPIRED, freeing the map
// entry so a later login starts clean. It runs until ctx is canceled.
func (r *Registry) Reap(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var expired []string
			r.mu.RLock()
			for userID, s := range r.sessions {
				if s.StatusSnapshot() == dbgateway.SessionExpired {
					expired = append(expired, userID)
				}
			}
			r.mu.RUnlock()
			for _, userID := range expired {
				r.Remove(userID)
				r.log.Debug().Str("user_id", userID).Msg("reaped expired session")
			}
		}
	}
}
