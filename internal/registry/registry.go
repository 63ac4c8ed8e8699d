// Package registry owns the set of live sessions, one per connection id.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/matheus3301/wpphub/internal/paths"
	"github.com/matheus3301/wpphub/internal/session"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Factory builds an unconnected session for id.
type Factory func(id string) *session.Session

// Options configures a Registry.
type Options struct {
	// Root is the data directory holding connections/<id>/ credential dirs.
	Root           string
	NewSession     Factory
	RestoreStagger time.Duration
	Logger         *zap.Logger
}

// Registry maps connection ids to sessions.
type Registry struct {
	root       string
	newSession Factory
	stagger    time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
}

// New creates an empty registry.
func New(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Registry{
		root:       opts.Root,
		newSession: opts.NewSession,
		stagger:    opts.RestoreStagger,
		logger:     opts.Logger,
		sessions:   make(map[string]*session.Session),
	}
}

// Start returns the session for id, creating and connecting it if needed.
// A known id is returned unchanged. Bring-up failures are logged; the session
// stays registered and retries on its own.
func (r *Registry) Start(ctx context.Context, id string) (*session.Session, error) {
	if err := paths.ValidateID(id); err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrInvalidRequest, err)
	}

	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return s, nil
	}
	s := r.newSession(id)
	r.sessions[id] = s
	r.mu.Unlock()

	r.logger.Info("starting connection", zap.String("connection", id))
	if err := s.Connect(ctx); err != nil {
		if !errors.Is(err, session.ErrConnectionInit) {
			return s, err
		}
		r.logger.Warn("connection bring-up failed, retrying in background",
			zap.String("connection", id), zap.Error(err))
	}
	return s, nil
}

// Get returns the session registered under id.
func (r *Registry) Get(id string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// List returns live info for every session, sorted by id.
func (r *Registry) List() []session.Info {
	r.mu.Lock()
	all := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	out := make([]session.Info, 0, len(all))
	for _, s := range all {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CountByStatus tallies sessions per status.
func (r *Registry) CountByStatus() map[string]int {
	counts := make(map[string]int)
	for _, info := range r.List() {
		counts[string(info.Status)]++
	}
	return counts
}

// Disconnect logs id out, wipes its credentials and forgets it.
func (r *Registry) Disconnect(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", session.ErrUnknownConnection, id)
	}

	err := s.Destroy(ctx)
	// The session may never have opened a socket; remove whatever is on disk.
	if rmErr := os.RemoveAll(paths.AuthDir(r.root, id)); rmErr != nil {
		err = errors.Join(err, rmErr)
	}
	if err != nil {
		r.logger.Warn("disconnect", zap.String("connection", id), zap.Error(err))
		return err
	}
	r.logger.Info("connection removed", zap.String("connection", id))
	return nil
}

// DisconnectAll disconnects every session in id order. A failure does not
// stop the remaining ones; all failures are returned joined.
func (r *Registry) DisconnectAll(ctx context.Context) error {
	var errs []error
	for _, info := range r.List() {
		if err := r.Disconnect(ctx, info.ID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", info.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Reinit wipes the credentials of id and starts it again, leading to a new QR pairing.
func (r *Registry) Reinit(ctx context.Context, id string) (*session.Session, error) {
	if err := paths.ValidateID(id); err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrInvalidRequest, err)
	}
	if err := r.Disconnect(ctx, id); err != nil && !errors.Is(err, session.ErrUnknownConnection) {
		r.logger.Warn("reinit teardown", zap.String("connection", id), zap.Error(err))
	}
	if err := os.RemoveAll(paths.AuthDir(r.root, id)); err != nil {
		return nil, fmt.Errorf("remove credentials: %w", err)
	}
	return r.Start(ctx, id)
}

// RestoreAll starts every connection with persisted credentials, paced by the
// restore stagger. It returns the number of sessions started.
func (r *Registry) RestoreAll(ctx context.Context) (int, error) {
	ids, err := paths.ListPersisted(r.root)
	if err != nil {
		return 0, fmt.Errorf("list persisted connections: %w", err)
	}
	if len(ids) == 0 {
		r.logger.Info("no persisted connections to restore")
		return 0, nil
	}

	limit := rate.Inf
	if r.stagger > 0 {
		limit = rate.Every(r.stagger)
	}
	limiter := rate.NewLimiter(limit, 1)

	started := 0
	for _, id := range ids {
		if err := limiter.Wait(ctx); err != nil {
			return started, err
		}
		if _, err := r.Start(ctx, id); err != nil {
			r.logger.Warn("restore connection", zap.String("connection", id), zap.Error(err))
			continue
		}
		started++
	}
	r.logger.Info("connections restored", zap.Int("count", started))
	return started, nil
}

// Shutdown closes every session, keeping credentials for the next start.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*session.Session)
	r.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}
