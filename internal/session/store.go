// Package session mirrors the auth provider's session of one browser context
// into a local snapshot that route protection and page rendering read.
//
// The Store is the only subscriber to the provider's change notifications.
// Sign-in and sign-out operations delegate to the provider and never touch the
// snapshot: every change arrives through the notification handler, whichever
// entry point caused it.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/KevinAiCloud/InterviewAI/internal/auth"
	"github.com/KevinAiCloud/InterviewAI/internal/logging"
	"github.com/KevinAiCloud/InterviewAI/internal/roles"
)

// ErrAlreadySubscribed is returned by a second Subscribe call.
var ErrAlreadySubscribed = errors.New("session store already subscribed")

// RoleResolver maps a principal to its role. It must not fail.
type RoleResolver interface {
	Resolve(ctx context.Context, p *auth.Principal) roles.Role
}

// State is a snapshot of the mirrored session.
type State struct {
	// Principal is nil when nobody is signed in
	Principal *auth.Principal
	// Role is roles.None until the role fetch for Principal completes
	Role roles.Role
	// Resolved is set once the provider has reported the initial session
	Resolved bool
}

// SignedIn reports whether a principal is present.
func (s State) SignedIn() bool {
	return s.Principal != nil
}

// Options configures a Store.
type Options struct {
	Logger *slog.Logger
	// RoleTimeout bounds a single role fetch (default 10s).
	RoleTimeout time.Duration
}

// Store owns the session state of one browser context.
type Store struct {
	provider    auth.Provider
	resolver    RoleResolver
	logger      *slog.Logger
	roleTimeout time.Duration

	mu         sync.Mutex
	state      State
	subscribed bool
	disposed   bool
	changed    chan struct{}
	resolved   chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	fetches sync.WaitGroup
}

// New creates a Store over provider. Call Subscribe once to start mirroring.
func New(provider auth.Provider, resolver RoleResolver, opts Options) *Store {
	s := &Store{
		provider:    provider,
		resolver:    resolver,
		logger:      logging.OrDiscard(opts.Logger),
		roleTimeout: opts.RoleTimeout,
		changed:     make(chan struct{}),
		resolved:    make(chan struct{}),
	}
	if s.roleTimeout <= 0 {
		s.roleTimeout = 10 * time.Second
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Subscribe registers the Store's handler with the provider. It succeeds once
// per Store; the returned dispose function unregisters the handler, stops
// pending role fetches from applying and may be called repeatedly.
func (s *Store) Subscribe() (dispose func(), err error) {
	s.mu.Lock()
	if s.subscribed {
		s.mu.Unlock()
		return nil, ErrAlreadySubscribed
	}
	s.subscribed = true
	s.mu.Unlock()

	unsubscribe := s.provider.OnSessionChange(s.handle)

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			s.mu.Lock()
			s.disposed = true
			s.mu.Unlock()
			s.cancel()
			s.fetches.Wait()
		})
	}, nil
}

// handle applies one provider notification. The provider delivers them one
// at a time in emission order.
func (s *Store) handle(p *auth.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}

	if p != nil {
		if s.state.Principal == nil || s.state.Principal.ID != p.ID {
			s.state.Role = roles.None
		}
		s.state.Principal = p
		s.fetchRoleLocked(p)
	} else {
		s.state.Principal = nil
		s.state.Role = roles.None
	}

	if !s.state.Resolved {
		s.state.Resolved = true
		close(s.resolved)
	}
	s.broadcastLocked()
}

// fetchRoleLocked resolves the role of p in the background. The result is
// tagged with p's ID and dropped if another principal has signed in since.
func (s *Store) fetchRoleLocked(p *auth.Principal) {
	principal := *p
	s.fetches.Add(1)
	go func() {
		defer s.fetches.Done()

		ctx, cancel := context.WithTimeout(s.ctx, s.roleTimeout)
		role := s.resolver.Resolve(ctx, &principal)
		cancel()

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.disposed {
			return
		}
		if s.state.Principal == nil || s.state.Principal.ID != principal.ID {
			s.logger.Debug("discarding stale role", "principal_id", principal.ID, "role", role)
			return
		}
		s.state.Role = role
		s.broadcastLocked()
	}()
}

func (s *Store) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Read returns the current snapshot. Before the provider's first notification
// it carries the principal the provider already knows from its local cache.
func (s *Store) Read() State {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if !state.Resolved && state.Principal == nil {
		state.Principal = s.provider.CurrentPrincipal()
	}
	if state.Principal != nil {
		p := *state.Principal
		state.Principal = &p
	}
	return state
}

// Resolved is closed once the initial session has been reported.
func (s *Store) Resolved() <-chan struct{} {
	return s.resolved
}

// Changed returns a channel closed at the next snapshot change. Take it
// before calling Read so no change between the two is missed.
func (s *Store) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// Done is closed once the store is disposed.
func (s *Store) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Await blocks until pred holds for the latest snapshot or ctx is done, in
// which case it returns the latest snapshot with the context error.
func (s *Store) Await(ctx context.Context, pred func(State) bool) (State, error) {
	for {
		changed := s.Changed()
		state := s.Read()
		if pred(state) {
			return state, nil
		}

		select {
		case <-ctx.Done():
			return s.Read(), ctx.Err()
		case <-changed:
		}
	}
}

// SignUp creates an account. The session changes through the provider's notification.
func (s *Store) SignUp(ctx context.Context, email, secret string) error {
	_, err := s.provider.CreateAccount(ctx, email, secret)
	return err
}

// SignIn signs in with email and password.
func (s *Store) SignIn(ctx context.Context, email, secret string) error {
	_, err := s.provider.Authenticate(ctx, email, secret)
	return err
}

// SignInFederated signs in with a federated provider's credential.
func (s *Store) SignInFederated(ctx context.Context, cred auth.FederatedCredential) error {
	_, err := s.provider.AuthenticateFederated(ctx, cred)
	return err
}

// SignOut ends the provider session.
func (s *Store) SignOut(ctx context.Context) error {
	return s.provider.EndSession(ctx)
}
