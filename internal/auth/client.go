package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/KevinAiCloud/InterviewAI/internal/logging"
)

// Persister stores the credential of one client between server restarts.
type Persister interface {
	// Load returns the stored credential, or nil when there is none.
	Load(ctx context.Context) (*Credential, error)
	Save(ctx context.Context, cred *Credential) error
	Clear(ctx context.Context) error
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Persister Persister
	Logger    *slog.Logger

	// Verifier checks a hydrated ID token before it is trusted. A token it
	// rejects must be replaced by a refresh or the session is dropped.
	Verifier TokenVerifier

	// RefreshSkew refreshes ID tokens this long before they expire (default 5m).
	RefreshSkew time.Duration

	// RetryInterval is the wait before retrying a refresh that failed because
	// the provider was unreachable (default 30s).
	RetryInterval time.Duration

	// CallTimeout bounds background provider calls (default 10s).
	CallTimeout time.Duration

	Now func() time.Time
}

type handlerEntry struct {
	id uint64
	fn func(*Principal)
}

type delivery struct {
	principal *Principal
	target    uint64 // 0 delivers to every registered handler
}

// Client is the provider session of one browser context. It mirrors what a
// client-side auth SDK does: it hydrates a cached credential, verifies it in
// the background, keeps the ID token fresh, and notifies registered handlers
// of each session change in order from a single dispatcher goroutine.
type Client struct {
	api       AccountAPI
	persister Persister
	verifier  TokenVerifier
	logger    *slog.Logger
	skew      time.Duration
	retry     time.Duration
	timeout   time.Duration
	now       func() time.Time

	mu          sync.Mutex
	cred        *Credential
	gen         uint64
	started     bool
	initialized bool
	closed      bool
	handlers    []handlerEntry
	nextID      uint64
	queue       []delivery

	persistMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	rearm  chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

var _ Provider = (*Client)(nil)

// NewClient creates a client and starts its dispatcher. Call Start to load
// the persisted session and Close to release the goroutines.
func NewClient(api AccountAPI, opts ClientOptions) *Client {
	c := &Client{
		api:       api,
		persister: opts.Persister,
		verifier:  opts.Verifier,
		logger:    logging.OrDiscard(opts.Logger),
		skew:      opts.RefreshSkew,
		retry:     opts.RetryInterval,
		timeout:   opts.CallTimeout,
		now:       opts.Now,
		wake:      make(chan struct{}, 1),
		rearm:     make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	if c.skew <= 0 {
		c.skew = 5 * time.Minute
	}
	if c.retry <= 0 {
		c.retry = 30 * time.Second
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.wg.Add(2)
	go c.dispatch()
	go c.keepFresh()
	return c
}

// Start hydrates the persisted credential synchronously, so CurrentPrincipal
// answers optimistically, then verifies it in the background and emits the
// initial session notification. Calls after the first are ignored.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	var cached *Credential
	if c.persister != nil {
		loaded, err := c.persister.Load(ctx)
		if err != nil {
			logging.Error(ctx, c.logger, "load persisted session", err)
		}
		cached = loaded
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.gen == 0 && cached != nil {
		c.cred = cached
	}
	gen := c.gen
	c.wg.Add(1)
	go c.verify(gen, cached)
}

func (c *Client) verify(gen uint64, cached *Credential) {
	defer c.wg.Done()

	verified := cached
	untrusted := cached != nil && !cached.Expired(c.now(), c.skew) && !c.tokenTrusted(cached)
	if cached != nil && (untrusted || cached.Expired(c.now(), c.skew)) {
		ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
		fresh, err := c.api.Refresh(ctx, cached.RefreshToken)
		cancel()
		switch {
		case err == nil:
			verified = mergeRefreshed(cached, fresh)
		case ErrorCode(err) == CodeSessionExpired:
			c.logger.Info("persisted session expired", "principal_id", cached.Principal.ID)
			verified = nil
		case untrusted:
			logging.Error(c.ctx, c.logger, "replace rejected id token", err)
			verified = nil
		default:
			// Keep the cached session while the provider is unreachable;
			// the refresher retries.
			logging.Error(c.ctx, c.logger, "verify persisted session", err)
		}
	}

	c.mu.Lock()
	if c.closed || c.gen != gen {
		// A sign-in or sign-out already established the session state.
		c.mu.Unlock()
		return
	}
	c.cred = verified
	c.initialized = true
	c.enqueueLocked(principalOf(verified), 0)
	c.mu.Unlock()

	if verified != cached {
		c.persist(c.ctx)
	}
	c.kick()
}

// tokenTrusted reports whether the verifier accepts the cached ID token for
// the cached principal. Without a verifier every token is trusted.
func (c *Client) tokenTrusted(cached *Credential) bool {
	if c.verifier == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()
	p, err := c.verifier.VerifyIDToken(ctx, cached.IDToken)
	if err != nil {
		logging.Error(c.ctx, c.logger, "verify persisted id token", err)
		return false
	}
	if p.ID != cached.Principal.ID {
		c.logger.Warn("persisted id token names another principal", "principal_id", cached.Principal.ID)
		return false
	}
	return true
}

// CreateAccount creates an account and makes it the current session.
func (c *Client) CreateAccount(ctx context.Context, email, secret string) (*Principal, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	cred, err := c.api.SignUp(ctx, email, secret)
	if err != nil {
		return nil, err
	}
	return c.establish(ctx, cred)
}

// Authenticate signs in with email and password.
func (c *Client) Authenticate(ctx context.Context, email, secret string) (*Principal, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	cred, err := c.api.SignInWithPassword(ctx, email, secret)
	if err != nil {
		return nil, err
	}
	return c.establish(ctx, cred)
}

// AuthenticateFederated signs in with a federated identity provider's ID token.
func (c *Client) AuthenticateFederated(ctx context.Context, fc FederatedCredential) (*Principal, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	cred, err := c.api.SignInWithIdP(ctx, fc)
	if err != nil {
		return nil, err
	}
	return c.establish(ctx, cred)
}

// EndSession signs out. Signing out without a session changes nothing.
func (c *Client) EndSession(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return oops.Code(CodeClientClosed).Errorf("auth client closed")
	}
	if c.cred == nil && c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.cred = nil
	c.gen++
	c.initialized = true
	c.enqueueLocked(nil, 0)
	c.mu.Unlock()

	c.persist(ctx)
	c.kick()
	return nil
}

// OnSessionChange implements Provider.
func (c *Client) OnSessionChange(handler func(*Principal)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}

	c.nextID++
	id := c.nextID
	c.handlers = append(c.handlers, handlerEntry{id: id, fn: handler})
	if c.initialized {
		c.enqueueLocked(principalOf(c.cred), id)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, h := range c.handlers {
				if h.id == id {
					c.handlers = append(c.handlers[:i:i], c.handlers[i+1:]...)
					break
				}
			}
		})
	}
}

// CurrentPrincipal implements Provider.
func (c *Client) CurrentPrincipal() *Principal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return principalOf(c.cred)
}

// Close stops the client's goroutines. Registered handlers receive nothing further.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.handlers = nil
	c.queue = nil
	c.mu.Unlock()

	c.cancel()
	close(c.done)
	c.wg.Wait()
}

func (c *Client) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return oops.Code(CodeClientClosed).Errorf("auth client closed")
	}
	return nil
}

func (c *Client) establish(ctx context.Context, cred *Credential) (*Principal, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, oops.Code(CodeClientClosed).Errorf("auth client closed")
	}
	c.cred = cred
	c.gen++
	c.initialized = true
	c.enqueueLocked(principalOf(cred), 0)
	c.mu.Unlock()

	c.persist(ctx)
	c.kick()
	return principalOf(cred), nil
}

// persist writes whatever credential is current, so concurrent changes
// cannot leave an older one stored.
func (c *Client) persist(ctx context.Context) {
	if c.persister == nil {
		return
	}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	cred := c.cred
	c.mu.Unlock()

	var err error
	if cred == nil {
		err = c.persister.Clear(ctx)
	} else {
		err = c.persister.Save(ctx, cred)
	}
	if err != nil {
		logging.Error(ctx, c.logger, "persist session", err)
	}
}

func (c *Client) enqueueLocked(p *Principal, target uint64) {
	c.queue = append(c.queue, delivery{principal: p, target: target})
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client) kick() {
	select {
	case c.rearm <- struct{}{}:
	default:
	}
}

func (c *Client) dispatch() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}

		for {
			c.mu.Lock()
			if c.closed || len(c.queue) == 0 {
				c.mu.Unlock()
				break
			}
			d := c.queue[0]
			c.queue = c.queue[1:]
			var targets []func(*Principal)
			for _, h := range c.handlers {
				if d.target == 0 || d.target == h.id {
					targets = append(targets, h.fn)
				}
			}
			c.mu.Unlock()

			for _, fn := range targets {
				fn(clonePrincipal(d.principal))
			}
		}
	}
}

// keepFresh refreshes the ID token before it expires. A rejected refresh
// token ends the session.
func (c *Client) keepFresh() {
	defer c.wg.Done()
	var minWait time.Duration
	for {
		c.mu.Lock()
		cred := c.cred
		active := c.initialized && !c.closed
		c.mu.Unlock()

		var timerC <-chan time.Time
		var timer *time.Timer
		if active && cred != nil {
			wait := cred.ExpiresAt.Sub(c.now()) - c.skew
			if wait < minWait {
				wait = minWait
			}
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-c.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-c.rearm:
			if timer != nil {
				timer.Stop()
			}
			minWait = 0
		case <-timerC:
			if c.refreshNow() {
				minWait = 0
			} else {
				minWait = c.retry
			}
		}
	}
}

func (c *Client) refreshNow() bool {
	c.mu.Lock()
	cred, gen := c.cred, c.gen
	c.mu.Unlock()
	if cred == nil {
		return true
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	fresh, err := c.api.Refresh(ctx, cred.RefreshToken)
	cancel()

	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		return true
	}
	switch {
	case err == nil:
		c.cred = mergeRefreshed(cred, fresh)
		c.gen++
		c.mu.Unlock()
	case ErrorCode(err) == CodeSessionExpired:
		c.logger.Info("session expired", "principal_id", cred.Principal.ID)
		c.cred = nil
		c.gen++
		c.enqueueLocked(nil, 0)
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		logging.Error(c.ctx, c.logger, "refresh session", err)
		return false
	}

	c.persist(c.ctx)
	return true
}

func mergeRefreshed(old, fresh *Credential) *Credential {
	merged := *fresh
	merged.Principal = old.Principal
	if merged.RefreshToken == "" {
		merged.RefreshToken = old.RefreshToken
	}
	return &merged
}

func principalOf(cred *Credential) *Principal {
	if cred == nil {
		return nil
	}
	p := cred.Principal
	return &p
}

func clonePrincipal(p *Principal) *Principal {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
