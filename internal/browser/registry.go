// Package browser tracks the browser contexts the server is talking to.
//
// A browser context stands in for one browser's auth SDK instance: it owns
// exactly one provider client, one session store holding the only
// subscription to that client, and the page-local state of the browser's
// views. Contexts are keyed by a signed cookie and evicted after an idle TTL,
// which disposes the subscription and closes the client.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/samber/oops"

	"github.com/KevinAiCloud/InterviewAI/internal/auth"
	"github.com/KevinAiCloud/InterviewAI/internal/logging"
	"github.com/KevinAiCloud/InterviewAI/internal/repository"
	"github.com/KevinAiCloud/InterviewAI/internal/session"
)

// CookieName carries the signed browser context ID.
const CookieName = "admissions.ctx"

// Error codes attached to registry failures.
const (
	CodeInvalidKeys = "BROWSER_INVALID_KEYS"
	CodeClosed      = "BROWSER_REGISTRY_CLOSED"
)

// Context is one browser's server-side state.
type Context struct {
	ID     string
	Client *auth.Client
	Store  *session.Store

	dispose func()

	mu    sync.Mutex
	pages PageState
}

// Pages returns a copy of the page state for principalID. State created by
// another principal is discarded first.
func (c *Context) Pages(principalID string) PageState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claimLocked(principalID)
	return c.pages.clone()
}

// UpdatePages mutates the page state of principalID under the context lock.
func (c *Context) UpdatePages(principalID string, fn func(*PageState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claimLocked(principalID)
	fn(&c.pages)
}

// UpdateDraft mutates an existing quiz draft whoever owns it. It serves
// requests made while the session is gone, so the draft survives sign-in.
func (c *Context) UpdateDraft(fn func(*QuizDraft)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pages.Quiz == nil {
		return false
	}
	fn(c.pages.Quiz)
	return true
}

func (c *Context) claimLocked(principalID string) {
	if principalID == "" || c.pages.Owner == principalID {
		return
	}
	c.pages = PageState{Owner: principalID}
}

func (c *Context) close() {
	c.dispose()
	c.Client.Close()
}

// Options configures a Registry.
type Options struct {
	// Accounts is the remote account service behind every context's client
	Accounts auth.AccountAPI
	// Resolver resolves roles for every context's session store
	Resolver session.RoleResolver
	// Sessions persists provider credentials; nil keeps them in memory only
	Sessions repository.AuthSessionRepository
	// Verifier checks persisted ID tokens on hydration; nil trusts them
	Verifier auth.TokenVerifier

	TTL         time.Duration
	MaxContexts int
	HashKey     []byte
	BlockKey    []byte
	Secure      bool
	Logger      *slog.Logger
}

// Registry maps context cookies to live browser contexts.
type Registry struct {
	accounts auth.AccountAPI
	resolver session.RoleResolver
	sessions repository.AuthSessionRepository
	verifier auth.TokenVerifier
	logger   *slog.Logger
	codec    *securecookie.SecureCookie
	ttl      time.Duration
	secure   bool

	mu     sync.Mutex
	cache  *expirable.LRU[string, *Context]
	closed bool

	closing sync.WaitGroup
}

// NewRegistry creates a registry. Missing cookie keys are generated, which
// starts every browser with a fresh context after a restart.
func NewRegistry(opts Options) (*Registry, error) {
	hashKey := opts.HashKey
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(32)
	}
	if len(hashKey) < 32 {
		return nil, oops.Code(CodeInvalidKeys).Errorf("context cookie hash key must be at least 32 bytes")
	}
	blockKey := opts.BlockKey
	switch len(blockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, oops.Code(CodeInvalidKeys).Errorf("context cookie block key must be 16, 24 or 32 bytes")
	}
	if len(blockKey) == 0 {
		blockKey = nil
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	size := opts.MaxContexts
	if size <= 0 {
		size = 10000
	}

	r := &Registry{
		accounts: opts.Accounts,
		resolver: opts.Resolver,
		sessions: opts.Sessions,
		verifier: opts.Verifier,
		logger:   logging.OrDiscard(opts.Logger),
		codec:    securecookie.New(hashKey, blockKey).MaxAge(0),
		ttl:      ttl,
		secure:   opts.Secure,
	}
	r.cache = expirable.NewLRU[string, *Context](size, r.onEvict, ttl)
	return r, nil
}

func (r *Registry) onEvict(id string, c *Context) {
	r.logger.Debug("evicting browser context", "context_id", id)
	r.closing.Add(1)
	go func() {
		defer r.closing.Done()
		c.close()
	}()
}

// Resolve returns the browser context of the request, creating one and
// setting its cookie when the request has none. A valid cookie whose context
// was evicted gets a new context under the same ID, which hydrates from the
// persisted session.
func (r *Registry) Resolve(w http.ResponseWriter, req *http.Request) (*Context, error) {
	id, fromCookie := r.readCookie(req)

	c, created, err := r.lookupOrCreate(id)
	if err != nil {
		return nil, err
	}
	r.writeCookie(w, req, c.ID)
	if created {
		// Loading the persisted session is a database round trip; it runs
		// outside the registry lock.
		c.Client.Start(req.Context())
		r.logger.Debug("created browser context", "context_id", c.ID, "from_cookie", fromCookie)
	}
	return c, nil
}

func (r *Registry) lookupOrCreate(id string) (*Context, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false, oops.Code(CodeClosed).Errorf("browser registry closed")
	}

	if id != "" {
		if c, ok := r.cache.Get(id); ok {
			// Re-adding restarts the idle TTL.
			r.cache.Add(id, c)
			return c, false, nil
		}
		// An expired entry can outlive its TTL until the cache's cleanup
		// pass. Add would overwrite it without eviction, so remove it first.
		r.cache.Remove(id)
	} else {
		id = uuid.NewString()
	}

	c, err := r.create(id)
	if err != nil {
		return nil, false, err
	}
	r.cache.Add(id, c)
	return c, true, nil
}

// create builds a subscribed context. The caller starts its client.
func (r *Registry) create(id string) (*Context, error) {
	logger := r.logger.With("context_id", id)

	var persister auth.Persister
	if r.sessions != nil {
		persister = auth.NewSessionPersister(r.sessions, id)
	}
	client := auth.NewClient(r.accounts, auth.ClientOptions{
		Persister: persister,
		Verifier:  r.verifier,
		Logger:    logger,
	})
	store := session.New(client, r.resolver, session.Options{Logger: logger})

	dispose, err := store.Subscribe()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("subscribe session store: %w", err)
	}

	return &Context{ID: id, Client: client, Store: store, dispose: dispose}, nil
}

func (r *Registry) readCookie(req *http.Request) (string, bool) {
	cookie, err := req.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	var id string
	if err := r.codec.Decode(CookieName, cookie.Value, &id); err != nil {
		r.logger.Debug("ignoring invalid context cookie", "error", err)
		return "", false
	}
	return id, true
}

func (r *Registry) writeCookie(w http.ResponseWriter, req *http.Request, id string) {
	encoded, err := r.codec.Encode(CookieName, id)
	if err != nil {
		logging.Error(req.Context(), r.logger, "encode context cookie", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   r.secure || req.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// Len returns the number of live contexts.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// CleanupStale deletes persisted sessions not written for maxAge.
func (r *Registry) CleanupStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	if r.sessions == nil {
		return 0, nil
	}
	n, err := r.sessions.DeleteStale(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("delete stale sessions: %w", err)
	}
	if n > 0 {
		r.logger.InfoContext(ctx, "deleted stale sessions", "count", n)
	}
	return n, nil
}

// RunJanitor calls CleanupStale every interval until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.CleanupStale(ctx, maxAge); err != nil {
				logging.Error(ctx, r.logger, "session janitor", err)
			}
		}
	}
}

// Close evicts every context and waits for their clients to stop.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.cache.Purge()
	r.mu.Unlock()

	r.closing.Wait()
}
