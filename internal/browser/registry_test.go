package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinAiCloud/InterviewAI/internal/analysis"
	"github.com/KevinAiCloud/InterviewAI/internal/auth"
	"github.com/KevinAiCloud/InterviewAI/internal/db/bunx"
	"github.com/KevinAiCloud/InterviewAI/internal/db/models"
	"github.com/KevinAiCloud/InterviewAI/internal/migrations"
	"github.com/KevinAiCloud/InterviewAI/internal/repository"
	"github.com/KevinAiCloud/InterviewAI/internal/roles"
	"github.com/KevinAiCloud/InterviewAI/internal/session"
)

var testHashKey = []byte("0123456789abcdef0123456789abcdef")

type stubAccounts struct{}

func (stubAccounts) SignUp(_ context.Context, email, _ string) (*auth.Credential, error) {
	return credentialFor(email), nil
}

func (stubAccounts) SignInWithPassword(_ context.Context, email, _ string) (*auth.Credential, error) {
	return credentialFor(email), nil
}

func (stubAccounts) SignInWithIdP(context.Context, auth.FederatedCredential) (*auth.Credential, error) {
	return nil, errors.New("not supported")
}

func (stubAccounts) Refresh(context.Context, string) (*auth.Credential, error) {
	return nil, errors.New("not supported")
}

func credentialFor(email string) *auth.Credential {
	return &auth.Credential{
		Principal:    auth.Principal{ID: "uid-" + email, Email: email},
		IDToken:      "id",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

type userResolver struct{}

func (userResolver) Resolve(context.Context, *auth.Principal) roles.Role {
	return roles.User
}

func newRegistry(t *testing.T, opts Options) *Registry {
	t.Helper()
	if opts.Accounts == nil {
		opts.Accounts = stubAccounts{}
	}
	if opts.Resolver == nil {
		opts.Resolver = userResolver{}
	}
	if opts.HashKey == nil {
		opts.HashKey = testHashKey
	}
	r, err := NewRegistry(opts)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func resolve(t *testing.T, r *Registry, cookies ...*http.Cookie) (*Context, *http.Cookie) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	bc, err := r.Resolve(rec, req)
	require.NoError(t, err)

	var set *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			set = c
		}
	}
	require.NotNil(t, set, "context cookie is always refreshed")
	return bc, set
}

func awaitResolved(t *testing.T, s *session.Store) session.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := s.Await(ctx, func(st session.State) bool { return st.Resolved })
	require.NoError(t, err)
	return state
}

func TestRegistry_ReusesContextForCookie(t *testing.T) {
	r := newRegistry(t, Options{})

	first, cookie := resolve(t, r)
	again, _ := resolve(t, r, cookie)
	assert.Same(t, first, again)
	assert.Equal(t, 1, r.Len())

	_, err := again.Store.Subscribe()
	assert.ErrorIs(t, err, session.ErrAlreadySubscribed, "reuse never subscribes again")

	state := awaitResolved(t, first.Store)
	assert.Nil(t, state.Principal)
}

func TestRegistry_InvalidCookieGetsNewContext(t *testing.T) {
	r := newRegistry(t, Options{})
	first, _ := resolve(t, r)

	forged := &http.Cookie{Name: CookieName, Value: "forged"}
	second, _ := resolve(t, r, forged)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_ContextsAreIsolated(t *testing.T) {
	r := newRegistry(t, Options{})
	a, _ := resolve(t, r)
	b, _ := resolve(t, r)
	awaitResolved(t, a.Store)
	awaitResolved(t, b.Store)

	require.NoError(t, a.Store.SignIn(context.Background(), "a@example.com", "secret1"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := a.Store.Await(ctx, func(st session.State) bool { return st.SignedIn() })
	require.NoError(t, err)

	assert.Nil(t, b.Store.Read().Principal)
}

func TestRegistry_EvictionClosesClient(t *testing.T) {
	r := newRegistry(t, Options{MaxContexts: 1})
	first, _ := resolve(t, r)
	resolve(t, r)

	assert.Eventually(t, func() bool {
		err := first.Client.EndSession(context.Background())
		return auth.ErrorCode(err) == auth.CodeClientClosed
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ExpiredContextIsClosedAndReplaced(t *testing.T) {
	const ttl = time.Second
	r := newRegistry(t, Options{TTL: ttl})

	type held struct {
		bc     *Context
		cookie *http.Cookie
	}
	var browsers []held
	for i := 0; i < 10; i++ {
		bc, cookie := resolve(t, r)
		browsers = append(browsers, held{bc, cookie})
	}

	// Come back just after expiry, usually before the cache's own cleanup
	// pass has dropped the entries.
	time.Sleep(ttl + 2*time.Millisecond)
	for i, b := range browsers {
		replacement, _ := resolve(t, r, b.cookie)
		require.NotSame(t, b.bc, replacement, "browser %d", i)
		assert.Equal(t, b.bc.ID, replacement.ID, "the cookie keeps its context ID")
	}

	for i, b := range browsers {
		assert.Eventually(t, func() bool {
			err := b.bc.Client.EndSession(context.Background())
			return auth.ErrorCode(err) == auth.CodeClientClosed
		}, time.Second, 5*time.Millisecond, "expired context %d was not closed", i)
	}
	assert.Equal(t, len(browsers), r.Len())
}

// blockingSessions holds the first Get until release is closed.
type blockingSessions struct {
	repository.AuthSessionRepository
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSessions) Get(ctx context.Context, contextID string) (*models.AuthSession, error) {
	if b.calls.Add(1) == 1 {
		close(b.entered)
		<-b.release
	}
	return nil, fmt.Errorf("context %s: %w", contextID, repository.ErrNotFound)
}

func TestRegistry_SlowSessionLoadDoesNotBlockOtherBrowsers(t *testing.T) {
	sessions := &blockingSessions{entered: make(chan struct{}), release: make(chan struct{})}
	r := newRegistry(t, Options{Sessions: sessions})

	slow := make(chan struct{})
	go func() {
		defer close(slow)
		_, _ = r.Resolve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}()
	<-sessions.entered

	other := make(chan struct{})
	go func() {
		defer close(other)
		_, _ = r.Resolve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}()
	select {
	case <-other:
	case <-time.After(time.Second):
		t.Fatal("second browser waited on the first browser's session load")
	}

	close(sessions.release)
	<-slow
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_Close(t *testing.T) {
	r := newRegistry(t, Options{})
	bc, _ := resolve(t, r)
	r.Close()
	r.Close()

	assert.Equal(t, auth.CodeClientClosed, auth.ErrorCode(bc.Client.EndSession(context.Background())))

	_, err := r.Resolve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Error(t, err)
}

func TestRegistry_HydratesPersistedSession(t *testing.T) {
	ctx := context.Background()
	db, err := bunx.NewDB(ctx, fmt.Sprintf("file:browser_test_%d?mode=memory&cache=shared", time.Now().UnixNano()), bunx.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { bunx.Close(db) })
	_, err = migrations.Apply(ctx, db)
	require.NoError(t, err)
	sessions := repository.NewBunAuthSessionRepository(db)

	before := newRegistry(t, Options{Sessions: sessions})
	bc, cookie := resolve(t, before)
	awaitResolved(t, bc.Store)
	require.NoError(t, bc.Store.SignIn(ctx, "a@example.com", "secret1"))
	require.Eventually(t, func() bool {
		_, err := sessions.Get(ctx, bc.ID)
		return err == nil
	}, time.Second, 10*time.Millisecond)
	before.Close()

	// A new registry with the same keys stands in for a restarted server.
	after := newRegistry(t, Options{Sessions: sessions})
	restored, _ := resolve(t, after, cookie)
	assert.Equal(t, bc.ID, restored.ID)

	state := awaitResolved(t, restored.Store)
	require.NotNil(t, state.Principal)
	assert.Equal(t, "a@example.com", state.Principal.Email)

	n, err := after.CleanupStale(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNewRegistry_Keys(t *testing.T) {
	_, err := NewRegistry(Options{HashKey: []byte("short")})
	assert.Error(t, err)

	_, err = NewRegistry(Options{HashKey: testHashKey, BlockKey: []byte("bad")})
	assert.Error(t, err)

	r, err := NewRegistry(Options{BlockKey: []byte("0123456789abcdef")})
	require.NoError(t, err)
	r.Close()
}

func TestContext_PageState(t *testing.T) {
	r := newRegistry(t, Options{})
	bc, _ := resolve(t, r)

	bc.UpdatePages("uid-a", func(p *PageState) {
		p.Quiz = &QuizDraft{
			Assessment: &analysis.Assessment{SessionID: "s", Questions: []analysis.Question{{ID: 0}, {ID: 1}}},
			Answers:    map[int]string{0: "A"},
		}
	})

	snapshot := bc.Pages("uid-a")
	require.NotNil(t, snapshot.Quiz)
	assert.False(t, snapshot.Quiz.Complete())
	snapshot.Quiz.Answers[1] = "B"
	assert.Len(t, bc.Pages("uid-a").Quiz.Answers, 1, "snapshots are copies")

	assert.True(t, bc.UpdateDraft(func(d *QuizDraft) { d.Answers[1] = "C" }))
	assert.True(t, bc.Pages("uid-a").Quiz.Complete())

	assert.Nil(t, bc.Pages("uid-b").Quiz, "another principal starts clean")
	assert.Nil(t, bc.Pages("uid-a").Quiz)
	assert.False(t, bc.UpdateDraft(func(*QuizDraft) {}))
}

