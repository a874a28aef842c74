package actor

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap/zaptest"

	"github.com/example/odoo/loadtest/internal/client"
	"github.com/example/odoo/loadtest/internal/session"
)

type stubAuth struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubAuth) Authenticate(_ context.Context, _ *client.Client, _ session.Credentials) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return &session.Session{}, s.err
}

func (s *stubAuth) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// sleepLog records requested pauses without blocking.
type sleepLog struct {
	mu     sync.Mutex
	pauses []time.Duration
	// cancel is invoked once limit pauses have been requested.
	limit  int
	cancel context.CancelFunc
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.pauses = append(s.pauses, d)
	n := len(s.pauses)
	s.mu.Unlock()
	if s.limit > 0 && n >= s.limit && s.cancel != nil {
		s.cancel()
	}
	return ctx.Err()
}

func newTestActor(t *testing.T, p *Profile, auth Authenticator, sleep SleepFunc) *Actor {
	t.Helper()
	c, err := client.New("http://127.0.0.1:1", client.Options{Timeout: time.Second})
	require.NoError(t, err)
	return New(Config{
		ID:      "actor-1",
		Profile: p,
		Client:  c,
		Auth:    auth,
		Seed:    42,
		Log:     zaptest.NewLogger(t),
		Sleep:   sleep,
	})
}

type countingBehavior struct {
	starts int
	ticks  int
}

func (b *countingBehavior) Start(context.Context, *Actor) error {
	b.starts++
	return errors.New("login refused")
}

func (b *countingBehavior) Tick(context.Context, *Actor) { b.ticks++ }

func TestActorRunStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	behavior := &countingBehavior{}
	p := &Profile{Name: "test", Weight: 1, ThinkTime: Between(1, 5), Behavior: behavior}
	sl := &sleepLog{limit: 4, cancel: cancel}
	a := newTestActor(t, p, &stubAuth{}, sl.sleep)

	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("actor did not stop")
	}

	assert.Equal(t, 1, behavior.starts, "start failures must not stop the actor")
	assert.Equal(t, 3, behavior.ticks)
	for _, d := range sl.pauses {
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestActorDefaults(t *testing.T) {
	c, err := client.New("http://127.0.0.1:1", client.Options{})
	require.NoError(t, err)
	p := &Profile{Name: "test", Weight: 1, Behavior: &countingBehavior{}}

	a := New(Config{Profile: p, Client: c, Auth: &stubAuth{}})
	assert.NotEmpty(t, a.ID)
	assert.NotNil(t, a.Faker)
	assert.NotNil(t, a.Rand)
	assert.NotNil(t, a.Session)
	assert.False(t, a.Session.LoggedIn())
}

func TestActorBootstrapReplacesSession(t *testing.T) {
	auth := &stubAuth{err: session.ErrAuthenticationFailed}
	p := &Profile{Name: "test", Weight: 1, Behavior: &countingBehavior{}}
	a := newTestActor(t, p, auth, nil)

	before := a.Session
	err := a.Bootstrap(context.Background())
	assert.ErrorIs(t, err, session.ErrAuthenticationFailed)
	assert.NotSame(t, before, a.Session)
	assert.Equal(t, 1, auth.count())
}

func TestActorRPCIDRange(t *testing.T) {
	p := &Profile{Name: "test", Weight: 1, Behavior: &countingBehavior{}}
	a := newTestActor(t, p, &stubAuth{}, nil)
	for range 1000 {
		id := a.RPCID()
		assert.GreaterOrEqual(t, id, 1)
		assert.LessOrEqual(t, id, client.MaxRPCID)
	}
}

func TestActorCallAssignsID(t *testing.T) {
	var gotID int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotID = gjson.GetBytes(body, "id").Int()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":5}`))
	}))
	defer srv.Close()

	c, err := client.New(srv.URL, client.Options{})
	require.NoError(t, err)
	p := &Profile{Name: "test", Weight: 1, Behavior: &countingBehavior{}}
	a := New(Config{Profile: p, Client: c, Auth: &stubAuth{}, Seed: 7, Log: zaptest.NewLogger(t)})

	resp, err := a.Call(context.Background(), client.Call{Name: "Count", Model: "sale.order", Method: "search_count"})
	require.NoError(t, err)
	id, ok := resp.IntResult()
	require.True(t, ok)
	assert.Equal(t, 5, id)
	assert.Positive(t, gotID)
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
	assert.NoError(t, Sleep(context.Background(), 0))
}

func TestThinkTimeNext(t *testing.T) {
	src := rand.New(rand.NewPCG(1, 2))

	fixed := ThinkTime{Min: 2 * time.Second, Max: 2 * time.Second}
	assert.Equal(t, 2*time.Second, fixed.Next(src))

	tt := Between(1, 3)
	seenLow, seenHigh := false, false
	for range 2000 {
		d := tt.Next(src)
		require.GreaterOrEqual(t, d, time.Second)
		require.LessOrEqual(t, d, 3*time.Second)
		seenLow = seenLow || d < 1500*time.Millisecond
		seenHigh = seenHigh || d > 2500*time.Millisecond
	}
	assert.True(t, seenLow)
	assert.True(t, seenHigh)
}
