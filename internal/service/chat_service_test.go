package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nelsonmaranda/tubonge-chat-app/internal/cache"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/config"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/domain"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/hub"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/registry"
)

// fakeStore is an in-memory MessageStore that records calls.
type fakeStore struct {
	mu          sync.Mutex
	nextID      int
	messages    map[string]domain.ChatMessage
	createCalls int
	failCreate  bool
	failRead    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{messages: make(map[string]domain.ChatMessage)}
}

func (f *fakeStore) Create(ctx context.Context, sender domain.Identity, content string, createdAt time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.failCreate {
		return "", fmt.Errorf("store unavailable")
	}
	f.nextID++
	id := fmt.Sprintf("m%d", f.nextID)
	f.messages[id] = domain.ChatMessage{ID: id, Sender: sender, Content: content, Timestamp: createdAt}
	return id, nil
}

func (f *fakeStore) ReadBack(ctx context.Context, id string) (*domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRead {
		return nil, fmt.Errorf("store unavailable")
	}
	msg, ok := f.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s not found", id)
	}
	return &msg, nil
}

func (f *fakeStore) ListRecent(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var messages []domain.ChatMessage
	for i := 1; i <= f.nextID && len(messages) < limit; i++ {
		if msg, ok := f.messages[fmt.Sprintf("m%d", i)]; ok {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

func (f *fakeStore) Close() {}

func (f *fakeStore) creates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

// fakeCache is an in-memory RecentCache that records invalidations.
type fakeCache struct {
	mu            sync.Mutex
	data          map[string][]domain.ChatMessage
	invalidations int
	getCalls      int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]domain.ChatMessage)}
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	messages, ok := f.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return messages, nil
}

func (f *fakeCache) Set(ctx context.Context, key string, messages []domain.ChatMessage, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = messages
	return nil
}

func (f *fakeCache) Invalidate(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations++
	f.data = make(map[string][]domain.ChatMessage)
	return nil
}

func (f *fakeCache) BuildKey(limit int) string { return fmt.Sprintf("recent:%d", limit) }

func (f *fakeCache) Close() error { return nil }

type testEnv struct {
	hub      *hub.Hub
	registry *registry.Registry
	store    *fakeStore
	cache    *fakeCache
	svc      ChatService
}

func newTestEnv() *testEnv {
	h := hub.NewHub()
	go h.Run()
	reg := registry.New()
	st := newFakeStore()
	ca := newFakeCache()
	return &testEnv{
		hub:      h,
		registry: reg,
		store:    st,
		cache:    ca,
		svc:      NewChatService(h, reg, st, ca),
	}
}

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
	}
}

// connect mirrors the admission flow of the WebSocket handler.
func (e *testEnv) connect(t *testing.T, sessionID string, identity domain.Identity) *hub.Client {
	t.Helper()
	client := hub.NewClient(sessionID, e.hub, nil, testWSConfig())
	e.hub.Register(client)
	require.NoError(t, e.svc.HandleConnect(context.Background(), client, identity))
	require.True(t, client.Session.Activate())
	return client
}

// disconnect mirrors the read pump teardown.
func (e *testEnv) disconnect(t *testing.T, client *hub.Client) {
	t.Helper()
	e.hub.Unregister(client)
	require.NoError(t, e.svc.HandleDisconnect(context.Background(), client))
}

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func recvEvent(t *testing.T, c *hub.Client) wireEvent {
	t.Helper()
	select {
	case payload, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var ev wireEvent
		require.NoError(t, json.Unmarshal(payload, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event on client %s", c.ID)
		return wireEvent{}
	}
}

func recvRoster(t *testing.T, c *hub.Client) []domain.Identity {
	t.Helper()
	ev := recvEvent(t, c)
	require.Equal(t, domain.EventRosterUpdate, ev.Type)
	var roster []domain.Identity
	require.NoError(t, json.Unmarshal(ev.Data, &roster))
	return roster
}

func recvMessage(t *testing.T, c *hub.Client) domain.ChatMessage {
	t.Helper()
	ev := recvEvent(t, c)
	require.Equal(t, domain.EventNewMessage, ev.Type)
	var msg domain.ChatMessage
	require.NoError(t, json.Unmarshal(ev.Data, &msg))
	return msg
}

func expectNoEvent(t *testing.T, c *hub.Client) {
	t.Helper()
	select {
	case payload, ok := <-c.Send:
		if ok {
			t.Fatalf("expected no event on client %s, got %s", c.ID, payload)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

var (
	alice = domain.Identity{ID: "alice_id", Username: "alice"}
	bob   = domain.Identity{ID: "bob_id", Username: "bob"}
	carol = domain.Identity{ID: "carol_id", Username: "carol"}
)

func TestConnect_NewClientSeesRosterImmediately(t *testing.T) {
	req := require.New(t)
	env := newTestEnv()

	a := env.connect(t, "s-alice", alice)
	req.Equal([]domain.Identity{alice}, recvRoster(t, a))

	b := env.connect(t, "s-bob", bob)
	req.Equal([]domain.Identity{alice, bob}, recvRoster(t, b))

	// Alice learns about bob through the broadcast.
	req.Equal([]domain.Identity{alice, bob}, recvRoster(t, a))
}

func TestSendMessage_PersistsThenBroadcastsToAllIncludingSender(t *testing.T) {
	req := require.New(t)
	env := newTestEnv()

	a := env.connect(t, "s-alice", alice)
	recvRoster(t, a)
	b := env.connect(t, "s-bob", bob)
	recvRoster(t, b)
	recvRoster(t, a)

	req.NoError(env.svc.HandleSendMessage(context.Background(), b, "hi"))

	req.Equal(1, env.store.creates())

	for _, c := range []*hub.Client{a, b} {
		msg := recvMessage(t, c)
		req.Equal("hi", msg.Content)
		req.Equal("bob", msg.Sender.Username)
		req.Equal("bob_id", msg.Sender.ID)
		req.NotEmpty(msg.ID)
	}

	// Exactly one copy each: the sender renders from the echo alone.
	expectNoEvent(t, a)
	expectNoEvent(t, b)
}

func TestSendMessage_InvalidContentIsRejectedWithoutSideEffects(t *testing.T) {
	env := newTestEnv()

	a := env.connect(t, "s-alice", alice)
	recvRoster(t, a)
	b := env.connect(t, "s-bob", bob)
	recvRoster(t, b)
	recvRoster(t, a)

	for name, content := range map[string]string{
		"empty":      "",
		"whitespace": "   \t\n",
		"oversized":  strings.Repeat("a", 1001),
	} {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			before := env.store.creates()

			err := env.svc.HandleSendMessage(context.Background(), b, content)
			req.ErrorIs(err, ErrInvalidContent)

			// No persistence call, error reported to the sender only.
			req.Equal(before, env.store.creates())
			req.Equal(domain.EventProtocolError, recvEvent(t, b).Type)
			expectNoEvent(t, a)
		})
	}
}

func TestSendMessage_MaxLengthContentIsAccepted(t *testing.T) {
	req := require.New(t)
	env := newTestEnv()

	a := env.connect(t, "s-alice", alice)
	recvRoster(t, a)

	req.NoError(env.svc.HandleSendMessage(context.Background(), a, strings.Repeat("a", 1000)))
	req.Equal(1, env.store.creates())
	recvMessage(t, a)
}

func TestSendMessage_StorageFailureIsNeverBroadcast(t *testing.T) {
	req := require.New(t)
	env := newTestEnv()
	env.store.failCreate = true

	a := env.connect(t, "s-alice", alice)
	recvRoster(t, a)
	b := env.connect(t, "s-bob", bob)
	recvRoster(t, b)
	recvRoster(t, a)

	err := env.svc.HandleSendMessage(context.Background(), b, "hi")
	req.ErrorIs(err, ErrStorageFailure)

	req.Equal(domain.EventProtocolError, recvEvent(t, b).Type)
	expectNoEvent(t, a)
	expectNoEvent(t, b)
}

func TestSendMessage_ReadBackFailureIsNeverBroadcast(t *testing.T) {
	req := require.New(t)
	env := newTestEnv()
	env.store.failRead = true

	a := env.connect(t, "s-alice", alice)
	recvRoster(t, a)

	err := env.svc.HandleSendMessage(context.Background(), a, "hi")
	req.ErrorIs(err, ErrStorageFailure)
	req.Equal(domain.EventProtocolError, recvEvent(t, a).Type)
	expectNoEvent(t, a)
}

func TestSendMessage_InvalidatesRecentCache(t *testing.T) {
	req := require.New(t)
	env := newTestEnv()

	a := env.connect(t, "s-alice", alice)
	recvRoster(t, a)

	req.NoError(env.svc.HandleSendMessage(context.Background(), a, "hi"))
	req.Equal(1, env.cache.invalidations)
}

func TestTyping_RelayedToOthersOnly(t *testing.T) {
	req := require.New(t)
	env := newTestEnv()

	a := env.connect(t, "s-alice", alice)
	recvRoster(t, a)
	b := env.connect(t, "s-bob", bob)
	recvRoster(t, b)
	recvRoster(t, a)

	req.NoError(env.svc.HandleTypingStart(context.Background(), a))

	ev := recvEvent(t, b)
	req.Equal(domain.EventUserTyping, ev.Type)
	var payload domain.TypingPayload
	req.NoError(json.Unmarshal(ev.Data, &payload))
	req.Equal("alice", payload.Username)
	expectNoEvent(t, a)

	// A stop with no preceding start is relayed all the same; receivers
	// treat it as clearing nothing.
	req.NoError(env.svc.HandleTypingStop(context.Background(), a))
	req.Equal(domain.EventUserStoppedTyping, recvEvent(t, b).Type)
	expectNoEvent(t, a)
}

func TestDisconnect_RemainingClientsGetOneRosterUpdate(t *testing.T) {
	req := require.New(t)
	env := newTestEnv()

	a := env.connect(t, "s-alice", alice)
	recvRoster(t, a)
	b := env.connect(t, "s-bob", bob)
	recvRoster(t, b)
	recvRoster(t, a)
	c := env.connect(t, "s-carol", carol)
	recvRoster(t, c)
	recvRoster(t, a)
	recvRoster(t, b)

	env.disconnect(t, a)

	req.Equal([]domain.Identity{bob, carol}, recvRoster(t, b))
	req.Equal([]domain.Identity{bob, carol}, recvRoster(t, c))
	expectNoEvent(t, b)
	expectNoEvent(t, c)
}

func TestDisconnect_IsIdempotent(t *testing.T) {
	req := require.New(t)
	env := newTestEnv()

	a := env.connect(t, "s-alice", alice)
	recvRoster(t, a)
	b := env.connect(t, "s-bob", bob)
	recvRoster(t, b)
	recvRoster(t, a)

	env.disconnect(t, a)
	recvRoster(t, b)

	// A duplicate disconnect produces no second announcement.
	req.NoError(env.svc.HandleDisconnect(context.Background(), a))
	expectNoEvent(t, b)
}

func TestDisconnect_EvictedSlowClientLeavesRoster(t *testing.T) {
	req := require.New(t)
	env := newTestEnv()

	a := env.connect(t, "s-alice", alice)
	recvRoster(t, a)
	b := env.connect(t, "s-bob", bob)
	recvRoster(t, b)
	recvRoster(t, a)

	// Saturate bob's outbound buffer so the next delivery evicts him.
	for i := 0; i < cap(b.Send); i++ {
		b.Send <- []byte("{}")
	}
	req.NoError(env.svc.HandleTypingStart(context.Background(), a))

	require.Eventually(t, func() bool { return env.hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)
	req.Equal(domain.StateClosed, b.Session.State())

	// The read pump teardown still runs after the eviction closed the
	// session; it must clear presence and announce the shrunken roster.
	req.NoError(env.svc.HandleDisconnect(context.Background(), b))
	req.Equal(1, env.registry.Len())
	req.Equal([]domain.Identity{alice}, recvRoster(t, a))
	expectNoEvent(t, a)
}

func TestConnect_SameIdentityTwiceKeepsSingleEntry(t *testing.T) {
	req := require.New(t)
	env := newTestEnv()

	b := env.connect(t, "s-bob", bob)
	recvRoster(t, b)

	first := env.connect(t, "s-alice-1", alice)
	req.Equal([]domain.Identity{bob, alice}, recvRoster(t, first))
	req.Equal([]domain.Identity{bob, alice}, recvRoster(t, b))

	second := env.connect(t, "s-alice-2", alice)
	// Still a single alice entry, announced again.
	req.Equal([]domain.Identity{bob, alice}, recvRoster(t, second))
	req.Equal([]domain.Identity{bob, alice}, recvRoster(t, b))
	req.Equal(2, env.registry.Len())

	// The displaced connection is closed and out of the hub.
	req.Equal(domain.StateClosed, first.Session.State())
	req.Equal(2, env.hub.ClientCount())

	// Its late disconnect must not evict the replacement.
	req.NoError(env.svc.HandleDisconnect(context.Background(), first))
	req.Equal(2, env.registry.Len())
	expectNoEvent(t, b)
}

func TestReconnect_SingleSendProducesSingleBroadcast(t *testing.T) {
	req := require.New(t)
	env := newTestEnv()

	b := env.connect(t, "s-bob", bob)
	recvRoster(t, b)

	// Alice connects, drops, and reconnects as a fresh client.
	first := env.connect(t, "s-alice-1", alice)
	recvRoster(t, first)
	recvRoster(t, b)
	env.disconnect(t, first)
	recvRoster(t, b)

	second := env.connect(t, "s-alice-2", alice)
	recvRoster(t, second)
	recvRoster(t, b)

	req.NoError(env.svc.HandleSendMessage(context.Background(), second, "hi again"))

	msg := recvMessage(t, b)
	req.Equal("hi again", msg.Content)
	recvMessage(t, second)

	// One send, one broadcast. Never two.
	expectNoEvent(t, b)
	expectNoEvent(t, second)
	req.Equal(1, env.store.creates())
}

func TestEndToEndScenario_AliceAndBob(t *testing.T) {
	req := require.New(t)
	env := newTestEnv()

	a := env.connect(t, "s-alice", alice)
	req.Equal([]domain.Identity{{ID: "alice_id", Username: "alice"}}, recvRoster(t, a))

	b := env.connect(t, "s-bob", bob)
	req.Equal([]domain.Identity{alice, bob}, recvRoster(t, b))
	req.Equal([]domain.Identity{alice, bob}, recvRoster(t, a))

	req.NoError(env.svc.HandleSendMessage(context.Background(), b, "hi"))
	for _, c := range []*hub.Client{a, b} {
		msg := recvMessage(t, c)
		req.Equal("hi", msg.Content)
		req.Equal("bob", msg.Sender.Username)
	}

	env.disconnect(t, b)
	req.Equal([]domain.Identity{alice}, recvRoster(t, a))
	expectNoEvent(t, a)
}
