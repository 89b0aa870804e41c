package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mindmap/application/ports"
	"mindmap/domain/events"
)

type frame struct {
	to        string
	msg       events.Message
	droppable bool
}

// recordingTransport captures deliveries; ids in gone fail with ErrConnectionGone
type recordingTransport struct {
	mu     sync.Mutex
	frames []frame
	gone   map[string]bool
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{gone: make(map[string]bool)}
}

func (t *recordingTransport) Deliver(_ context.Context, connectionID string, d ports.Delivery) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gone[connectionID] {
		return ports.ErrConnectionGone
	}
	var msg events.Message
	if err := json.Unmarshal(d.Data, &msg); err != nil {
		return err
	}
	t.frames = append(t.frames, frame{to: connectionID, msg: msg, droppable: d.Droppable})
	return nil
}

func (t *recordingTransport) to(connectionID string) []events.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []events.Message
	for _, f := range t.frames {
		if f.to == connectionID {
			out = append(out, f.msg)
		}
	}
	return out
}

func (t *recordingTransport) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames = nil
}

type fixture struct {
	registry   *Registry
	transport  *recordingTransport
	presence   *Presence
	relay      *Relay
	dispatcher *Dispatcher
}

func newFixture() *fixture {
	logger := zap.NewNop()
	registry := NewRegistry()
	transport := newRecordingTransport()
	presence := NewPresence(registry, transport, nil, logger)
	presence.now = func() time.Time { return time.UnixMilli(1700000000000) }
	relay := NewRelay(presence, registry, logger)
	return &fixture{
		registry:   registry,
		transport:  transport,
		presence:   presence,
		relay:      relay,
		dispatcher: NewDispatcher(presence, relay, nil, logger),
	}
}

func (f *fixture) send(t *testing.T, connectionID, eventType string, payload interface{}) {
	t.Helper()
	in, err := events.NewInbound(eventType, payload)
	require.NoError(t, err)
	data, err := json.Marshal(in)
	require.NoError(t, err)
	f.dispatcher.HandleFrame(context.Background(), connectionID, data)
}

func TestRegistry_JoinLeave(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	res, err := r.Join(ctx, "a", "room1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Size)
	assert.Empty(t, res.PreviousRoomID)

	res, err = r.Join(ctx, "b", "room1", events.ParticipantInfo{"name": "Bea"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Size)

	p, err := r.RoomOf(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "room1", p.RoomID)
	assert.Equal(t, "Anonymous", p.Info["name"])

	left, err := r.Leave(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, left.Participant)
	assert.Equal(t, 1, left.Remaining)

	left, err = r.Leave(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, left.Participant)

	_, err = r.Leave(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 0, r.RoomCount())

	members, err := r.MembersOf(ctx, "room1")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestRegistry_SingleRoomPerConnection(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	_, _ = r.Join(ctx, "a", "room1", nil)
	_, _ = r.Join(ctx, "b", "room1", nil)

	res, err := r.Join(ctx, "a", "room2", events.ParticipantInfo{"name": "Al"})
	require.NoError(t, err)
	assert.Equal(t, "room1", res.PreviousRoomID)
	assert.Equal(t, 1, res.PreviousSize)
	assert.Equal(t, "Anonymous", res.PreviousInfo["name"])
	assert.Equal(t, 1, res.Size)

	room1, _ := r.MembersOf(ctx, "room1")
	room2, _ := r.MembersOf(ctx, "room2")
	assert.ElementsMatch(t, []string{"b"}, room1)
	assert.ElementsMatch(t, []string{"a"}, room2)

	// Re-joining the same room only refreshes the display info
	res, err = r.Join(ctx, "a", "room2", events.ParticipantInfo{"name": "Alan"})
	require.NoError(t, err)
	assert.Empty(t, res.PreviousRoomID)
	assert.Equal(t, 1, res.Size)
	p, _ := r.RoomOf(ctx, "a")
	assert.Equal(t, "Alan", p.Info["name"])
}

func TestRegistry_ConcurrentJoins(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('A' + i))
			_, _ = r.Join(ctx, id, "room1", nil)
			_, _ = r.Join(ctx, id, "room2", nil)
		}(i)
	}
	wg.Wait()

	room1, _ := r.MembersOf(ctx, "room1")
	room2, _ := r.MembersOf(ctx, "room2")
	assert.Empty(t, room1)
	assert.Len(t, room2, 50)
}

func TestPresence_JoinNotifiesOthersThenAcks(t *testing.T) {
	f := newFixture()

	f.send(t, "a", events.JoinRoom, events.JoinRoomPayload{RoomID: "doc-1", UserInfo: events.ParticipantInfo{"name": "Ann"}})
	f.send(t, "b", events.JoinRoom, events.JoinRoomPayload{RoomID: "doc-1"})

	toA := f.transport.to("a")
	require.Len(t, toA, 2)
	assert.Equal(t, events.RoomJoined, toA[0].Type)
	assert.Equal(t, 1, toA[0].Count)
	assert.Equal(t, events.UserJoined, toA[1].Type)
	assert.Equal(t, "b", toA[1].UserID)
	assert.Equal(t, "Anonymous", toA[1].UserInfo["name"])
	assert.Equal(t, 2, toA[1].Count)
	assert.Equal(t, int64(1700000000000), toA[1].Timestamp)

	toB := f.transport.to("b")
	require.Len(t, toB, 1)
	assert.Equal(t, events.RoomJoined, toB[0].Type)
	assert.Equal(t, "doc-1", toB[0].RoomID)
	assert.Equal(t, 2, toB[0].Count)
}

func TestPresence_DisconnectNotifiesRemaining(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.presence.Join(ctx, "a", "doc-1", nil))
	require.NoError(t, f.presence.Join(ctx, "b", "doc-1", events.ParticipantInfo{"name": "Bo"}))
	f.transport.reset()

	f.dispatcher.Disconnect(ctx, "b")

	toA := f.transport.to("a")
	require.Len(t, toA, 1)
	assert.Equal(t, events.UserLeft, toA[0].Type)
	assert.Equal(t, "b", toA[0].UserID)
	assert.Equal(t, "Bo", toA[0].UserInfo["name"])
	assert.Equal(t, 1, toA[0].Count)

	// A second disconnect of the same connection is a no-op
	f.transport.reset()
	f.dispatcher.Disconnect(ctx, "b")
	assert.Empty(t, f.transport.to("a"))
}

func TestPresence_MoveTellsPreviousRoom(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.presence.Join(ctx, "a", "doc-1", nil))
	require.NoError(t, f.presence.Join(ctx, "b", "doc-1", nil))
	f.transport.reset()

	require.NoError(t, f.presence.Join(ctx, "b", "doc-2", nil))

	toA := f.transport.to("a")
	require.Len(t, toA, 1)
	assert.Equal(t, events.UserLeft, toA[0].Type)
	assert.Equal(t, "doc-1", toA[0].RoomID)
	assert.Equal(t, 1, toA[0].Count)
}

var relayedIntents = []struct {
	intent  string
	applied string
	payload string
}{
	{events.AddNode, events.NodeAdded, `{"id":"n1","label":"Idea","position":{"x":1,"y":2}}`},
	{events.UpdateNode, events.NodeUpdated, `{"id":"n1","label":"Renamed","position":{"x":1,"y":2}}`},
	{events.DeleteNode, events.NodeDeleted, `{"nodeId":"n1"}`},
	{events.AddEdge, events.EdgeAdded, `{"id":"e1","source":"n1","target":"n2","label":"leads to"}`},
	{events.DeleteEdge, events.EdgeDeleted, `{"edgeId":"e1"}`},
	{events.MoveNode, events.NodeMoved, `{"id":"n1","position":{"x":5,"y":6}}`},
	{events.CursorMove, events.CursorMoved, `{"x":10,"y":20}`},
}

func TestRelay_ExcludesSender(t *testing.T) {
	for _, tt := range relayedIntents {
		t.Run(tt.intent, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			for _, id := range []string{"a", "b", "c"} {
				require.NoError(t, f.presence.Join(ctx, id, "doc-1", nil))
			}
			require.NoError(t, f.presence.Join(ctx, "outsider", "doc-2", nil))
			f.transport.reset()

			f.send(t, "a", tt.intent, json.RawMessage(tt.payload))

			assert.Empty(t, f.transport.to("a"))
			assert.Empty(t, f.transport.to("outsider"))
			for _, id := range []string{"b", "c"} {
				got := f.transport.to(id)
				require.Len(t, got, 1, id)
				assert.Equal(t, tt.applied, got[0].Type)
				assert.Equal(t, "a", got[0].UserID)
				assert.Equal(t, "doc-1", got[0].RoomID)
				assert.JSONEq(t, tt.payload, string(got[0].Payload))
			}
		})
	}
}

func TestRelay_SenderWithoutRoomIsNoop(t *testing.T) {
	for _, tt := range relayedIntents {
		t.Run(tt.intent, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			require.NoError(t, f.presence.Join(ctx, "b", "doc-1", nil))
			f.transport.reset()

			f.send(t, "a", tt.intent, json.RawMessage(tt.payload))

			assert.Empty(t, f.transport.frames)
		})
	}
}

func TestRelay_MarksPositionEventsDroppable(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.presence.Join(ctx, "a", "doc-1", nil))
	require.NoError(t, f.presence.Join(ctx, "b", "doc-1", nil))
	f.transport.reset()

	f.send(t, "a", events.MoveNode, events.MoveNodePayload{ID: "n1"})
	f.send(t, "a", events.CursorMove, events.CursorPayload{})
	f.send(t, "a", events.DeleteEdge, events.DeleteEdgePayload{EdgeID: "e1"})

	f.transport.mu.Lock()
	defer f.transport.mu.Unlock()
	require.Len(t, f.transport.frames, 3)
	assert.True(t, f.transport.frames[0].droppable)
	assert.Equal(t, events.NodeMoved, f.transport.frames[0].msg.Type)
	assert.True(t, f.transport.frames[1].droppable)
	assert.Equal(t, events.CursorMoved, f.transport.frames[1].msg.Type)
	assert.False(t, f.transport.frames[2].droppable)
	assert.Equal(t, events.EdgeDeleted, f.transport.frames[2].msg.Type)
}

func TestRelay_UnknownType(t *testing.T) {
	f := newFixture()
	err := f.relay.Relay(context.Background(), "a", events.Inbound{Type: "rename-room"})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDispatcher_IgnoresMalformedFrames(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.presence.Join(ctx, "b", "doc-1", nil))
	f.transport.reset()

	f.dispatcher.HandleFrame(ctx, "a", []byte("not json"))
	f.dispatcher.HandleFrame(ctx, "a", []byte(`{"type":"join-room","payload":{}}`))
	f.dispatcher.HandleFrame(ctx, "a", []byte(`{"type":"teleport"}`))

	assert.Empty(t, f.transport.frames)
	p, err := f.registry.RoomOf(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, p)
}

// failingRegistry fails every lookup and membership change
type failingRegistry struct{ err error }

func (r failingRegistry) Join(context.Context, string, string, events.ParticipantInfo) (ports.JoinResult, error) {
	return ports.JoinResult{}, r.err
}

func (r failingRegistry) Leave(context.Context, string) (ports.LeaveResult, error) {
	return ports.LeaveResult{}, r.err
}

func (r failingRegistry) MembersOf(context.Context, string) ([]string, error) { return nil, r.err }

func (r failingRegistry) RoomOf(context.Context, string) (*ports.Participant, error) { return nil, r.err }

func TestDispatcher_ReturnsRegistryFailures(t *testing.T) {
	unavailable := errors.New("registry unavailable")
	logger := zap.NewNop()
	registry := failingRegistry{err: unavailable}
	presence := NewPresence(registry, newRecordingTransport(), nil, logger)
	d := NewDispatcher(presence, NewRelay(presence, registry, logger), nil, logger)
	ctx := context.Background()

	tests := []struct {
		name  string
		frame string
		want  error
	}{
		{"join", `{"type":"join-room","payload":{"roomId":"doc-1"}}`, unavailable},
		{"relay", `{"type":"delete-node","payload":{"nodeId":"n1"}}`, unavailable},
		{"malformed frame", `not json`, nil},
		{"unknown type", `{"type":"teleport"}`, nil},
		{"join without room", `{"type":"join-room","payload":{}}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.HandleFrame(ctx, "a", []byte(tt.frame))
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.ErrorIs(t, d.Disconnect(ctx, "a"), unavailable)
}

func TestBroadcast_DisconnectsGoneConnections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, f.presence.Join(ctx, id, "doc-1", nil))
	}
	f.transport.reset()
	f.transport.gone["c"] = true

	f.send(t, "a", events.AddEdge, map[string]string{"id": "e1", "source": "n1", "target": "n2"})

	members, err := f.registry.MembersOf(ctx, "doc-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, members)

	toB := f.transport.to("b")
	require.Len(t, toB, 2)
	assert.Equal(t, events.EdgeAdded, toB[0].Type)
	assert.Equal(t, events.UserLeft, toB[1].Type)
	assert.Equal(t, "c", toB[1].UserID)
}
