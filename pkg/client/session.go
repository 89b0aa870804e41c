package client

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"mindmap/application/reconcile"
	"mindmap/domain/core/aggregates"
	"mindmap/domain/events"
)

// SessionOptions configures a Session
type SessionOptions struct {
	// RoomID overrides the room joined after load; defaults to the loaded
	// document id
	RoomID   string
	UserInfo events.ParticipantInfo
	// OnMessage sees every relayed event after remote mutations are applied
	OnMessage func(msg events.Message)
}

// Session keeps a reconcile engine and a relay connection in step: local
// edits are applied and relayed, relayed edits are applied.
type Session struct {
	engine *reconcile.Engine
	relay  *RelayClient
	logger *zap.Logger
	opts   SessionOptions

	roomID string
	wg     sync.WaitGroup
}

// NewSession pairs an engine with a relay connection
func NewSession(engine *reconcile.Engine, relay *RelayClient, logger *zap.Logger, opts SessionOptions) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{engine: engine, relay: relay, logger: logger, opts: opts}
}

// Start loads the working copy for identity, joins its room and begins
// applying relayed edits. An offline document with no room override joins
// nothing.
func (s *Session) Start(ctx context.Context, identity string) (*aggregates.Document, error) {
	doc, err := s.engine.Load(ctx, identity)
	if err != nil {
		return nil, err
	}

	s.roomID = s.opts.RoomID
	if s.roomID == "" {
		s.roomID = doc.ID
	}
	if s.roomID != "" {
		if err := s.relay.JoinRoom(s.roomID, s.opts.UserInfo); err != nil {
			return nil, err
		}
	}

	s.wg.Add(1)
	go s.pump()
	return doc, nil
}

// RoomID is the room joined by Start
func (s *Session) RoomID() string {
	return s.roomID
}

// Apply makes a local edit and relays it when it changed the working copy
func (s *Session) Apply(m aggregates.Mutation) error {
	if !s.engine.ApplyLocal(m) {
		return nil
	}
	return s.relay.Send(m)
}

// Snapshot returns the current working copy
func (s *Session) Snapshot() *aggregates.Document {
	return s.engine.Snapshot()
}

// Close saves pending edits when online, then drops the relay connection
func (s *Session) Close(ctx context.Context) error {
	var saveErr error
	if !s.engine.Offline() {
		saveErr = s.engine.SaveNow(ctx)
	}
	s.engine.Close()
	closeErr := s.relay.Close()
	s.wg.Wait()
	if saveErr != nil {
		return saveErr
	}
	return closeErr
}

func (s *Session) pump() {
	defer s.wg.Done()
	for msg := range s.relay.Messages() {
		m, ok, err := events.MutationFrom(msg)
		if err != nil {
			s.logger.Warn("Ignoring malformed relay event", zap.String("type", msg.Type), zap.Error(err))
		} else if ok {
			s.engine.ApplyRemote(m)
		}
		if s.opts.OnMessage != nil {
			s.opts.OnMessage(msg)
		}
	}
}
