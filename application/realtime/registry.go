package realtime

import (
	"context"
	"sync"
	"time"

	"mindmap/application/ports"
	"mindmap/domain/events"
)

// Registry is the in-process RoomRegistry. All reads and writes of the
// membership maps go through mu.
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]map[string]struct{} // roomID -> connection ids
	members map[string]*ports.Participant  // connectionID -> record
	now     func() time.Time
}

var _ ports.RoomRegistry = (*Registry)(nil)

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		rooms:   make(map[string]map[string]struct{}),
		members: make(map[string]*ports.Participant),
		now:     time.Now,
	}
}

// Join places the connection in roomID, leaving any other room first
func (r *Registry) Join(_ context.Context, connectionID, roomID string, info events.ParticipantInfo) (ports.JoinResult, error) {
	if len(info) == 0 {
		info = events.DefaultParticipantInfo()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	result := ports.JoinResult{RoomID: roomID}

	if current, ok := r.members[connectionID]; ok {
		if current.RoomID == roomID {
			current.Info = info
			result.Size = len(r.rooms[roomID])
			return result, nil
		}
		result.PreviousRoomID = current.RoomID
		result.PreviousInfo = current.Info
		result.PreviousSize = r.removeLocked(connectionID, current.RoomID)
	}

	room, ok := r.rooms[roomID]
	if !ok {
		room = make(map[string]struct{})
		r.rooms[roomID] = room
	}
	room[connectionID] = struct{}{}
	r.members[connectionID] = &ports.Participant{
		ConnectionID: connectionID,
		RoomID:       roomID,
		Info:         info,
		JoinedAt:     r.now(),
	}

	result.Size = len(room)
	return result, nil
}

// Leave removes the connection from its room, if any
func (r *Registry) Leave(_ context.Context, connectionID string) (ports.LeaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.members[connectionID]
	if !ok {
		return ports.LeaveResult{}, nil
	}

	remaining := r.removeLocked(connectionID, current.RoomID)
	return ports.LeaveResult{Participant: current, Remaining: remaining}, nil
}

// MembersOf returns a snapshot of the room's connection ids
func (r *Registry) MembersOf(_ context.Context, roomID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[roomID]
	ids := make([]string, 0, len(room))
	for id := range room {
		ids = append(ids, id)
	}
	return ids, nil
}

// RoomOf returns a copy of the connection's record, or nil
func (r *Registry) RoomOf(_ context.Context, connectionID string) (*ports.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.members[connectionID]
	if !ok {
		return nil, nil
	}
	cp := *current
	return &cp, nil
}

// RoomCount returns the number of non-empty rooms
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *Registry) removeLocked(connectionID, roomID string) int {
	delete(r.members, connectionID)
	room := r.rooms[roomID]
	delete(room, connectionID)
	if len(room) == 0 {
		delete(r.rooms, roomID)
		return 0
	}
	return len(room)
}
