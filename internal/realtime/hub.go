package realtime

import (
	"context"
	"errors"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/vimeet/server/internal/metrics"
	"github.com/vimeet/server/internal/poll"
	"github.com/vimeet/server/internal/protocol"
)

// inboxSize bounds queued coordinator requests before senders block.
const inboxSize = 256

// ErrHubStopped is returned when the coordinator is no longer running.
var ErrHubStopped = errors.New("realtime: hub stopped")

// Member is a session's identity inside the hub.
type Member struct {
	ID   uint64 `json:"id"`
	Room string `json:"room"`
	Name string `json:"name"`
}

// RoomState is a read-only copy of one room.
type RoomState struct {
	Name    string              `json:"name"`
	Members []Member            `json:"members"`
	Polls   []protocol.PollView `json:"polls"`
}

// EventPublisher mirrors room events to an external sink. Implementations must not block.
type EventPublisher interface {
	PublishRoomEvent(room string, frame []byte)
}

type session struct {
	Member
	send  chan<- []byte
	level uint64
}

type room struct {
	name    string
	members map[uint64]*session
	polls   map[string]*poll.Poll
}

// Hub owns every session, room and poll. All state is touched only by the
// goroutine running Run; everything else talks to it through the inbox.
type Hub struct {
	inbox  chan request
	done   chan struct{}
	logger *zap.Logger
	m      *metrics.Metrics
	mirror EventPublisher

	// owned by Run
	nextID   uint64
	sessions map[uint64]*session
	rooms    map[string]*room
}

type request interface {
	apply(h *Hub)
}

// NewHub creates a coordinator. Metrics and mirror may be nil.
func NewHub(logger *zap.Logger, m *metrics.Metrics, mirror EventPublisher) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Hub{
		inbox:    make(chan request, inboxSize),
		done:     make(chan struct{}),
		logger:   logger,
		m:        m,
		mirror:   mirror,
		sessions: make(map[uint64]*session),
		rooms:    make(map[string]*room),
	}
}

// Run processes requests one at a time until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-h.inbox:
			req.apply(h)
		}
	}
}

func (h *Hub) enqueue(ctx context.Context, req request) error {
	select {
	case h.inbox <- req:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

type joinResult struct {
	member Member
	ok     bool
}

type joinRequest struct {
	ctx        context.Context
	room, name string
	send       chan<- []byte
	reply      chan joinResult
}

// Join registers a new session in room and returns its identity. Events for
// the session are delivered to send without blocking; a full send drops them.
func (h *Hub) Join(ctx context.Context, roomName, name string, send chan<- []byte) (Member, error) {
	reply := make(chan joinResult, 1)
	if err := h.enqueue(ctx, joinRequest{ctx: ctx, room: roomName, name: name, send: send, reply: reply}); err != nil {
		return Member{}, err
	}
	select {
	case res := <-reply:
		if !res.ok {
			return Member{}, ctx.Err()
		}
		return res.member, nil
	case <-h.done:
		return Member{}, ErrHubStopped
	case <-ctx.Done():
		go h.abandonJoin(reply)
		return Member{}, ctx.Err()
	}
}

// abandonJoin removes a session whose caller stopped waiting after the
// request was already queued.
func (h *Hub) abandonJoin(reply <-chan joinResult) {
	select {
	case res := <-reply:
		if res.ok {
			h.Disconnect(res.member.ID)
		}
	case <-h.done:
	}
}

func (r joinRequest) apply(h *Hub) {
	if r.ctx.Err() != nil {
		r.reply <- joinResult{}
		return
	}
	h.nextID++
	s := &session{
		Member: Member{ID: h.nextID, Room: r.room, Name: r.name},
		send:   r.send,
	}
	rm := h.rooms[r.room]
	if rm == nil {
		rm = &room{name: r.room, members: make(map[uint64]*session), polls: make(map[string]*poll.Poll)}
		h.rooms[r.room] = rm
		h.m.Rooms.Inc()
	}
	rm.members[s.ID] = s
	h.sessions[s.ID] = s
	h.m.ActiveSessions.Inc()
	r.reply <- joinResult{member: s.Member, ok: true}

	frame, err := protocol.Encode(protocol.EventRoomSnapshot, protocol.RoomSnapshot{
		Room:      rm.name,
		SessionID: s.ID,
		Polls:     pollViews(rm),
	})
	if err == nil {
		h.deliver(s, frame)
	}
	h.logger.Debug("session joined room",
		zap.Uint64("session_id", s.ID),
		zap.String("room", rm.name),
		zap.String("name", s.Name),
		zap.Int("members", len(rm.members)),
	)
}

type disconnectRequest struct{ id uint64 }

// Disconnect removes a session. Unknown ids are ignored.
func (h *Hub) Disconnect(id uint64) {
	_ = h.enqueue(context.Background(), disconnectRequest{id: id})
}

func (r disconnectRequest) apply(h *Hub) {
	s, ok := h.sessions[r.id]
	if !ok {
		return
	}
	delete(h.sessions, r.id)
	h.m.ActiveSessions.Dec()
	rm := h.rooms[s.Room]
	if rm == nil {
		return
	}
	delete(rm.members, r.id)
	if len(rm.members) == 0 {
		delete(h.rooms, rm.name)
		h.m.Rooms.Dec()
	}
	h.logger.Debug("session left room", zap.Uint64("session_id", r.id), zap.String("room", s.Room))
}

type commandRequest struct {
	sender Member
	cmd    protocol.Command
}

// Dispatch hands a decoded command to the coordinator without waiting for it.
func (h *Hub) Dispatch(sender Member, cmd protocol.Command) {
	_ = h.enqueue(context.Background(), commandRequest{sender: sender, cmd: cmd})
}

func (r commandRequest) apply(h *Hub) {
	s, ok := h.sessions[r.sender.ID]
	if !ok {
		h.reject(r.cmd, r.sender, errUnknownSession)
		return
	}
	rm := h.rooms[s.Room]
	if err := h.execute(rm, s, r.cmd); err != nil {
		h.reject(r.cmd, s.Member, err)
		return
	}
	h.m.Commands.WithLabelValues(r.cmd.Kind(), metrics.OutcomeApplied).Inc()
}

var (
	errUnknownSession = errors.New("session not registered")
	errPollNotFound   = errors.New("poll not found")
	errPollOpen       = errors.New("an open poll with this title exists")
	errUnknownCommand = errors.New("unknown command")
)

func (h *Hub) execute(rm *room, s *session, cmd protocol.Command) error {
	switch c := cmd.(type) {
	case protocol.CreatePoll:
		if existing, ok := rm.polls[c.PollTitle]; ok && !existing.Closed {
			return errPollOpen
		}
		p := poll.New(c.PollTitle, rm.name, s.ID, s.Name)
		rm.polls[p.Title] = p
		h.broadcast(rm, protocol.EventPollCreated, protocol.PollEvent{Poll: p.View()})
	case protocol.AddOption:
		p, ok := rm.polls[c.PollTitle]
		if !ok {
			return errPollNotFound
		}
		if err := p.AddOption(c.OptionTitle); err != nil {
			return err
		}
		h.broadcast(rm, protocol.EventPollOptions, protocol.PollEvent{Poll: p.View()})
	case protocol.CastVote:
		p, ok := rm.polls[c.PollTitle]
		if !ok {
			return errPollNotFound
		}
		if err := p.Vote(s.ID, c.OptionTitle); err != nil {
			return err
		}
		h.broadcast(rm, protocol.EventPollVotes, protocol.PollEvent{Poll: p.View()})
	case protocol.ClosePoll:
		p, ok := rm.polls[c.PollTitle]
		if !ok {
			return errPollNotFound
		}
		if err := p.Close(s.ID); err != nil {
			return err
		}
		h.broadcast(rm, protocol.EventPollClosed, protocol.PollEvent{Poll: p.View()})
	case protocol.Elevate:
		if c.Value > math.MaxUint64-s.level {
			s.level = math.MaxUint64
		} else {
			s.level += c.Value
		}
		h.broadcast(rm, protocol.EventElevate, protocol.LevelEvent{OwnerID: s.ID, Value: c.Value, Level: s.level})
	case protocol.Recede:
		if c.Value > s.level {
			s.level = 0
		} else {
			s.level -= c.Value
		}
		h.broadcast(rm, protocol.EventRecede, protocol.LevelEvent{OwnerID: s.ID, Value: c.Value, Level: s.level})
	case protocol.Signal:
		h.broadcast(rm, c.Type, protocol.SignalEvent{OwnerID: s.ID, OwnerName: s.Name, Object: c.Object})
	default:
		return errUnknownCommand
	}
	return nil
}

func (h *Hub) reject(cmd protocol.Command, sender Member, err error) {
	h.m.Commands.WithLabelValues(cmd.Kind(), metrics.OutcomeRejected).Inc()
	h.logger.Debug("command rejected",
		zap.String("kind", cmd.Kind()),
		zap.Uint64("session_id", sender.ID),
		zap.String("room", sender.Room),
		zap.Error(err),
	)
}

// broadcast delivers one event to every member of rm and mirrors it.
func (h *Hub) broadcast(rm *room, event string, payload interface{}) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		h.logger.Error("encode event", zap.String("event", event), zap.Error(err))
		return
	}
	for _, s := range rm.members {
		h.deliver(s, frame)
	}
	if h.mirror != nil {
		h.mirror.PublishRoomEvent(rm.name, frame)
	}
}

func (h *Hub) deliver(s *session, frame []byte) {
	select {
	case s.send <- frame:
	default:
		// outbox full, drop for this session only
		h.m.DroppedDeliveries.Inc()
		h.logger.Debug("outbox full, event dropped", zap.Uint64("session_id", s.ID))
	}
}

type snapshotRequest struct {
	room  string
	reply chan *RoomState
}

// Snapshot returns a copy of room state, or nil if the room does not exist.
func (h *Hub) Snapshot(ctx context.Context, roomName string) (*RoomState, error) {
	reply := make(chan *RoomState, 1)
	if err := h.enqueue(ctx, snapshotRequest{room: roomName, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-h.done:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r snapshotRequest) apply(h *Hub) {
	rm := h.rooms[r.room]
	if rm == nil {
		r.reply <- nil
		return
	}
	st := &RoomState{Name: rm.name, Members: make([]Member, 0, len(rm.members)), Polls: pollViews(rm)}
	for _, s := range rm.members {
		st.Members = append(st.Members, s.Member)
	}
	sort.Slice(st.Members, func(i, j int) bool { return st.Members[i].ID < st.Members[j].ID })
	r.reply <- st
}

func pollViews(rm *room) []protocol.PollView {
	views := make([]protocol.PollView, 0, len(rm.polls))
	for _, p := range rm.polls {
		views = append(views, p.View())
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Title < views[j].Title })
	return views
}
