package websocket

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xenn00/musori/internal/dtos/presence_dto"
	"github.com/xenn00/musori/internal/presence"
)

const (
	presenceTimeout   = 5 * time.Second
	inactiveThreshold = 2 * pongWait
	presenceStripes   = 32
)

// Hub tracks live connections by room and by user. It turns a user's first connection into a
// presence registration and their last disconnect into an unregistration, and pushes a fresh
// user list to every connection whenever presence changes.
type Hub struct {
	// rooms and userClients share mu so first/last decisions see one consistent view.
	rooms       map[string]map[*Client]struct{}
	userClients map[string][]*Client
	mu          sync.RWMutex

	presence presence.Tracker
	watcher  *presence.Watcher
	// presenceLocks serialize a user's connection changes with the presence calls they cause, so
	// the tracker sees them in the same order as userClients.
	presenceLocks [presenceStripes]sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	stats   HubStats
	statsMu sync.RWMutex

	cleanupTicker *time.Ticker
	done          chan struct{}
}

type HubStats struct {
	TotalRooms       int       `json:"total_rooms"`
	TotalClients     int       `json:"total_clients"`
	TotalUsers       int       `json:"total_users"`
	TotalConnections int64     `json:"total_connections"`
	MessageSent      int64     `json:"message_sent"`
	LastReset        time.Time `json:"last_reset"`
}

type RoomStats struct {
	RoomID            string `json:"room_id"`
	Exists            bool   `json:"exists"`
	TotalConnections  int    `json:"total_connections"`
	ActiveConnections int    `json:"active_connections"`
	UniqueUsers       int    `json:"unique_users"`
}

// NewHub starts the hub's background routines. tracker may be nil, in which case no presence is
// recorded and user lists are always empty.
func NewHub(tracker presence.Tracker) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	hub := &Hub{
		rooms:       make(map[string]map[*Client]struct{}),
		userClients: make(map[string][]*Client),
		presence:    tracker,
		ctx:         ctx,
		cancel:      cancel,
		stats: HubStats{
			LastReset: time.Now(),
		},
		cleanupTicker: time.NewTicker(1 * time.Minute),
		done:          make(chan struct{}),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.cleanupRoutine()
	}()

	if tracker != nil {
		hub.watcher = tracker.Watch()
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.presenceRoutine()
		}()
	}

	go func() {
		wg.Wait()
		close(hub.done)
	}()

	return hub
}

// Register adds a client to its room. The first connection of a user registers presence; the first
// connection of a user in a room announces them there.
func (h *Hub) Register(client *Client) {
	lock := h.presenceLock(client.UserID)
	lock.Lock()
	h.mu.Lock()
	room := h.rooms[client.RoomID]
	if room == nil {
		room = make(map[*Client]struct{})
		h.rooms[client.RoomID] = room
	}
	firstInRoom := !userInRoom(room, client.UserID)
	room[client] = struct{}{}

	firstForUser := len(h.userClients[client.UserID]) == 0
	h.userClients[client.UserID] = append(h.userClients[client.UserID], client)
	roomSize := len(room)
	h.mu.Unlock()

	if firstForUser {
		h.registerPresence(client)
	} else {
		h.refreshPresence(client)
	}
	lock.Unlock()

	h.updateStats(func(stats *HubStats) {
		stats.TotalConnections++
	})

	if firstInRoom {
		h.BroadcastToRoom(client.RoomID, NewNotice(client.RoomID, fmt.Sprintf("%s joined the room", client.Nickname)))
	}
	client.SendEvent(h.userListEvent())

	log.Info().Str("roomID", client.RoomID).Str("clientID", client.ID).Str("userID", client.UserID).Int("roomSize", roomSize).Msg("ws: client registered to room")
}

// Unregister removes a client. Calling it twice for the same client is a no-op.
func (h *Hub) Unregister(client *Client) {
	lock := h.presenceLock(client.UserID)
	lock.Lock()
	h.mu.Lock()
	room, ok := h.rooms[client.RoomID]
	if !ok {
		h.mu.Unlock()
		lock.Unlock()
		return
	}
	if _, ok := room[client]; !ok {
		h.mu.Unlock()
		lock.Unlock()
		return
	}
	delete(room, client)
	if len(room) == 0 {
		delete(h.rooms, client.RoomID)
	}
	lastInRoom := !userInRoom(room, client.UserID)

	conns := h.userClients[client.UserID]
	for i, c := range conns {
		if c == client {
			conns = append(conns[:i:i], conns[i+1:]...)
			break
		}
	}
	lastForUser := len(conns) == 0
	if lastForUser {
		delete(h.userClients, client.UserID)
	} else {
		h.userClients[client.UserID] = conns
	}
	h.mu.Unlock()

	if lastForUser && h.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		h.presence.Unregister(ctx, client.UserID)
		cancel()
	}
	lock.Unlock()

	if lastInRoom {
		h.BroadcastToRoom(client.RoomID, NewNotice(client.RoomID, fmt.Sprintf("%s left the room", client.Nickname)))
	}

	log.Info().Str("roomID", client.RoomID).Str("clientID", client.ID).Str("userID", client.UserID).Msg("ws: client unregistered from room")
}

// DisconnectUser closes every connection of a user. Their read pumps unregister them, which also
// removes their presence.
func (h *Hub) DisconnectUser(userID string) int {
	h.mu.RLock()
	targets := append([]*Client(nil), h.userClients[userID]...)
	h.mu.RUnlock()

	return h.closeClients(targets, "ws: user disconnected")
}

// DisconnectFromRoom closes a user's connections to one room.
func (h *Hub) DisconnectFromRoom(roomID, userID string) int {
	h.mu.RLock()
	var targets []*Client
	for client := range h.rooms[roomID] {
		if client.UserID == userID {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	return h.closeClients(targets, "ws: access to room revoked")
}

// CloseRoom closes every connection to a room.
func (h *Hub) CloseRoom(roomID string) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[roomID]))
	for client := range h.rooms[roomID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	return h.closeClients(targets, "ws: room closed")
}

func (h *Hub) closeClients(targets []*Client, reason string) int {
	for _, client := range targets {
		log.Info().Str("clientID", client.ID).Str("userID", client.UserID).Str("roomID", client.RoomID).Msg(reason)
		client.Close()
	}
	return len(targets)
}

func userInRoom(room map[*Client]struct{}, userID string) bool {
	for c := range room {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

func (h *Hub) registerPresence(client *Client) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	h.presence.Register(ctx, client.UserID, client.Nickname, client.Email)
}

func (h *Hub) presenceLock(userID string) *sync.Mutex {
	f := fnv.New32a()
	_, _ = f.Write([]byte(userID))
	return &h.presenceLocks[f.Sum32()%presenceStripes]
}

// touch refreshes presence for a live connection.
func (h *Hub) touch(client *Client) {
	if h.presence == nil || !client.IsClientActive() {
		return
	}
	lock := h.presenceLock(client.UserID)
	lock.Lock()
	defer lock.Unlock()
	h.refreshPresence(client)
}

// refreshPresence must be called with the user's presence lock held. An entry the sweeper already
// expired is registered again. A client that is no longer connected never registers.
func (h *Hub) refreshPresence(client *Client) {
	if h.presence == nil {
		return
	}
	h.mu.RLock()
	connected := false
	for _, c := range h.userClients[client.UserID] {
		if c == client {
			connected = true
			break
		}
	}
	h.mu.RUnlock()
	if !connected {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if !h.presence.Heartbeat(ctx, client.UserID) {
		h.presence.Register(ctx, client.UserID, client.Nickname, client.Email)
	}
}

// BroadcastToRoom sends an event to every connection in a room and reports how many accepted it.
func (h *Hub) BroadcastToRoom(roomID string, ev OutgoingEvent) int {
	ev.RoomID = roomID
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("roomID", roomID).Msg("ws: failed to marshal broadcast event")
		return 0
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[roomID]))
	for client := range h.rooms[roomID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	sent := h.deliver(targets, data)
	log.Debug().Str("roomID", roomID).Int("targets", sent).Str("event", ev.Event).Msg("ws: broadcast completed")
	return sent
}

// BroadcastToUser sends an event to all connections of a user.
func (h *Hub) BroadcastToUser(userID string, ev OutgoingEvent) int {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("ws: failed to marshal user event")
		return 0
	}

	h.mu.RLock()
	targets := append([]*Client(nil), h.userClients[userID]...)
	h.mu.RUnlock()

	return h.deliver(targets, data)
}

func (h *Hub) broadcastAll(ev OutgoingEvent) int {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event", ev.Event).Msg("ws: failed to marshal event")
		return 0
	}

	h.mu.RLock()
	var targets []*Client
	for _, clients := range h.userClients {
		targets = append(targets, clients...)
	}
	h.mu.RUnlock()

	return h.deliver(targets, data)
}

func (h *Hub) deliver(targets []*Client, data []byte) int {
	sent := 0
	for _, client := range targets {
		if client.sendRaw(data) {
			sent++
		}
	}
	if sent > 0 {
		h.updateStats(func(stats *HubStats) {
			stats.MessageSent += int64(sent)
		})
	}
	return sent
}

func (h *Hub) userListEvent() OutgoingEvent {
	list := []presence_dto.PresenceResponse{}
	if h.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		list = presence_dto.NewPresenceList(h.presence.Online(ctx))
		cancel()
	}
	return NewEvent(EventUserList, "", list)
}

func (h *Hub) presenceRoutine() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case ev, ok := <-h.watcher.C:
			if !ok {
				return
			}
			log.Debug().Str("kind", string(ev.Kind)).Str("userID", ev.Entry.ID).Msg("ws: presence changed")
			h.broadcastAll(h.userListEvent())
		}
	}
}

// GetRoomClients returns the active clients in a room.
func (h *Hub) GetRoomClients(roomID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var clients []*Client
	for client := range h.rooms[roomID] {
		if client.IsClientActive() {
			clients = append(clients, client)
		}
	}
	return clients
}

func (h *Hub) GetUserClients(userID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var active []*Client
	for _, client := range h.userClients[userID] {
		if client.IsClientActive() {
			active = append(active, client)
		}
	}
	return active
}

func (h *Hub) GetRoomStats(roomID string) RoomStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := RoomStats{RoomID: roomID}
	clients, ok := h.rooms[roomID]
	if !ok {
		return stats
	}

	uniqueUsers := make(map[string]struct{})
	for client := range clients {
		if client.IsClientActive() {
			stats.ActiveConnections++
			uniqueUsers[client.UserID] = struct{}{}
		}
	}
	stats.Exists = true
	stats.TotalConnections = len(clients)
	stats.UniqueUsers = len(uniqueUsers)
	return stats
}

func (h *Hub) GetHubStats() HubStats {
	h.mu.RLock()
	rooms := len(h.rooms)
	users := len(h.userClients)
	clients := 0
	for _, room := range h.rooms {
		for client := range room {
			if client.IsClientActive() {
				clients++
			}
		}
	}
	h.mu.RUnlock()

	h.statsMu.RLock()
	defer h.statsMu.RUnlock()
	stats := h.stats
	stats.TotalRooms = rooms
	stats.TotalUsers = users
	stats.TotalClients = clients
	return stats
}

func (h *Hub) updateStats(fn func(*HubStats)) {
	h.statsMu.Lock()
	fn(&h.stats)
	h.statsMu.Unlock()
}

func (h *Hub) cleanupRoutine() {
	defer h.cleanupTicker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-h.cleanupTicker.C:
			h.performCleanup(time.Now())
		}
	}
}

// performCleanup closes clients that stopped answering pings. Their read pumps unregister them.
func (h *Hub) performCleanup(now time.Time) int {
	var toRemove []*Client

	h.mu.RLock()
	for _, clients := range h.rooms {
		for client := range clients {
			if !client.IsClientActive() || now.Sub(client.GetLastSeen()) > inactiveThreshold {
				toRemove = append(toRemove, client)
			}
		}
	}
	h.mu.RUnlock()

	for _, client := range toRemove {
		log.Info().Str("clientID", client.ID).Str("roomID", client.RoomID).Msg("ws: cleaning up inactive client")
		client.Close()
	}

	log.Debug().Int("cleaned", len(toRemove)).Msg("ws: cleanup routine completed")
	return len(toRemove)
}

// Close disconnects every client and stops the background routines.
func (h *Hub) Close() {
	log.Info().Msg("ws: shutting down hub")

	h.cancel()
	if h.watcher != nil {
		h.watcher.Close()
	}

	h.mu.RLock()
	var all []*Client
	for _, clients := range h.rooms {
		for client := range clients {
			all = append(all, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range all {
		client.Close()
	}
	<-h.done

	log.Info().Int("clients", len(all)).Msg("ws: hub shutdown completed")
}
