package redis

import (
	"context"
	"sync"
	"time"

	"quizroom-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// RoomRegistry is a Redis-aware implementation of app.RoomRegistry.
// Notes:
//   - Rooms themselves stay in a local map; they hold live timers and
//     subscriber channels that cannot leave the process.
//   - Redis marks room-code liveness with a TTL, which keeps codes visible
//     to operational tooling and refuses reuse while a room is active.
type RoomRegistry struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.RWMutex
	rooms map[string]*app.Room
}

func NewRoomRegistry(client *redis.Client, ttl time.Duration) *RoomRegistry {
	return &RoomRegistry{
		client: client,
		ttl:    ttl,
		rooms:  make(map[string]*app.Room),
	}
}

func (r *RoomRegistry) PutIfAbsent(code string, room *app.Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[code]; ok {
		return false
	}
	// best-effort liveness marker
	ok, err := r.client.SetNX(context.Background(), r.key(code), "1", r.ttl).Result()
	if err == nil && !ok {
		return false
	}
	r.rooms[code] = room
	return true
}

func (r *RoomRegistry) Get(code string) (*app.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[code]
	return room, ok
}

func (r *RoomRegistry) Remove(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[code]; !ok {
		return
	}
	delete(r.rooms, code)
	_ = r.client.Del(context.Background(), r.key(code)).Err()
}

func (r *RoomRegistry) key(code string) string {
	return "quizroom:room:" + code
}
