package redis

import (
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRoomRegistrySetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	registry := NewRoomRegistry(client, time.Minute)

	if !registry.PutIfAbsent("ABCDE", nil) {
		t.Fatalf("expected free code to be claimed")
	}
	if !mr.Exists("quizroom:room:ABCDE") {
		t.Fatalf("expected redis liveness key to be set")
	}
	if registry.PutIfAbsent("ABCDE", nil) {
		t.Fatalf("expected collision on a claimed code")
	}

	registry.Remove("ABCDE")
	if mr.Exists("quizroom:room:ABCDE") {
		t.Fatalf("expected redis liveness key to be removed")
	}
}
