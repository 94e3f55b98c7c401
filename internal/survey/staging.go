package survey

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/paulmach/orb/geojson"
	"github.com/redis/go-redis/v9"

	"github.com/LakeCharts/LC-Backend/internal/config"
)

// UploadSession is a validated collection parked between upload and commit.
// It lives only in the staging store and dies on commit or TTL expiry.
type UploadSession struct {
	UploadID  string                     `json:"upload_id"`
	TileID    string                     `json:"tile_id"`
	Features  *geojson.FeatureCollection `json:"features"`
	ExpiresAt time.Time                  `json:"expires_at"`
}

// Store holds pending upload sessions. Both backends expire entries after the
// configured TTL; a Get on an expired id is indistinguishable from a Get on
// an id that never existed.
type Store interface {
	Put(ctx context.Context, session *UploadSession) error
	Get(ctx context.Context, id string) (*UploadSession, bool)
	Delete(ctx context.Context, id string)
}

// NewStoreFromEnv picks the redis backend when REDIS_HOST is set, otherwise
// the in-process LRU. Upload and commit are separate requests, so anything
// multi-replica needs the shared backend.
func NewStoreFromEnv(cfg config.Config) Store {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		return NewMemoryStore(cfg.StagingMaxEntries, cfg.StagingTTL)
	}

	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Password: os.Getenv("REDIS_PASS"),
	})
	log.Printf("Staging store backed by redis at %s:%s", host, port)
	return &redisStore{client: client, ttl: cfg.StagingTTL}
}

type memoryStore struct {
	lru *expirable.LRU[string, *UploadSession]
}

// NewMemoryStore bounds staging both in time (TTL) and in space (LRU cap),
// so abandoned uploads cannot pile up.
func NewMemoryStore(maxEntries int, ttl time.Duration) Store {
	return &memoryStore{
		lru: expirable.NewLRU[string, *UploadSession](maxEntries, nil, ttl),
	}
}

func (s *memoryStore) Put(ctx context.Context, session *UploadSession) error {
	s.lru.Add(session.UploadID, session)
	return nil
}

func (s *memoryStore) Get(ctx context.Context, id string) (*UploadSession, bool) {
	return s.lru.Get(id)
}

func (s *memoryStore) Delete(ctx context.Context, id string) {
	s.lru.Remove(id)
}

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

const redisKeyPrefix = "survey:upload:"

func (s *redisStore) Put(ctx context.Context, session *UploadSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKeyPrefix+session.UploadID, data, s.ttl).Err()
}

func (s *redisStore) Get(ctx context.Context, id string) (*UploadSession, bool) {
	data, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("Staging store read failed for %s: %v", id, err)
		}
		return nil, false
	}
	var session UploadSession
	if err := json.Unmarshal(data, &session); err != nil {
		log.Printf("Staging store entry %s is corrupt: %v", id, err)
		return nil, false
	}
	return &session, true
}

func (s *redisStore) Delete(ctx context.Context, id string) {
	if err := s.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		log.Printf("Staging store delete failed for %s: %v", id, err)
	}
}
