package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/Robin318-Gamer/StoryReader/internal/db"
	"github.com/Robin318-Gamer/StoryReader/internal/models"
	"github.com/go-redis/redis/v8"
)

// ---------------------------------------------------------------------------
// Result cache for completed syntheses
// A request is deduplicated by the exact tuple (identity, content, voice,
// rate). Redis holds a fingerprint → audio URL fast path; the Postgres
// history table is the source of truth and serves misses, backfilling Redis.
// Markup requests are never cached — generated markup varies between runs.
// ---------------------------------------------------------------------------

const keyPrefix = "ttscache:"

// Key is the deterministic composite identifying a completed synthesis.
type Key struct {
	Identity string
	Content  string
	Voice    string
	Rate     float64
}

// Fingerprint returns a stable digest of all four key components. Rate is
// rendered with full float precision so 1.0 and 1.25 never collide.
func (k Key) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s",
		k.Identity, k.Voice, strconv.FormatFloat(k.Rate, 'g', -1, 64), k.Content)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Cache fronts the history store with a Redis fingerprint index.
type Cache struct {
	redis *redis.Client // nil when Redis is not configured
	db    *db.DB
	ttl   time.Duration
}

// New connects to Redis and wraps the history store. An empty redisURL
// disables the fast path; lookups then go straight to Postgres.
func New(redisURL string, database *db.DB, ttl time.Duration) (*Cache, error) {
	c := &Cache{db: database, ttl: ttl}

	if redisURL == "" {
		log.Println("[Cache] Redis not configured, using database lookups only")
		return c, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	c.redis = client
	return c, nil
}

func (c *Cache) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}

// Lookup returns the previously stored artifact for an identical request,
// or nil on a miss. Lookup errors degrade to a miss — the cache must never
// fail a run that could synthesize fresh audio.
func (c *Cache) Lookup(ctx context.Context, key Key) (*models.SynthesisResult, error) {
	if c.redis != nil {
		audioURL, err := c.redis.Get(ctx, keyPrefix+key.Fingerprint()).Result()
		if err == nil && audioURL != "" {
			log.Printf("[Cache] Redis hit for fingerprint %.12s...", key.Fingerprint())
			return &models.SynthesisResult{
				AudioURL:       audioURL,
				CharacterCount: len([]rune(key.Content)),
				FromCache:      true,
			}, nil
		}
		if err != nil && err != redis.Nil {
			log.Printf("[Cache] Redis lookup failed, falling back to database: %v", err)
		}
	}

	entry, err := c.db.FindHistoryExact(ctx, key.Identity, key.Content, key.Voice, key.Rate)
	if err != nil {
		log.Printf("[Cache] Database lookup failed, treating as miss: %v", err)
		return nil, nil
	}
	if entry == nil {
		return nil, nil
	}

	c.Record(ctx, key, entry.AudioURL)

	log.Printf("[Cache] Database hit for user %s (voice=%s)", key.Identity, key.Voice)
	return &models.SynthesisResult{
		AudioURL:       entry.AudioURL,
		CharacterCount: len([]rune(key.Content)),
		FromCache:      true,
	}, nil
}

// Record stores the fingerprint → URL mapping in Redis. The durable record
// is the history row written by the pipeline; Redis is best-effort.
func (c *Cache) Record(ctx context.Context, key Key, audioURL string) {
	if c.redis == nil || audioURL == "" {
		return
	}
	if err := c.redis.Set(ctx, keyPrefix+key.Fingerprint(), audioURL, c.ttl).Err(); err != nil {
		log.Printf("[Cache] Failed to record fingerprint in redis: %v", err)
	}
}
