package config

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

var (
	rdb         *redis.Client
	locker      *redislock.Client
	objectCache ObjectCache
)

// ObjectCache keeps JSON-encoded objects under string keys. Redis backs it unless
// SetObjectCache installs another store.
type ObjectCache interface {
	GetObject(ctx context.Context, key string, dest interface{}) (bool, error)
	SetObject(ctx context.Context, key string, obj interface{}, exp time.Duration) error
	Remove(ctx context.Context, keys ...string) error
}

type redisObjectCache struct {
	client *redis.Client
}

func (c redisObjectCache) GetObject(ctx context.Context, key string, dest interface{}) (bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c redisObjectCache) SetObject(ctx context.Context, key string, obj interface{}, exp time.Duration) error {
	objInByte, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, objInByte, exp).Err()
}

func (c redisObjectCache) Remove(ctx context.Context, keys ...string) error {
	_, err := c.client.Del(ctx, keys...).Result()
	return err
}

// SetObjectCache overrides the object cache. Passing nil goes back to Redis.
func SetObjectCache(c ObjectCache) {
	objectCache = c
}

func getObjectCache() ObjectCache {
	if objectCache != nil {
		return objectCache
	}
	if rdb != nil {
		return redisObjectCache{client: rdb}
	}
	return nil
}

func GetRedisDB() *redis.Client {
	return rdb
}

func GetRedisLock() *redislock.Client {
	return locker
}

// SetRedis swaps the global client (and its lock client). Passing nil disables Redis.
func SetRedis(client *redis.Client) {
	rdb = client
	if client == nil {
		locker = nil
		return
	}
	locker = redislock.New(client)
}

func GetRedisObject(ctx context.Context, key string, dest interface{}) (bool, error) {
	c := getObjectCache()
	if c == nil {
		return false, nil
	}
	return c.GetObject(ctx, key, dest)
}

func SetRedisObject(ctx context.Context, key string, obj interface{}, exp time.Duration) error {
	c := getObjectCache()
	if c == nil {
		return nil
	}
	return c.SetObject(ctx, key, obj, exp)
}

func RemoveRedisKey(ctx context.Context, keys ...string) error {
	c := getObjectCache()
	if c == nil {
		return nil
	}
	return c.Remove(ctx, keys...)
}

func init() {
	// Load env from .env
	godotenv.Load()
}

// ConnectRedisWithRetry connects and sets the global Redis client + lock client.
// Redis is optional: without REDIS_ADDRESS the summary cache and job leases are disabled.
func ConnectRedisWithRetry(ctx context.Context) {
	redisAddr := os.Getenv("REDIS_ADDRESS")
	if redisAddr == "" {
		log.Printf("REDIS_ADDRESS not set; running without redis")
		return
	}

	var attempt int
	for {
		attempt++
		client := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
			PoolSize: 100,
		})
		err := client.Ping(ctx).Err()
		if err == nil {
			SetRedis(client)
			log.Printf("connected to redis (attempt=%d addr=%s)", attempt, redisAddr)
			return
		}
		_ = client.Close()

		sleep := backoff(attempt)
		log.Printf("failed to connect redis (attempt=%d addr=%s): %v; retrying in %s", attempt, redisAddr, err, sleep)
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}
