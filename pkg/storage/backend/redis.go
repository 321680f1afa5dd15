package backend

import (
	"context"
	"encoding/json"

	goredis "github.com/redis/go-redis/v9"

	"github.com/matzehuels/trek/pkg/errors"
)

// Redis implements a Redis-backed backend for shared low-latency
// deployments. Node records are stored as JSON strings; child listings
// are maintained as sets so listing never scans the keyspace.
type Redis struct {
	client *goredis.Client
}

// NewRedis connects to the Redis server at addr (host:port) and
// verifies the connection.
func NewRedis(ctx context.Context, addr string) (*Redis, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "connect to redis at %s", addr)
	}
	return &Redis{client: client}, nil
}

const redisPrefix = "trek"

func redisNodeKey(traj, fullName string) string {
	return redisPrefix + ":" + traj + ":node:" + fullName
}

func redisChildrenKey(traj, fullName string) string {
	return redisPrefix + ":" + traj + ":children:" + fullName
}

func redisTrajSetKey() string {
	return redisPrefix + ":trajectories"
}

// WriteNode upserts one node record and registers it with its parent's
// child set.
func (r *Redis) WriteNode(ctx context.Context, traj string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "encode node %q", rec.FullName)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, redisNodeKey(traj, rec.FullName), data, 0)
	if parent, ok := parentOf(rec.FullName); ok {
		pipe.SAdd(ctx, redisChildrenKey(traj, parent), lastSegment(rec.FullName))
	}
	pipe.SAdd(ctx, redisTrajSetKey(), traj)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "store node %q", rec.FullName)
	}
	return nil
}

// ReadNode reads one node record.
func (r *Redis) ReadNode(ctx context.Context, traj, fullName string) (Record, error) {
	data, err := r.client.Get(ctx, redisNodeKey(traj, fullName)).Bytes()
	if err == goredis.Nil {
		return Record{}, errors.New(errors.ErrCodeNotFound,
			"trajectory %q has no stored node %q", traj, fullName)
	}
	if err != nil {
		return Record{}, errors.Wrap(errors.ErrCodeStorage, err, "read node %q", fullName)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, errors.Wrap(errors.ErrCodeStorage, err, "decode node %q", fullName)
	}
	return rec, nil
}

// ListChildren returns the names of the direct children of fullName.
func (r *Redis) ListChildren(ctx context.Context, traj, fullName string) ([]string, error) {
	names, err := r.client.SMembers(ctx, redisChildrenKey(traj, fullName)).Result()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "list children of %q", fullName)
	}
	return names, nil
}

// DeleteNode removes one node record and deregisters it from its
// parent's child set.
func (r *Redis) DeleteNode(ctx context.Context, traj, fullName string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, redisNodeKey(traj, fullName))
	pipe.Del(ctx, redisChildrenKey(traj, fullName))
	if parent, ok := parentOf(fullName); ok {
		pipe.SRem(ctx, redisChildrenKey(traj, parent), lastSegment(fullName))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "delete node %q", fullName)
	}
	return nil
}

// ListTrajectories returns the names of all stored trajectories.
func (r *Redis) ListTrajectories(ctx context.Context) ([]string, error) {
	names, err := r.client.SMembers(ctx, redisTrajSetKey()).Result()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "list trajectories")
	}
	return names, nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Ensure Redis implements Backend.
var _ Backend = (*Redis)(nil)
