package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diagnosis/autoescola/services/bookings/internal/domain"
)

// DraftRepository stores wizard drafts. Every save refreshes the TTL.
type DraftRepository interface {
	Save(ctx context.Context, d *domain.Draft, ttl time.Duration) error
	Get(ctx context.Context, id string) (*domain.Draft, error)
	Delete(ctx context.Context, id string) error
}

// DraftStore is the part of redis.Cmdable the draft repository uses.
type DraftStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type draftRepository struct {
	client DraftStore
}

func NewDraftRepository(client DraftStore) DraftRepository {
	return &draftRepository{client: client}
}

func draftKey(id string) string {
	return "wizard:draft:" + id
}

func (r *draftRepository) Save(ctx context.Context, d *domain.Draft, ttl time.Duration) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return r.client.Set(ctx, draftKey(d.ID), payload, ttl).Err()
}

func (r *draftRepository) Get(ctx context.Context, id string) (*domain.Draft, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	raw, err := r.client.Get(ctx, draftKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrDraftNotFound
	}
	if err != nil {
		return nil, err
	}

	var d domain.Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode draft %s: %w", id, err)
	}
	return &d, nil
}

func (r *draftRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	n, err := r.client.Del(ctx, draftKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrDraftNotFound
	}
	return nil
}
