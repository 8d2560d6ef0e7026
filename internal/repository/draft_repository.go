package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ucmas-ksa/portal-api/internal/models"
	appErrors "github.com/ucmas-ksa/portal-api/pkg/errors"
)

// DraftRepository stores in-progress registration wizards in Redis. Drafts
// are throwaway state: they live under a TTL and nothing else references
// them, so losing Redis loses only unfinished wizard sessions.
type DraftRepository struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewDraftRepository constructs a draft repository.
func NewDraftRepository(client *redis.Client, logger *zap.Logger, ttl time.Duration) *DraftRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DraftRepository{client: client, logger: logger, ttl: ttl}
}

func draftKey(ownerID, draftID string) string {
	return fmt.Sprintf("draft:%s:%s", ownerID, draftID)
}

// Save writes the draft under its owner's key, refreshing the TTL.
func (r *DraftRepository) Save(ctx context.Context, draft *models.RegistrationDraft) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}
	payload, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft %s: %w", draft.ID, err)
	}
	key := draftKey(draft.OwnerID, draft.ID)
	if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Get returns an owner's draft, or ErrCacheMiss when it expired or never
// existed. Owner scoping is part of the key, so one user can never read
// another's draft.
func (r *DraftRepository) Get(ctx context.Context, ownerID, draftID string) (*models.RegistrationDraft, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}
	key := draftKey(ownerID, draftID)
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var draft models.RegistrationDraft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, fmt.Errorf("unmarshal draft %s: %w", draftID, err)
	}
	return &draft, nil
}

// Delete discards a draft, typically after a successful commit.
func (r *DraftRepository) Delete(ctx context.Context, ownerID, draftID string) error {
	if r.client == nil {
		return nil
	}
	key := draftKey(ownerID, draftID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// ListByOwner returns all live drafts of one user.
func (r *DraftRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.RegistrationDraft, error) {
	if r.client == nil {
		return nil, nil
	}
	pattern := draftKey(ownerID, "*")
	var drafts []models.RegistrationDraft
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		raw, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("redis get %s: %w", iter.Val(), err)
		}
		var draft models.RegistrationDraft
		if err := json.Unmarshal(raw, &draft); err != nil {
			r.logger.Warn("skipping unreadable draft", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		drafts = append(drafts, draft)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan pattern %s: %w", pattern, err)
	}
	return drafts, nil
}

// Close releases the underlying Redis connection if present.
func (r *DraftRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
