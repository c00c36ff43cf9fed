package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"jpjportal_go/models"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const redisKeyPrefix = "workflow:"

// RedisStore keeps states as JSON with a TTL matching their expiry.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, st State) error {
	ttl := time.Until(st.ExpiresAt)
	if ttl <= 0 {
		return ErrNotFound
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode workflow: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+st.Token, raw, ttl).Err(); err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, token string) (*State, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+token).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	return &st, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, redisKeyPrefix+token).Err()
}

// DBStore keeps states in the workflow_states table. Expired rows are ignored
// on load and removed by Purge.
type DBStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db, now: time.Now}
}

func (s *DBStore) Save(ctx context.Context, st State) error {
	fields, err := json.Marshal(st.Fields)
	if err != nil {
		return fmt.Errorf("encode workflow fields: %w", err)
	}
	row := models.WorkflowState{
		Token:     st.Token,
		Kind:      st.Kind,
		UserID:    st.UserID,
		Stage:     st.Stage,
		Fields:    models.JSON(fields),
		ExpiresAt: st.ExpiresAt,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"stage", "fields", "expires_at", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	return nil
}

func (s *DBStore) Load(ctx context.Context, token string) (*State, error) {
	var row models.WorkflowState
	err := s.db.WithContext(ctx).
		Where("token = ? AND expires_at > ?", token, s.now()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	st := State{
		Token:     row.Token,
		Kind:      row.Kind,
		UserID:    row.UserID,
		Stage:     row.Stage,
		ExpiresAt: row.ExpiresAt,
	}
	if !row.Fields.IsNull() {
		if err := json.Unmarshal(row.Fields, &st.Fields); err != nil {
			return nil, fmt.Errorf("decode workflow fields: %w", err)
		}
	}
	return &st, nil
}

func (s *DBStore) Delete(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Unscoped().Where("token = ?", token).Delete(&models.WorkflowState{}).Error
}

// Purge removes expired rows and reports how many were deleted.
func (s *DBStore) Purge(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Unscoped().Where("expires_at <= ?", s.now()).Delete(&models.WorkflowState{})
	return res.RowsAffected, res.Error
}
