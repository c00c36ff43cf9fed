package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"jpjportal_go/models"
	"jpjportal_go/utils"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Notification types
const (
	TypeInfo    = "info"
	TypeSuccess = "success"
	TypeWarning = "warning"
	TypeError   = "error"
)

// queued is what goes on the Redis list. The DB row written by the worker is
// the source of truth.
type queued struct {
	UserIDs   []uint    `json:"user_ids"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

const redisListKey = "notifications:queue"

// WSHub interface for WebSocket broadcasting
type WSHub interface {
	BroadcastToUser(userID uint, message interface{})
}

// Service creates user notifications, through a Redis queue when one is
// available and straight into the database otherwise.
type Service struct {
	db    *gorm.DB
	redis *redis.Client
	wsHub WSHub
}

// NewService builds a service. redis and hub may be nil.
func NewService(db *gorm.DB, rdb *redis.Client, hub WSHub) *Service {
	return &Service{db: db, redis: rdb, wsHub: hub}
}

// Notify stores a notification for each user and pushes it to their open
// pages. Failures are logged; a lost notification never fails the caller.
func (s *Service) Notify(ctx context.Context, userIDs []uint, title, message, typ string) {
	if err := s.EnqueueOrCreate(ctx, userIDs, title, message, typ); err != nil {
		logrus.WithError(err).WithField("title", title).Warn("Failed to create notification")
	}
}

// EnqueueOrCreate stores notifications using the Redis queue if enabled, else direct insert.
func (s *Service) EnqueueOrCreate(ctx context.Context, userIDs []uint, title, message, typ string) error {
	if len(userIDs) == 0 {
		return errors.New("no user ids")
	}
	n := queued{UserIDs: userIDs, Title: title, Message: message, Type: typ, CreatedAt: time.Now().UTC()}

	if s.redis != nil {
		b, err := json.Marshal(n)
		if err != nil {
			return err
		}
		if err = s.redis.RPush(ctx, redisListKey, b).Err(); err == nil {
			return nil
		}
		logrus.WithError(err).Warn("Redis notification queue failed, falling back to direct insert")
	}
	return s.createDirect(ctx, n)
}

func (s *Service) createDirect(ctx context.Context, n queued) error {
	if len(n.UserIDs) == 0 {
		return nil
	}
	typ := n.Type
	if typ == "" {
		typ = TypeInfo
	}
	rows := make([]models.Notification, 0, len(n.UserIDs))
	for _, uid := range n.UserIDs {
		rows = append(rows, models.Notification{
			UserID:  uid,
			Title:   n.Title,
			Message: n.Message,
			Type:    typ,
		})
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return err
	}

	if s.wsHub != nil {
		for _, row := range rows {
			s.wsHub.BroadcastToUser(row.UserID, map[string]interface{}{
				"type": "notification",
				"data": utils.ToNotificationDTO(row),
			})
		}
	}
	return nil
}

// Flush drains up to batchSize queued notifications into the database.
func (s *Service) Flush(ctx context.Context, batchSize int) (int, error) {
	if s.redis == nil {
		return 0, nil
	}
	vals, err := s.redis.LRange(ctx, redisListKey, 0, int64(batchSize-1)).Result()
	if err != nil || len(vals) == 0 {
		return 0, err
	}
	// trim right away so a second worker does not pick the same items
	if err := s.redis.LTrim(ctx, redisListKey, int64(len(vals)), -1).Err(); err != nil {
		logrus.WithError(err).Warn("Notification queue trim failed")
	}
	done := 0
	for _, raw := range vals {
		var q queued
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			continue
		}
		if err := s.createDirect(ctx, q); err != nil {
			logrus.WithError(err).Error("Queued notification insert failed")
			continue
		}
		done++
	}
	return done, nil
}

// StartWorker polls the Redis queue until stop is closed.
func (s *Service) StartWorker(stop <-chan struct{}) {
	if s.redis == nil {
		logrus.Info("Redis unavailable; notification worker not started")
		return
	}
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if _, err := s.Flush(context.Background(), 200); err != nil {
					logrus.WithError(err).Warn("Notification flush failed")
				}
			}
		}
	}()
}

// List returns a page of the user's notifications, newest first, and the unread count.
func (s *Service) List(ctx context.Context, userID uint, limit, offset int) ([]models.Notification, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows []models.Notification
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").Limit(limit).Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	var unread int64
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND `read` = ?", userID, false).Count(&unread).Error; err != nil {
		return nil, 0, err
	}
	return rows, unread, nil
}

// MarkRead marks one notification (or all when id is 0) as read.
func (s *Service) MarkRead(ctx context.Context, userID, id uint) error {
	q := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ? AND `read` = ?", userID, false)
	if id != 0 {
		q = q.Where("id = ?", id)
	}
	now := time.Now()
	return q.Updates(map[string]interface{}{"read": true, "read_at": &now}).Error
}
