package middleware

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"jpjportal_go/database"
	"jpjportal_go/models"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// ActivityQueueKey is the sorted set of cached activity log keys, scored by
// creation time. The log archive service drains it.
const ActivityQueueKey = "logs:queue"

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		logrus.WithFields(logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"duration":   time.Since(start).String(),
			"ip":         c.IP(),
			"user_agent": c.Get("User-Agent"),
		}).Info("HTTP Request")

		return err
	}
}

const activityLoggedKey = "activity_logged"

// LogActivity records a user action. Entries are cached in Redis and flushed
// to the database in batches; without Redis they are written directly.
func LogActivity(c *fiber.Ctx, action, resource string, resourceID uint, details interface{}) {
	c.Locals(activityLoggedKey, true)
	var userID uint
	if user, err := GetCurrentUser(c); err == nil {
		userID = user.ID
	}

	activityLog := models.ActivityLog{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IPAddress:  c.IP(),
		UserAgent:  c.Get("User-Agent"),
	}
	activityLog.CreatedAt = time.Now()

	meta := map[string]interface{}{
		"original_details": details,
		"integrity_hash":   integrityHash(activityLog),
		"request_id":       c.Get("X-Request-ID", requestID()),
		"method":           c.Method(),
		"path":             c.Path(),
		"status_code":      c.Response().StatusCode(),
	}
	if b, err := json.Marshal(meta); err == nil {
		activityLog.Details = b
	}

	go func(al models.ActivityLog) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("panic recovered in LogActivity goroutine")
			}
		}()

		if err := cacheActivityLog(context.Background(), al); err != nil {
			if database.DB == nil {
				return
			}
			if dbErr := database.DB.Create(&al).Error; dbErr != nil {
				logrus.WithError(dbErr).Error("Failed to save activity log to database")
			}
		}
	}(activityLog)
}

// integrityHash fingerprints the fields of a log entry for tamper detection.
func integrityHash(log models.ActivityLog) string {
	data := fmt.Sprintf("%d:%s:%s:%d:%s:%s:%s",
		log.UserID,
		log.Action,
		log.Resource,
		log.ResourceID,
		log.IPAddress,
		log.UserAgent,
		log.CreatedAt.Format(time.RFC3339),
	)
	return fmt.Sprintf("%x", md5.Sum([]byte(data)))
}

func requestID() string {
	now := time.Now().UnixNano()
	return fmt.Sprintf("req_%d_%x", now, md5.Sum([]byte(strconv.FormatInt(now, 10))))
}

// cacheActivityLog stores an entry in Redis for 24 hours and queues its key.
func cacheActivityLog(ctx context.Context, log models.ActivityLog) error {
	redisClient := database.GetRedisClient()
	if redisClient == nil {
		return fmt.Errorf("redis client is nil")
	}

	logData, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}

	cacheKey := fmt.Sprintf("log:%d:%s:%d", log.UserID, log.Action, time.Now().UnixNano())
	if err := redisClient.Set(ctx, cacheKey, logData, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to cache log: %w", err)
	}

	if err := redisClient.ZAdd(ctx, ActivityQueueKey, &redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: cacheKey,
	}).Err(); err != nil {
		logrus.WithError(err).Error("Failed to add log to processing queue")
	}
	return nil
}

// LogActivityMiddleware logs successful state-changing requests.
func LogActivityMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodGet && !strings.HasSuffix(c.Path(), "/cancel") {
			return c.Next()
		}
		if strings.HasPrefix(c.Path(), "/login") || strings.HasPrefix(c.Path(), "/api/auth/") {
			return c.Next()
		}

		err := c.Next()

		// the handler already wrote a more specific entry
		if logged, _ := c.Locals(activityLoggedKey).(bool); logged {
			return err
		}
		action := ActionFor(c.Method(), c.Path())
		if action == "" {
			return err
		}

		if c.Response().StatusCode() < 400 {
			LogActivity(c, action, resourceFor(c.Path()), paramID(c), nil)
		}
		return err
	}
}

// ActionFor maps a request to an audit action. Cancellation links are GETs.
func ActionFor(method, path string) string {
	if strings.HasSuffix(path, "/cancel") {
		return "CANCEL"
	}
	switch method {
	case fiber.MethodPost:
		return "CREATE"
	case fiber.MethodPut, fiber.MethodPatch:
		return "UPDATE"
	case fiber.MethodDelete:
		return "DELETE"
	}
	return ""
}

// resourceFor picks the resource segment of /portal/<resource>/..., /admin/<resource>/...
// or /api/<resource>/...
func resourceFor(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return ""
}

func paramID(c *fiber.Ctx) uint {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}
