package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"jpjportal_go/middleware"
	"jpjportal_go/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// minArchiveDays keeps recent audit history queryable in the database.
const minArchiveDays = 7

// ArchiveStore is where archive zips are kept.
type ArchiveStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// S3ArchiveStore keeps archives in an S3 bucket.
type S3ArchiveStore struct {
	client *s3.Client
	bucket string
}

// NewS3ArchiveStore builds a store from a loaded AWS config.
func NewS3ArchiveStore(cfg aws.Config, bucket string) *S3ArchiveStore {
	return &S3ArchiveStore{client: s3.NewFromConfig(cfg), bucket: bucket}
}

func (s *S3ArchiveStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	return err
}

func (s *S3ArchiveStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

// LogArchiveService flushes cached activity logs and ships old ones to storage.
type LogArchiveService struct {
	db    *gorm.DB
	redis *redis.Client
	store ArchiveStore
	now   func() time.Time
}

// ArchivedLog is the exported representation stored inside archives
type ArchivedLog struct {
	ID         uint           `json:"id"`
	UserID     uint           `json:"user_id"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID uint           `json:"resource_id"`
	Details    map[string]any `json:"details,omitempty"`
	IPAddress  string         `json:"ip_address"`
	UserAgent  string         `json:"user_agent"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NewLogArchiveService builds the service. rdb and store may be nil; the
// operations needing them then report an error.
func NewLogArchiveService(db *gorm.DB, rdb *redis.Client, store ArchiveStore) *LogArchiveService {
	return &LogArchiveService{db: db, redis: rdb, store: store, now: time.Now}
}

// FlushCachedLogsToDatabase moves cached logs older than maxAge into the database.
func (las *LogArchiveService) FlushCachedLogsToDatabase(ctx context.Context, maxAge time.Duration) (int, error) {
	if las.redis == nil {
		return 0, errors.New("redis client not available")
	}

	cutoff := las.now().Add(-maxAge)
	keys, err := las.redis.ZRangeByScore(ctx, middleware.ActivityQueueKey, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get cached logs: %w", err)
	}

	processed, failed := 0, 0
	for _, key := range keys {
		raw, err := las.redis.Get(ctx, key).Result()
		if err == redis.Nil {
			// expired before we got to it
			las.redis.ZRem(ctx, middleware.ActivityQueueKey, key)
			continue
		}
		if err != nil {
			logrus.WithError(err).WithField("key", key).Error("Failed to read cached log")
			failed++
			continue
		}

		var entry models.ActivityLog
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			logrus.WithError(err).WithField("key", key).Error("Failed to decode cached log")
			failed++
			continue
		}
		if err := las.db.WithContext(ctx).Create(&entry).Error; err != nil {
			logrus.WithError(err).WithField("key", key).Error("Failed to save cached log")
			failed++
			continue
		}

		pipe := las.redis.Pipeline()
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, middleware.ActivityQueueKey, key)
		if _, err := pipe.Exec(ctx); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("Failed to remove flushed log from cache")
		}
		processed++
	}

	if processed > 0 || failed > 0 {
		logrus.WithFields(logrus.Fields{"flushed": processed, "errors": failed}).Info("Flushed cached activity logs")
	}
	return processed, nil
}

// ArchiveOldLogs ships logs older than daysOld to the archive store and
// deletes them from the database. It returns the archive record, or nil
// when nothing was old enough.
func (las *LogArchiveService) ArchiveOldLogs(ctx context.Context, daysOld int) (*models.LogArchive, error) {
	if daysOld < minArchiveDays {
		return nil, NewValidationError("days_old", fmt.Sprintf("must be at least %d", minArchiveDays))
	}
	if las.store == nil {
		return nil, errors.New("archive storage not configured")
	}

	now := las.now()
	cutoff := now.AddDate(0, 0, -daysOld)
	db := las.db.WithContext(ctx)

	var all []ArchivedLog
	var lastID uint
	const batchSize = 1000
	for {
		var rows []models.ActivityLog
		if err := db.Where("created_at < ? AND id > ?", cutoff, lastID).
			Order("id").Limit(batchSize).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to fetch logs for archiving: %w", err)
		}
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			all = append(all, toArchivedLog(row))
		}
		lastID = rows[len(rows)-1].ID
	}

	if len(all) == 0 {
		logrus.Info("No activity logs to archive")
		return nil, nil
	}

	fileName := fmt.Sprintf("activity_logs_%s.zip", cutoff.Format("2006-01-02"))
	buf, err := buildLogZip(all, fileName, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	key := fmt.Sprintf("logs/archived/%d/%02d/%s", cutoff.Year(), cutoff.Month(), fileName)
	archive := models.LogArchive{
		FileName:    fileName,
		S3Key:       key,
		EndDate:     cutoff,
		RecordCount: len(all),
		FileSize:    int64(buf.Len()),
		Status:      "pending",
	}

	if err := las.store.Put(ctx, key, buf.Bytes(), "application/zip"); err != nil {
		archive.Status = "failed"
		archive.Error = err.Error()
		if dbErr := db.Create(&archive).Error; dbErr != nil {
			logrus.WithError(dbErr).Error("Failed to record failed archive")
		}
		return nil, fmt.Errorf("failed to upload archive: %w", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("created_at < ? AND id <= ?", cutoff, lastID).Delete(&models.ActivityLog{}).Error; err != nil {
			return err
		}
		archive.Status = "completed"
		return tx.Create(&archive).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	logrus.WithFields(logrus.Fields{"key": key, "records": len(all)}).Info("Archived activity logs")
	return &archive, nil
}

func toArchivedLog(row models.ActivityLog) ArchivedLog {
	out := ArchivedLog{
		ID:         row.ID,
		UserID:     row.UserID,
		Action:     row.Action,
		Resource:   row.Resource,
		ResourceID: row.ResourceID,
		IPAddress:  row.IPAddress,
		UserAgent:  row.UserAgent,
		CreatedAt:  row.CreatedAt,
	}
	if len(row.Details) > 0 {
		var details map[string]any
		if err := json.Unmarshal(row.Details, &details); err == nil {
			out.Details = details
		}
	}
	return out
}

// buildLogZip writes the logs as JSON and CSV plus a metadata file.
func buildLogZip(logs []ArchivedLog, fileName string, now time.Time) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	jsonFile, err := zw.Create("activity_logs.json")
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(jsonFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{
		"export_date":    now.UTC(),
		"record_count":   len(logs),
		"format_version": "1.0",
		"logs":           logs,
	}); err != nil {
		return nil, err
	}

	metaFile, err := zw.Create("metadata.json")
	if err != nil {
		return nil, err
	}
	if err := json.NewEncoder(metaFile).Encode(map[string]any{
		"file_name":    fileName,
		"created_at":   now.UTC(),
		"record_count": len(logs),
		"date_range": map[string]any{
			"start": logs[0].CreatedAt,
			"end":   logs[len(logs)-1].CreatedAt,
		},
		"schema_version": "1.0",
		"description":    "JPJ Portal Activity Logs Archive",
	}); err != nil {
		return nil, err
	}

	csvFile, err := zw.Create("activity_logs.csv")
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(csvFile)
	_ = w.Write([]string{"ID", "User ID", "Action", "Resource", "Resource ID", "IP Address", "User Agent", "Created At", "Details"})
	for _, l := range logs {
		details := ""
		if l.Details != nil {
			if b, err := json.Marshal(l.Details); err == nil {
				details = string(b)
			}
		}
		_ = w.Write([]string{
			strconv.FormatUint(uint64(l.ID), 10),
			strconv.FormatUint(uint64(l.UserID), 10),
			l.Action,
			l.Resource,
			strconv.FormatUint(uint64(l.ResourceID), 10),
			l.IPAddress,
			l.UserAgent,
			l.CreatedAt.Format("2006-01-02 15:04:05"),
			details,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf, nil
}

// GetArchivedLogs lists archive records, newest first.
func (las *LogArchiveService) GetArchivedLogs(ctx context.Context) ([]models.LogArchive, error) {
	var archives []models.LogArchive
	if err := las.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&archives).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve archived logs: %w", err)
	}
	return archives, nil
}

// DownloadArchivedLogs opens a completed archive. The caller closes the reader.
func (las *LogArchiveService) DownloadArchivedLogs(ctx context.Context, archiveID uint) (io.ReadCloser, string, error) {
	var archive models.LogArchive
	if err := las.db.WithContext(ctx).First(&archive, archiveID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	if archive.Status != "completed" {
		return nil, "", ErrNotFound
	}
	if las.store == nil {
		return nil, "", errors.New("archive storage not configured")
	}
	body, err := las.store.Get(ctx, archive.S3Key)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download archive: %w", err)
	}
	return body, archive.FileName, nil
}
