package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"testing"
	"time"

	"jpjportal_go/database/dbtest"
	"jpjportal_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryArchiveStore struct {
	objects map[string][]byte
	failPut error
}

func newMemoryArchiveStore() *memoryArchiveStore {
	return &memoryArchiveStore{objects: map[string][]byte{}}
}

func (m *memoryArchiveStore) Put(_ context.Context, key string, body []byte, _ string) error {
	if m.failPut != nil {
		return m.failPut
	}
	m.objects[key] = append([]byte(nil), body...)
	return nil
}

func (m *memoryArchiveStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	b, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func seedActivity(t *testing.T, svc *LogArchiveService, at time.Time, action string) {
	t.Helper()
	row := models.ActivityLog{
		UserID:   1,
		Action:   action,
		Resource: "bookings",
		Details:  models.JSON(`{"path":"/portal/bookings"}`),
	}
	row.CreatedAt = at
	require.NoError(t, svc.db.Create(&row).Error)
}

func TestArchiveOldLogs(t *testing.T) {
	db := dbtest.New(t)
	store := newMemoryArchiveStore()
	svc := NewLogArchiveService(db, nil, store)
	now := time.Date(2030, 3, 1, 2, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	seedActivity(t, svc, now.AddDate(0, 0, -45), "CREATE")
	seedActivity(t, svc, now.AddDate(0, 0, -40), "CANCEL")
	seedActivity(t, svc, now.AddDate(0, 0, -2), "CREATE")

	archive, err := svc.ArchiveOldLogs(context.Background(), 30)
	require.NoError(t, err)
	require.NotNil(t, archive)
	assert.Equal(t, "completed", archive.Status)
	assert.Equal(t, 2, archive.RecordCount)
	assert.Equal(t, "logs/archived/2030/01/activity_logs_2030-01-30.zip", archive.S3Key)

	var left int64
	require.NoError(t, db.Model(&models.ActivityLog{}).Count(&left).Error)
	assert.Equal(t, int64(1), left)

	body, name, err := svc.DownloadArchivedLogs(context.Background(), archive.ID)
	require.NoError(t, err)
	defer body.Close()
	assert.Equal(t, "activity_logs_2030-01-30.zip", name)

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)

	files := map[string]*zip.File{}
	for _, f := range zr.File {
		files[f.Name] = f
	}
	require.Contains(t, files, "activity_logs.json")
	require.Contains(t, files, "metadata.json")
	require.Contains(t, files, "activity_logs.csv")

	rc, err := files["activity_logs.csv"].Open()
	require.NoError(t, err)
	records, err := csv.NewReader(rc).ReadAll()
	rc.Close()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "CREATE", records[1][2])
	assert.Equal(t, "CANCEL", records[2][2])
	assert.Equal(t, `{"path":"/portal/bookings"}`, records[1][8])

	list, err := svc.GetArchivedLogs(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestArchiveOldLogsGuards(t *testing.T) {
	db := dbtest.New(t)
	store := newMemoryArchiveStore()
	svc := NewLogArchiveService(db, nil, store)

	_, err := svc.ArchiveOldLogs(context.Background(), 3)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	archive, err := svc.ArchiveOldLogs(context.Background(), 30)
	require.NoError(t, err)
	assert.Nil(t, archive, "nothing old enough")
	assert.Empty(t, store.objects)
}

func TestArchiveOldLogsUploadFailureKeepsRows(t *testing.T) {
	db := dbtest.New(t)
	store := newMemoryArchiveStore()
	store.failPut = errors.New("bucket unavailable")
	svc := NewLogArchiveService(db, nil, store)
	now := time.Date(2030, 3, 1, 2, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	seedActivity(t, svc, now.AddDate(0, 0, -60), "CREATE")

	_, err := svc.ArchiveOldLogs(context.Background(), 30)
	require.Error(t, err)

	var left int64
	require.NoError(t, db.Model(&models.ActivityLog{}).Count(&left).Error)
	assert.Equal(t, int64(1), left)

	var failed models.LogArchive
	require.NoError(t, db.First(&failed).Error)
	assert.Equal(t, "failed", failed.Status)
	assert.Contains(t, failed.Error, "bucket unavailable")

	_, _, err = svc.DownloadArchivedLogs(context.Background(), failed.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFlushCachedLogsNeedsRedis(t *testing.T) {
	svc := NewLogArchiveService(dbtest.New(t), nil, nil)
	_, err := svc.FlushCachedLogsToDatabase(context.Background(), time.Hour)
	assert.Error(t, err)
}
