package services

import (
	"context"
	"testing"

	"jpjportal_go/database/dbtest"
	"jpjportal_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFileStore struct {
	uploaded []string
	deleted  []string
}

func (f *fakeFileStore) UploadFile(_ context.Context, folder, filename string, _ []byte) (string, error) {
	url := "https://bucket.s3.test.amazonaws.com/" + folder + "/" + filename
	f.uploaded = append(f.uploaded, url)
	return url, nil
}

func (f *fakeFileStore) DeleteFile(_ context.Context, url string) error {
	f.deleted = append(f.deleted, url)
	return nil
}

func TestMaterialUploadListDelete(t *testing.T) {
	db := dbtest.New(t)
	store := &fakeFileStore{}
	svc := NewMaterialService(db, store, []string{"pdf", "png"}, 1024)
	ctx := context.Background()

	m, err := svc.Upload(ctx, MaterialInput{Title: "Road signs", Category: "road_signs"}, "signs.pdf", []byte("pdf"))
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.s3.test.amazonaws.com/materials/road_signs/signs.pdf", m.FileURL)

	_, err = svc.Upload(ctx, MaterialInput{Title: "Manual", Category: "theory"}, "manual.pdf", []byte("pdf"))
	require.NoError(t, err)

	rows, err := svc.List(ctx, "road_signs")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, svc.Delete(ctx, m.ID))
	assert.Equal(t, []string{m.FileURL}, store.deleted)
	assert.ErrorIs(t, svc.Delete(ctx, m.ID), ErrNotFound)

	var count int64
	require.NoError(t, db.Model(&models.LearningMaterial{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMaterialUploadRejects(t *testing.T) {
	svc := NewMaterialService(dbtest.New(t), &fakeFileStore{}, []string{"pdf"}, 4)
	ctx := context.Background()
	valid := MaterialInput{Title: "Manual", Category: "theory"}

	tests := []struct {
		name  string
		in    MaterialInput
		file  string
		body  []byte
		field string
	}{
		{"extension", valid, "run.exe", []byte("x"), "file"},
		{"empty", valid, "a.pdf", nil, "file"},
		{"too large", valid, "a.pdf", []byte("12345"), "file"},
		{"category", MaterialInput{Title: "x", Category: "gossip"}, "a.pdf", []byte("x"), "category"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Upload(ctx, tc.in, tc.file, tc.body)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tc.field)
		})
	}
}
