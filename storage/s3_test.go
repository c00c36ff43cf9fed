package storage

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	s3iface.S3API
	put     *s3.PutObjectInput
	body    []byte
	deleted string
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	f.put = in
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.deleted = aws.StringValue(in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestUploadAndDelete(t *testing.T) {
	client := &fakeS3{}
	svc := NewWithClient(client, "jpj-materials", "ap-southeast-1")
	svc.now = func() time.Time { return time.Date(2030, 4, 2, 0, 0, 0, 0, time.UTC) }

	url, err := svc.UploadFile(context.Background(), "materials/road_signs", "Road Signs Handbook.PDF", []byte("%PDF-1.7"))
	require.NoError(t, err)

	key := aws.StringValue(client.put.Key)
	assert.Regexp(t, `^materials/road_signs/2030/04/[0-9a-f-]{16}\.pdf$`, key)
	assert.Equal(t, "application/pdf", aws.StringValue(client.put.ContentType))
	assert.Equal(t, "public-read", aws.StringValue(client.put.ACL))
	assert.Equal(t, []byte("%PDF-1.7"), client.body)
	assert.Equal(t, "https://jpj-materials.s3.ap-southeast-1.amazonaws.com/"+key, url)

	require.NoError(t, svc.DeleteFile(context.Background(), url))
	assert.Equal(t, key, client.deleted)

	assert.Error(t, svc.DeleteFile(context.Background(), "https://example.com/file.pdf"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/jpeg", ContentType(FileExtension("sign.JPG")))
	assert.Equal(t, "application/octet-stream", ContentType(FileExtension("notes")))
}
