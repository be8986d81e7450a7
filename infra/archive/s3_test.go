package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/geodispatch/core/model"
)

type fakeS3 struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.err
}

func TestArchiveUploadsDelivery(t *testing.T) {
	fs := &fakeS3{}
	a := newS3Archiver(fs, Config{Bucket: "archive"})
	a.now = func() time.Time { return time.Date(2025, 3, 9, 23, 30, 0, 0, time.UTC) }

	d := model.Delivery{ID: "d7", Status: model.StatusDelivered, AssignedDriver: "drv1", Progress: 100}
	require.NoError(t, a.Archive(context.Background(), d))

	assert.Equal(t, "archive", aws.ToString(fs.in.Bucket))
	assert.Equal(t, "deliveries/2025/03/09/d7.json", aws.ToString(fs.in.Key))
	assert.Equal(t, "delivered", fs.in.Metadata["status"])

	var back map[string]any
	require.NoError(t, json.Unmarshal(fs.body, &back))
	assert.Equal(t, "d7", back["id"])
	assert.Equal(t, "2025-03-09T23:30:00Z", back["archived_at"])
}

func TestArchiveWrapsUploadError(t *testing.T) {
	fs := &fakeS3{err: errors.New("access denied")}
	a := newS3Archiver(fs, Config{Bucket: "b", Prefix: "x"})
	err := a.Archive(context.Background(), model.Delivery{ID: "d1"})
	assert.ErrorContains(t, err, "access denied")
	assert.Equal(t, "x/2025/01/02/d1.json", a.Key("d1", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)))
}

func TestNewS3ArchiverRequiresBucket(t *testing.T) {
	_, err := NewS3Archiver(context.Background(), Config{})
	assert.Error(t, err)
}
