package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBucket struct {
	objects []types.Object
	listed  string
	deleted []string
}

func (f *fakeBucket) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeBucket) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.listed = aws.ToString(in.Prefix)
	return &s3.ListObjectsV2Output{Contents: f.objects}, nil
}

func (f *fakeBucket) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestRotateBackups_KeepsNewest(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var objects []types.Object
	for i, key := range []string{"backups/backup-1", "backups/backup-2", "backups/backup-3", "backups/backup-4"} {
		objects = append(objects, types.Object{Key: aws.String(key), LastModified: aws.Time(base.Add(time.Duration(i) * time.Hour))})
	}
	bucket := &fakeBucket{objects: objects}

	err := rotateBackups(context.Background(), bucket, "nets", BackupConfig{Prefix: "backups/", KeepBackups: 2})
	require.NoError(t, err)
	assert.Equal(t, "backups/backup-", bucket.listed)
	assert.ElementsMatch(t, []string{"backups/backup-1", "backups/backup-2"}, bucket.deleted)
}

func TestRotateBackups_NothingToDelete(t *testing.T) {
	bucket := &fakeBucket{objects: []types.Object{{Key: aws.String("backups/backup-1"), LastModified: aws.Time(time.Now())}}}
	require.NoError(t, rotateBackups(context.Background(), bucket, "nets", BackupConfig{Prefix: "backups", KeepBackups: 4}))
	assert.Empty(t, bucket.deleted)
}

func TestBackupKeyAndGzip(t *testing.T) {
	key := backupKey("citnet/backups", "db", time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC))
	assert.Equal(t, "citnet/backups/backup-2024-05-01T12-30-00Z.db.gz", key)

	data, err := gzipStream(strings.NewReader("sqlite bytes"))
	require.NoError(t, err)
	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "sqlite bytes", string(plain))
}
