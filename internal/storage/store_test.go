package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestedFilename(t *testing.T) {
	at := time.Unix(1700000000, 0)
	assert.Equal(t, "prc_id_front_1700000000.jpg", SuggestedFilename("prc_id", "front", at))
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		doc    Document
		want   string
	}{
		{"prefixed", "captures/", Document{Profile: "payslip", SessionID: "abc", Filename: "x.jpg"}, "captures/payslip/abc/x.jpg"},
		{"no prefix", "", Document{Profile: "payslip", SessionID: "abc", Filename: "x.jpg"}, "payslip/abc/x.jpg"},
		{"traversal", "c", Document{Profile: "..", SessionID: "a/b", Filename: "../x.jpg"}, "c/_/a_b/.._x.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectKey(tt.prefix, tt.doc))
		})
	}
}

func TestLocalStorage_Store(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStorage(root, "captures")
	require.NoError(t, err)
	assert.Equal(t, "local", store.Name())

	location, err := store.Store(context.Background(), testDoc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(location, "file://"))

	path := filepath.Join(root, "captures", "prc_id", "s-1", testDoc.Filename)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testDoc.Data, data)

	_, err = os.Stat(path + ".part")
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, store.Close())
}

func TestLocalStorage_CancelledContext(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Store(ctx, testDoc)
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Storage_Store(t *testing.T) {
	fake := &fakeS3{}
	store := &s3Storage{client: fake, bucket: "documents", prefix: "captures/"}

	location, err := store.Store(context.Background(), testDoc)
	require.NoError(t, err)
	assert.Equal(t, "s3://documents/captures/prc_id/s-1/"+testDoc.Filename, location)
	assert.Equal(t, "image/jpeg", aws.ToString(fake.input.ContentType))
	assert.Equal(t, int64(len(testDoc.Data)), aws.ToInt64(fake.input.ContentLength))
	assert.Equal(t, testDoc.Data, fake.body)
	assert.Equal(t, "front", fake.input.Metadata["slot"])

	fake.err = errors.New("access denied")
	_, err = store.Store(context.Background(), testDoc)
	assert.ErrorContains(t, err, "access denied")
}
