// Package storagesvc implements core.DocumentStorage backends.
package storagesvc

import (
	"context"
	"io"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/pkg/errors"

	"github.com/freetutor/freetutor/core"
)

// ossStorage stores documents in a private Aliyun OSS bucket; reads go
// through short-lived signed URLs.
type ossStorage struct {
	bucket *oss.Bucket
}

var _ core.DocumentStorage = (*ossStorage)(nil)

func NewOSSStorage(conf *core.Config) (*ossStorage, error) {
	client, err := oss.New(conf.OSS.Endpoint, conf.OSS.AccessKeyID, conf.OSS.AccessKeySecret)
	if err != nil {
		return nil, errors.Wrap(err, "creating OSS client")
	}
	bucket, err := client.Bucket(conf.OSS.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, "opening OSS bucket")
	}
	return &ossStorage{bucket: bucket}, nil
}

func (s *ossStorage) Upload(_ context.Context, key, contentType string, content io.Reader) (string, error) {
	opts := []oss.Option{
		oss.ContentType(contentType),
		oss.ContentDisposition("inline"),
	}
	if err := s.bucket.PutObject(key, content, opts...); err != nil {
		return "", errors.Wrap(err, "uploading object")
	}
	return key, nil
}

func (s *ossStorage) SignedURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	url, err := s.bucket.SignURL(key, oss.HTTPGet, int64(expiry/time.Second))
	if err != nil {
		return "", errors.Wrap(err, "signing object URL")
	}
	return url, nil
}

func (s *ossStorage) Delete(_ context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := s.bucket.DeleteObjects(keys); err != nil {
		return errors.Wrap(err, "deleting objects")
	}
	return nil
}
