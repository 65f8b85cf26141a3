// Package objectstore wraps the S3-compatible object store client used by
// transfer-put, transfer-get, and archive-put/get (spec §4.5, §4.6, §4.7,
// §4.8, §6). Grounded on storj-storj's dependency on
// github.com/minio/minio-go, the one S3-compatible client among the
// retrieved examples.
package objectstore

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client addresses objects as tenancy://bucket/object, where bucket is the
// transaction id (spec §6): Tenancy names the endpoint, Bucket is supplied
// per call.
type Client struct {
	mc *minio.Client
}

// Options configures a Client (spec §6's transfer_put_q/transfer_get_q
// require_secure toggle governs TLS verification against the endpoint).
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
}

// New dials an S3-compatible endpoint with static credentials supplied per
// request (spec §3's access_key/secret_key carried in Details).
func New(opts Options) (*Client, error) {
	mc, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
	})
	if err != nil {
		return nil, err
	}
	return &Client{mc: mc}, nil
}

// EnsureBucket creates bucket if it doesn't already exist, idempotently
// (spec §5's at-least-once-delivery idempotence requirement).
func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := c.mc.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return c.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}

// Put streams src (of known size) into bucket/object. Transfer-put (spec
// §4.5) calls this with the transaction id as bucket and the derived
// object_name as object.
func (c *Client) Put(ctx context.Context, bucket, object string, src io.Reader, size int64) error {
	_, err := c.mc.PutObject(ctx, bucket, object, src, size, minio.PutObjectOptions{})
	return err
}

// Exists reports whether bucket/object is already present, backing
// transfer-put's idempotent-replay skip (spec §5).
func (c *Client) Exists(ctx context.Context, bucket, object string) (bool, error) {
	_, err := c.mc.StatObject(ctx, bucket, object, minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Get streams bucket/object back to the caller (transfer-get, archive-get's
// extraction target, spec §4.6, §4.8).
func (c *Client) Get(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return c.mc.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
}

// Remove deletes bucket/object, used when a transfer-put retry exhausts and
// catalog-del's compensating action extends to any partially-written
// object (spec §4.2, §5).
func (c *Client) Remove(ctx context.Context, bucket, object string) error {
	return c.mc.RemoveObject(ctx, bucket, object, minio.RemoveObjectOptions{})
}
