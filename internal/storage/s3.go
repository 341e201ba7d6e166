// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package storage provides an S3-compatible object storage client. Post
// cover images live in a public bucket; paid guide files live in a private
// bucket and are only reachable through short-lived presigned URLs.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// GuideLinkTTL is the lifetime of a guide download link.
const GuideLinkTTL = 15 * time.Minute

// Client wraps an S3 client for the public and private buckets.
type Client struct {
	s3            *s3.Client
	presigner     *s3.PresignClient
	publicBucket  string
	privateBucket string
	endpoint      string
	publicURL     string // optional CDN/direct URL for public files
}

// New creates an S3 storage client with path-style addressing. Returns
// (nil, nil) if endpoint or credentials are empty, allowing the app to
// start without storage.
func New(endpoint, region, accessKey, secretKey, publicBucket, privateBucket, publicURL string) (*Client, error) {
	if endpoint == "" || accessKey == "" || secretKey == "" {
		return nil, nil
	}
	if publicBucket == "" || privateBucket == "" {
		return nil, fmt.Errorf("storage: both bucket names are required")
	}

	endpoint = strings.TrimRight(endpoint, "/")

	s3Client := s3.New(s3.Options{
		Region:       region,
		BaseEndpoint: aws.String(endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		UsePathStyle: true,
	})

	return &Client{
		s3:            s3Client,
		presigner:     s3.NewPresignClient(s3Client),
		publicBucket:  publicBucket,
		privateBucket: privateBucket,
		endpoint:      endpoint,
		publicURL:     strings.TrimRight(publicURL, "/"),
	}, nil
}

// PutPublic stores an image in the public bucket with a public-read ACL and
// returns its public URL.
func (c *Client) PutPublic(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.publicBucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
		ACL:           s3types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload %s/%s: %w", c.publicBucket, key, err)
	}
	return c.FileURL(key), nil
}

// DeletePublicURL removes the object behind a public URL. URLs that do not
// belong to this storage are ignored.
func (c *Client) DeletePublicURL(ctx context.Context, rawURL string) error {
	key, ok := c.ExtractKey(rawURL)
	if !ok {
		return nil
	}
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.publicBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s/%s: %w", c.publicBucket, key, err)
	}
	return nil
}

// GuideDownloadURL presigns a GET for a guide file in the private bucket.
func (c *Client) GuideDownloadURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(c.privateBucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", path.Base(key))),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("s3 presign %s/%s: %w", c.privateBucket, key, err)
	}
	return req.URL, nil
}

// FileURL returns the public URL for a file in the public bucket.
// Uses the configured public URL if set, otherwise builds a path-style URL.
func (c *Client) FileURL(key string) string {
	if c.publicURL != "" {
		return c.publicURL + "/" + key
	}
	return c.endpoint + "/" + c.publicBucket + "/" + key
}

// ExtractKey extracts the object key from a public file URL.
func (c *Client) ExtractKey(rawURL string) (string, bool) {
	if c.publicURL != "" {
		prefix := c.publicURL + "/"
		if strings.HasPrefix(rawURL, prefix) {
			return rawURL[len(prefix):], true
		}
	}

	prefix := c.endpoint + "/" + c.publicBucket + "/"
	if strings.HasPrefix(rawURL, prefix) {
		return rawURL[len(prefix):], true
	}

	return "", false
}

// CoverKeys returns the object keys for a post's generated cover and its
// thumbnail. Each generation gets a fresh id so CDN caches never serve a
// stale cover.
func CoverKeys(postID uuid.UUID, ext string) (original, thumb string) {
	id := uuid.NewString()
	base := fmt.Sprintf("covers/%s/%s", postID, id)
	return base + ext, base + "_thumb.jpg"
}
