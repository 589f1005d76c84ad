// Package s3 provides an S3-compatible FileAccess for spool.
//
// This adapter supports AWS S3, MinIO, LocalStack, Cloudflare R2,
// and other S3-compatible object stores.
//
// # Reads
//
//   - Open: HeadObject captures the object size and ETag.
//   - ReadRange: true range reads via the HTTP Range header. Every range
//     read carries If-Match with the ETag captured at open, so an object
//     replaced mid-stream fails the stream instead of mixing two versions.
//   - Close: releases nothing remote; objects hold no server-side handle.
//
// # Errors
//
// Missing keys and buckets map to spool.ErrNotFound, access denials to
// spool.ErrPermission, and everything else to a *spool.IOError.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/pithecene-io/spool/spool"
)

// maxReadLength caps a single ranged GET.
const maxReadLength = 64 * 1024 * 1024

// API defines the subset of the S3 client interface used by the adapter.
// This enables testing with mock implementations.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Config holds configuration for the S3 adapter.
type Config struct {
	// Bucket is the S3 bucket name. Required.
	Bucket string

	// Prefix is an optional key prefix for all operations.
	// If set, all keys are prefixed with this value (with a trailing slash added if missing).
	Prefix string
}

// Access implements spool.FileAccess using an S3-compatible backend.
// Access is safe for concurrent use; each File it returns is not.
type Access struct {
	client API
	bucket string
	prefix string
}

// New creates a new S3 FileAccess with the given client and configuration.
//
// The client must be pre-configured with credentials, region, and endpoint.
// Use NewClient or github.com/aws/aws-sdk-go-v2/config to build one.
//
// Example:
//
//	client, err := s3store.NewClient(ctx, s3store.ClientConfig{Region: "us-east-1"})
//	fa, err := s3store.New(client, s3store.Config{Bucket: "my-bucket"})
func New(client API, cfg Config) (*Access, error) {
	if client == nil {
		return nil, errors.New("s3: client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &Access{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
	}, nil
}

// Open resolves name to an object and captures its size and ETag.
// Returns spool.ErrNotFound if the object does not exist.
// Returns spool.ErrInvalidPath for empty or escaping names.
func (a *Access) Open(ctx context.Context, name string) (spool.File, error) {
	fullKey, err := a.validateKey(name)
	if err != nil {
		return nil, err
	}

	out, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return nil, mapError("head", name, err)
	}

	size := aws.ToInt64(out.ContentLength)
	if size < 0 {
		return nil, &spool.IOError{Op: "head", Name: name, Err: fmt.Errorf("s3: negative content length %d", size)}
	}

	return &object{
		access: a,
		key:    fullKey,
		name:   name,
		size:   size,
		etag:   aws.ToString(out.ETag),
	}, nil
}

// object implements spool.File using S3 range reads.
type object struct {
	access *Access
	key    string
	name   string
	size   int64
	etag   string
	closed bool
}

// Size returns the object size captured at Open.
func (o *object) Size(_ context.Context) (int64, error) {
	if o.closed {
		return 0, spool.ErrClosed
	}
	return o.size, nil
}

// ReadRange reads up to len(p) bytes at off with one ranged GET.
// Returns 0, io.EOF at or past the size captured at Open.
func (o *object) ReadRange(ctx context.Context, p []byte, off int64) (int, error) {
	if o.closed {
		return 0, spool.ErrClosed
	}
	if off < 0 {
		return 0, spool.ErrInvalidRange
	}
	if off >= o.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	length := int64(len(p))
	if length > maxReadLength {
		length = maxReadLength
	}
	if length > o.size-off {
		length = o.size - off
	}
	if off > math.MaxInt64-length {
		return 0, spool.ErrInvalidRange
	}

	// S3 Range header format: "bytes=start-end" (inclusive)
	end := off + length - 1
	input := &s3.GetObjectInput{
		Bucket: aws.String(o.access.bucket),
		Key:    aws.String(o.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, end)),
	}
	if o.etag != "" {
		input.IfMatch = aws.String(o.etag)
	}

	out, err := o.access.client.GetObject(ctx, input)
	if err != nil {
		// Check for InvalidRange (object shrank below off)
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
			return 0, io.EOF
		}
		return 0, mapError("range read", o.name, err)
	}
	defer func() { _ = out.Body.Close() }()

	n, err := io.ReadFull(out.Body, p[:length])
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		// Short body: report what arrived, the caller asks again for the rest.
		return n, nil
	case errors.Is(err, io.EOF):
		return 0, io.EOF
	case err != nil:
		return n, fmt.Errorf("s3: reading range body: %w", err)
	}
	return n, nil
}

// Close marks the object closed. Later reads return spool.ErrClosed.
func (o *object) Close() error {
	if o.closed {
		return spool.ErrClosed
	}
	o.closed = true
	return nil
}

// validateKey validates and returns the full key for a file name.
func (a *Access) validateKey(key string) (string, error) {
	if key == "" {
		return "", spool.ErrInvalidPath
	}

	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", spool.ErrInvalidPath
	}
	// Remove leading slash
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" {
		return "", spool.ErrInvalidPath
	}

	return a.prefix + cleaned, nil
}

// mapError converts an S3 error into the spool error kinds.
func mapError(op, name string, err error) error {
	switch {
	case isNotFound(err):
		return fmt.Errorf("s3: %s %s: %w", op, name, spool.ErrNotFound)
	case isAccessDenied(err):
		return fmt.Errorf("s3: %s %s: %w", op, name, spool.ErrPermission)
	}
	return &spool.IOError{Op: op, Name: name, Err: err}
}

// isNotFound checks if an error indicates the object was not found.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "404"
	}
	return false
}

// isAccessDenied checks if an error indicates the caller may not read the object.
func isAccessDenied(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "AccessDenied" || code == "Forbidden" || code == "403"
	}
	return false
}

// Ensure Access implements spool.FileAccess
var _ spool.FileAccess = (*Access)(nil)
