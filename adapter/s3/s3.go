// Package s3 implements content storage on Amazon S3 (or an S3-compatible
// endpoint such as MinIO or LocalStack).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/docuflow/docuflow/adapter"
)

// AdapterType is the registry name of this adapter.
const AdapterType = "s3"

var (
	// AWSDefaultConfigLoader allows overriding AWS config loading for testing.
	AWSDefaultConfigLoader = awsconfig.LoadDefaultConfig

	// ClientFactory allows overriding the S3 client creation for testing.
	ClientFactory = func(cfg aws.Config, optFns ...func(*awss3.Options)) Client {
		return awss3.NewFromConfig(cfg, optFns...)
	}
)

// Client is the subset of the S3 API the adapter uses.
type Client interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	CopyObject(ctx context.Context, params *awss3.CopyObjectInput, optFns ...func(*awss3.Options)) (*awss3.CopyObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
}

func init() {
	adapter.MustRegister(adapter.S3Descriptor, Build)
}

// Build creates the S3 storage adapter from its configuration properties.
// Static credentials are optional; without them the SDK default credential
// chain applies.
func Build(ctx context.Context, props adapter.Properties, logger *slog.Logger) (adapter.Provider, error) {
	bucket := props.Get("bucket")
	region := props.Get("region")
	if bucket == "" || region == "" {
		return adapter.Provider{}, errors.New("s3: bucket and region are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if ak, sk := props.Get("access_key_id"), props.Get("secret_access_key"); ak != "" && sk != "" {
		logger.Debug("s3: using static credentials from adapter properties")
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(ak, sk, ""),
		))
	}

	cfg, err := AWSDefaultConfigLoader(ctx, opts...)
	if err != nil {
		return adapter.Provider{}, fmt.Errorf("s3: loading AWS config: %w", err)
	}
	cfg.Region = region

	var clientOpts []func(*awss3.Options)
	if endpoint := props.Get("endpoint"); endpoint != "" {
		logger.Debug("s3: using custom endpoint", "endpoint", endpoint)
		clientOpts = append(clientOpts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			// Path-style addressing is what MinIO and LocalStack expect.
			o.UsePathStyle = true
		})
	}

	return adapter.Provider{
		Storage: &Storage{
			client: ClientFactory(cfg, clientOpts...),
			bucket: bucket,
			prefix: props.Get("prefix"),
			log:    logger,
		},
	}, nil
}

// Storage implements content storage against one S3 bucket, with an optional
// key prefix.
type Storage struct {
	client Client
	bucket string
	prefix string
	log    *slog.Logger
}

var _ adapter.ContentStorage = (*Storage)(nil)

func (s *Storage) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *Storage) documentKey(objectKey string) string {
	if s.prefix == "" {
		return objectKey
	}
	return strings.TrimPrefix(strings.TrimPrefix(objectKey, s.prefix), "/")
}

func (s *Storage) PutDocument(ctx context.Context, doc adapter.Document) (adapter.DocumentInfo, error) {
	input := &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(doc.Key)),
		Body:   bytes.NewReader(doc.Content),
	}
	if doc.ContentType != "" {
		input.ContentType = aws.String(doc.ContentType)
	}
	if len(doc.Metadata) > 0 {
		input.Metadata = doc.Metadata
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return adapter.DocumentInfo{}, classify("s3: put object", err)
	}
	return adapter.DocumentInfo{
		Key:         doc.Key,
		Size:        int64(len(doc.Content)),
		ContentType: doc.ContentType,
		UpdatedAt:   time.Now().UTC(),
	}, nil
}

func (s *Storage) GetDocument(ctx context.Context, key string) (adapter.Document, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return adapter.Document{}, fmt.Errorf("%w: %q", adapter.ErrDocumentNotFound, key)
		}
		return adapter.Document{}, classify("s3: get object", err)
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return adapter.Document{}, adapter.MarkTransient(fmt.Errorf("s3: reading object body: %w", err))
	}
	return adapter.Document{
		Key:         key,
		ContentType: aws.ToString(out.ContentType),
		Content:     content,
		Metadata:    out.Metadata,
	}, nil
}

func (s *Storage) DeleteDocument(ctx context.Context, key string) error {
	if _, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	}); err != nil {
		return classify("s3: delete object", err)
	}
	return nil
}

func (s *Storage) MoveDocument(ctx context.Context, fromKey, toKey string) error {
	if _, err := s.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + s.objectKey(fromKey)),
		Key:        aws.String(s.objectKey(toKey)),
	}); err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return fmt.Errorf("%w: %q", adapter.ErrDocumentNotFound, fromKey)
		}
		return classify("s3: copy object", err)
	}
	return s.DeleteDocument(ctx, fromKey)
}

func (s *Storage) ListDocuments(ctx context.Context, prefix string) ([]adapter.DocumentInfo, error) {
	var docs []adapter.DocumentInfo

	paginator := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.objectKey(prefix)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify("s3: list objects", err)
		}
		for _, obj := range page.Contents {
			docs = append(docs, adapter.DocumentInfo{
				Key:       s.documentKey(aws.ToString(obj.Key)),
				Size:      aws.ToInt64(obj.Size),
				UpdatedAt: aws.ToTime(obj.LastModified).UTC(),
			})
		}
	}
	return docs, nil
}

// transientErrorCodes are S3 API error codes worth retrying.
var transientErrorCodes = map[string]struct{}{
	"InternalError":       {},
	"ServiceUnavailable":  {},
	"SlowDown":            {},
	"RequestTimeout":      {},
	"ThrottlingException": {},
	"Throttling":          {},
}

// classify wraps SDK errors, marking the retryable ones transient so the
// invocation policy can tell them apart from permanent failures.
func classify(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := transientErrorCodes[apiErr.ErrorCode()]; ok {
			return adapter.MarkTransient(wrapped)
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return adapter.MarkTransient(wrapped)
		}
		return wrapped
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return adapter.MarkTransient(wrapped)
	}
	return wrapped
}
