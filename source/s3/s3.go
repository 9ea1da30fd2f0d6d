package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/poiesic/chronicle/core"
	"github.com/poiesic/chronicle/source"
)

// TranscriptExt is appended to a document key to name its transcript object.
const TranscriptExt = ".txt"

// Client is the subset of the S3 API the source needs.
type Client interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ClientConfig selects region and, optionally, static credentials.
type ClientConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewClient builds an S3 client from the default AWS configuration chain.
// Static credentials override the chain when both keys are set.
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

// Catalog lists a corpus from JSON records stored under a key prefix.
type Catalog struct {
	client     Client
	bucket     string
	prefix     string
	sourceName string
	logger     *slog.Logger
}

var _ source.Catalog = (*Catalog)(nil)

// NewCatalog creates a catalog over bucket/prefix.
func NewCatalog(client Client, bucket, prefix, sourceName string, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		client:     client,
		bucket:     bucket,
		prefix:     prefix,
		sourceName: sourceName,
		logger:     logger.With("component", "catalog", "backend", "s3", "bucket", bucket),
	}
}

// List pages through every *.json object under the prefix. Unreadable or
// invalid records are logged and skipped.
func (c *Catalog) List(ctx context.Context) ([]core.SourceDocument, error) {
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(c.prefix),
	})

	var docs []core.SourceDocument
	objects := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", c.bucket, c.prefix, mapError(err))
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			objects++
			data, err := getObject(ctx, c.client, c.bucket, key)
			if err != nil {
				c.logger.Warn("skipping unreadable record", "key", key, "err", err)
				continue
			}
			doc, err := source.Decode(c.sourceName, path.Base(key), data)
			if err != nil {
				c.logger.Warn("skipping invalid record", "key", key, "err", err)
				continue
			}
			docs = append(docs, doc)
		}
	}

	source.SortDocuments(docs)
	c.logger.Info("catalog loaded", "documents", len(docs), "objects", objects)
	return docs, nil
}

// Fetcher reads transcripts stored as <prefix><key>.txt.
type Fetcher struct {
	client Client
	bucket string
	prefix string
}

var _ source.Fetcher = (*Fetcher)(nil)

// NewFetcher creates a fetcher over bucket/prefix.
func NewFetcher(client Client, bucket, prefix string) *Fetcher {
	return &Fetcher{client: client, bucket: bucket, prefix: prefix}
}

// Fetch returns the raw text stored for documentKey.
func (f *Fetcher) Fetch(ctx context.Context, documentKey string) (string, error) {
	if documentKey == "" {
		return "", fmt.Errorf("%w: empty key", source.ErrInvalidKey)
	}
	data, err := getObject(ctx, f.client, f.bucket, f.prefix+documentKey+TranscriptExt)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", documentKey, err)
	}
	return string(data), nil
}

func getObject(ctx context.Context, client Client, bucket, key string) ([]byte, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError(err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func mapError(err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	var noBucket *types.NoSuchBucket
	if errors.As(err, &noKey) || errors.As(err, &notFound) || errors.As(err, &noBucket) {
		return fmt.Errorf("%w: %w", source.ErrNotFound, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %w", source.ErrAccessDenied, err)
		}
	}
	return err
}
