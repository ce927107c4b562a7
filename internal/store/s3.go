package store

import (
	"bytes"
	"context"
	stderr "errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/cachetune/cachetune/pkg/errors"
	"github.com/cachetune/cachetune/pkg/types"
)

// metadata key carrying the TTL the optimizer assigned at write time
const ttlMetadataKey = "cachetune-ttl-seconds"

// S3Config represents S3 store configuration
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	KeyPrefix string `yaml:"key_prefix"`
	// Endpoint overrides the AWS endpoint, for MinIO and other
	// S3-compatible services.
	Endpoint string `yaml:"endpoint"`
	// AccessKeyID and SecretAccessKey, when both set, take precedence
	// over the default AWS credential chain. Mainly for MinIO and
	// LocalStack setups.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// s3API is the subset of the S3 client the store uses, extracted so
// tests can substitute a fake.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store implements types.Store backed by an S3 bucket. S3 has no
// native per-object expiry, so the assigned TTL is recorded as object
// metadata and enforced by the optimizer's eviction pass.
type S3Store struct {
	client s3API
	bucket string
	prefix string
}

var _ types.Store = (*S3Store)(nil)

// NewS3Store creates an S3-backed store
func NewS3Store(ctx context.Context, config *S3Config) (*S3Store, error) {
	if config == nil {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "s3 store config is required")
	}
	if config.Bucket == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "s3 bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(config.Region))
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeConfigLoad, "failed to load AWS configuration").
			WithComponent("store").
			WithCause(err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client: client,
		bucket: config.Bucket,
		prefix: config.KeyPrefix,
	}, nil
}

func (s *S3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + key
}

// Get retrieves an object's contents. A missing object is not an error.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, false, nil
		}
		return nil, false, errors.NewError(errors.ErrCodeStorageRead, "s3 get failed").
			WithOperation("Get").
			WithContext("key", key).
			WithCause(err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, false, errors.NewError(errors.ErrCodeStorageRead, "failed to read object body").
			WithOperation("Get").
			WithContext("key", key).
			WithCause(err)
	}
	return data, true, nil
}

// Set stores an object, recording the TTL as object metadata
func (s *S3Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(value),
		ContentLength: aws.Int64(int64(len(value))),
	}
	if ttl > 0 {
		input.Metadata = map[string]string{
			ttlMetadataKey: strconv.FormatInt(int64(ttl.Seconds()), 10),
		}
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return errors.NewError(errors.ErrCodeStorageWrite, "s3 put failed").
			WithOperation("Set").
			WithContext("key", key).
			WithContext("bucket", s.bucket).
			WithCause(err)
	}
	return nil
}

// Refresh is a no-op. S3 has no native per-object expiry; TTLs recorded
// at write time are enforced by the optimizer's eviction passes.
func (s *S3Store) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

// Remove deletes an object. Deleting an absent object is not an error.
func (s *S3Store) Remove(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil
		}
		return errors.NewError(errors.ErrCodeStorageWrite, "s3 delete failed").
			WithOperation("Remove").
			WithContext("key", key).
			WithCause(err)
	}
	return nil
}

// Keys lists all object keys under the store's prefix
func (s *S3Store) Keys(ctx context.Context) ([]string, error) {
	var (
		keys  []string
		token *string
	)
	trim := ""
	if s.prefix != "" {
		trim = strings.TrimSuffix(s.prefix, "/") + "/"
	}

	for {
		result, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(trim),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeStorageList,
				fmt.Sprintf("s3 list failed for bucket %s", s.bucket)).
				WithOperation("Keys").
				WithCause(err)
		}
		for _, obj := range result.Contents {
			k := aws.ToString(obj.Key)
			if trim != "" {
				k = strings.TrimPrefix(k, trim)
			}
			keys = append(keys, k)
		}
		if !aws.ToBool(result.IsTruncated) {
			break
		}
		token = result.NextContinuationToken
	}
	return keys, nil
}

// Close is a no-op; the S3 client holds no persistent connections
func (s *S3Store) Close(ctx context.Context) error {
	return nil
}

func isNoSuchKey(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	if stderr.As(err, &noSuchKey) {
		return true
	}
	var notFound *s3types.NotFound
	return stderr.As(err, &notFound)
}
