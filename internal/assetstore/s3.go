package assetstore

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"scenegen/internal/config"
	"scenegen/internal/services"
)

// S3API is the subset of the S3 client used for uploads.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 uploads artifacts to an S3 bucket.
type S3 struct {
	client S3API
	bucket string
	prefix string
}

// NewS3 loads the default AWS credential chain and returns an S3 store.
func NewS3(ctx context.Context, bucket, prefix, region string) (*S3, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "assetstore", "s3", "load aws config", err)
	}
	return NewS3WithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewS3WithClient wraps an existing client.
func NewS3WithClient(client S3API, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

// Backend implements Store.
func (s *S3) Backend() string { return config.StorageS3 }

// Put implements Store.
func (s *S3) Put(ctx context.Context, localPath, key string) (Location, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return Location{}, services.Wrap(services.ErrValidation, "assetstore", "s3 put", "open artifact", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return Location{}, services.Wrap(services.ErrValidation, "assetstore", "s3 put", "stat artifact", err)
	}

	objectKey := joinKey(s.prefix, key)
	contentType := ContentType(localPath)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          file,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return Location{}, services.Wrap(services.ErrTransient, "assetstore", "s3 put", "upload "+objectKey, err)
	}
	return Location{
		Backend:     config.StorageS3,
		Key:         objectKey,
		URI:         "s3://" + s.bucket + "/" + objectKey,
		ContentType: contentType,
		Size:        info.Size(),
	}, nil
}
