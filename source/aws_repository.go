package source

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cockroachdb/errors"
)

// AwsS3Repository is a struct that implements the Repository interface for
// entries stored as objects in an S3 bucket.
type AwsS3Repository struct {
	Name            string     // Name of the storage area
	BucketName      string     // Name of the S3 bucket
	Prefix          string     // Object key prefix, e.g. "users/42/"
	Region          string     // Optional region override
	Endpoint        string     // Optional endpoint for S3 compatible stores; enables path-style addressing
	AccessKeyID     string     // Optional static credentials
	SecretAccessKey string     // Optional static credentials
	Client          *s3.Client // S3 client instance
	clientOnce      sync.Once  // Ensures client is initialized only once
	clientInitErr   error      // Stores error from client initialization
}

func (a *AwsS3Repository) GetName() string {
	return a.Name
}

func (a *AwsS3Repository) GetType() string {
	return "s3"
}

func (a *AwsS3Repository) s3Client(ctx context.Context) (*s3.Client, error) {
	// Thread-safe client initialization using sync.Once (only if client not pre-configured)
	if a.Client != nil {
		return a.Client, nil
	}
	a.clientOnce.Do(func() {
		var opts []func(*config.LoadOptions) error
		if a.Region != "" {
			opts = append(opts, config.WithRegion(a.Region))
		}
		if a.AccessKeyID != "" {
			opts = append(opts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(a.AccessKeyID, a.SecretAccessKey, "")))
		}
		cfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			a.clientInitErr = errors.Wrap(err, "failed to load AWS config")
			return
		}
		a.Client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			if a.Endpoint != "" {
				o.BaseEndpoint = aws.String(a.Endpoint)
				o.UsePathStyle = true
			}
		})
	})
	if a.clientInitErr != nil {
		return nil, a.clientInitErr
	}
	return a.Client, nil
}

// Read downloads the entry object.
func (a *AwsS3Repository) Read(ctx context.Context, entry string) ([]byte, error) {
	if err := checkEntry(entry); err != nil {
		return nil, err
	}
	client, err := a.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.BucketName),
		Key:    aws.String(objectName(a.Prefix, entry)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, notFound(entry)
		}
		return nil, errors.Wrapf(err, "getting object for entry %q", entry)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading object for entry %q", entry)
	}
	return data, nil
}

// Write uploads the entry object in a single PutObject call.
func (a *AwsS3Repository) Write(ctx context.Context, entry string, data []byte) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	client, err := a.s3Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.BucketName),
		Key:         aws.String(objectName(a.Prefix, entry)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/yaml"),
	})
	if err != nil {
		return errors.Wrapf(err, "putting object for entry %q", entry)
	}
	return nil
}

// Delete removes the entry object. S3 treats deleting a missing key as success.
func (a *AwsS3Repository) Delete(ctx context.Context, entry string) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	client, err := a.s3Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.BucketName),
		Key:    aws.String(objectName(a.Prefix, entry)),
	})
	if err != nil {
		return errors.Wrapf(err, "deleting object for entry %q", entry)
	}
	return nil
}
