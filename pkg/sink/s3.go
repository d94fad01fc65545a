package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/Sternrassler/cl-extractor/pkg/record"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// PutObjectAPI is the subset of the S3 client used by S3Sink.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink writes artifacts as objects under bucket/prefix.
type S3Sink struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger zerolog.Logger
}

// NewS3Sink creates an S3 sink.
func NewS3Sink(client PutObjectAPI, bucket, prefix string, logger zerolog.Logger) *S3Sink {
	return &S3Sink{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With().Str("component", "s3-sink").Str("bucket", bucket).Logger(),
	}
}

// Key returns the object key for destination.
func (s *S3Sink) Key(destination string) string {
	return path.Join(s.prefix, destination)
}

// Write uploads records as a single text/csv object.
func (s *S3Sink) Write(ctx context.Context, records []record.Record, destination string) (Artifact, error) {
	data, err := EncodeCSV(records)
	if err != nil {
		if errors.Is(err, ErrNothingToWrite) {
			return Artifact{}, err
		}
		writesTotal.WithLabelValues(KindS3, "failure").Inc()
		return Artifact{}, &WriteError{Destination: destination, Err: err}
	}

	key := s.Key(destination)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("text/csv"),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		writesTotal.WithLabelValues(KindS3, "failure").Inc()
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to upload artifact")
		return Artifact{}, &WriteError{Destination: destination, Err: fmt.Errorf("put object: %w", err)}
	}

	writesTotal.WithLabelValues(KindS3, "success").Inc()
	bytesWrittenTotal.WithLabelValues(KindS3).Add(float64(len(data)))

	location := fmt.Sprintf("s3://%s/%s", s.bucket, key)
	s.logger.Info().
		Str("key", key).
		Int("records", len(records)).
		Msg("Uploaded artifact")

	return Artifact{Location: location, Records: len(records), Bytes: len(data)}, nil
}
