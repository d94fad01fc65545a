// Package sink persists batches of records as CSV artifacts on local disk or
// in S3.
package sink

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Sternrassler/cl-extractor/pkg/record"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Storage kinds accepted by New.
const (
	KindLocal = "local"
	KindS3    = "s3"
)

// ErrNothingToWrite is returned for an empty batch. No artifact is produced.
var ErrNothingToWrite = errors.New("nothing to write")

// Sink writes a batch of records to a destination path relative to the
// sink's root. Writes to different destinations may run concurrently.
type Sink interface {
	Write(ctx context.Context, records []record.Record, destination string) (Artifact, error)
}

// Artifact describes a written output.
type Artifact struct {
	// Location is the absolute path or s3:// URL of the artifact.
	Location string `json:"location"`
	Records  int    `json:"records"`
	Bytes    int    `json:"bytes"`
}

// WriteError is a failed batch write.
type WriteError struct {
	Destination string
	Err         error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Destination, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// Descriptor selects a storage backend.
type Descriptor struct {
	// Kind is "local" or "s3".
	Kind string `mapstructure:"kind"`

	// Location is the root directory for local storage, or
	// "s3://bucket/prefix" for S3.
	Location string `mapstructure:"location"`
}

// New builds the sink described by d. Invalid descriptors fail here, before
// any data is fetched.
func New(ctx context.Context, d Descriptor, logger zerolog.Logger) (Sink, error) {
	switch strings.ToLower(d.Kind) {
	case KindLocal, "":
		root := d.Location
		if root == "" {
			root = "data"
		}
		return NewLocalSink(root, logger), nil

	case KindS3:
		bucket, prefix, err := ParseS3Location(d.Location)
		if err != nil {
			return nil, err
		}
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return NewS3Sink(s3.NewFromConfig(awsCfg), bucket, prefix, logger), nil

	default:
		return nil, fmt.Errorf("unknown storage kind %q (want %q or %q)", d.Kind, KindLocal, KindS3)
	}
}

// ParseS3Location splits "s3://bucket/prefix" into bucket and key prefix.
func ParseS3Location(location string) (bucket, prefix string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("parse s3 location: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("s3 location must look like s3://bucket/prefix (got %q)", location)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}
