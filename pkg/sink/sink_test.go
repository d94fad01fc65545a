package sink

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	tests := []struct {
		name      string
		desc      Descriptor
		wantType  any
		wantError string
	}{
		{
			name:     "local",
			desc:     Descriptor{Kind: "local", Location: "out"},
			wantType: &LocalSink{},
		},
		{
			name:     "local is the default kind",
			desc:     Descriptor{},
			wantType: &LocalSink{},
		},
		{
			name:     "s3",
			desc:     Descriptor{Kind: "s3", Location: "s3://court-data/raw"},
			wantType: &S3Sink{},
		},
		{
			name:      "s3 without bucket",
			desc:      Descriptor{Kind: "s3", Location: "court-data/raw"},
			wantError: "s3 location must look like",
		},
		{
			name:      "unknown kind",
			desc:      Descriptor{Kind: "gcs", Location: "gs://bucket"},
			wantError: "unknown storage kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(context.Background(), tt.desc, zerolog.Nop())
			if tt.wantError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantError)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, s)
		})
	}
}

func TestNew_LocalDefaultRoot(t *testing.T) {
	s, err := New(context.Background(), Descriptor{Kind: "local"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "data", s.(*LocalSink).Root())
}

func TestParseS3Location(t *testing.T) {
	bucket, prefix, err := ParseS3Location("s3://court-data/raw/v4/")
	require.NoError(t, err)
	assert.Equal(t, "court-data", bucket)
	assert.Equal(t, "raw/v4", prefix)

	bucket, prefix, err = ParseS3Location("s3://court-data")
	require.NoError(t, err)
	assert.Equal(t, "court-data", bucket)
	assert.Empty(t, prefix)
}
