package s3blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresBucketAndRegion(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")

	_, err = New(context.Background(), ClientConfig{Bucket: "ainex-archives"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region")
}

func TestNew_StaticCredentials(t *testing.T) {
	c, err := New(context.Background(), ClientConfig{
		Endpoint:       "minio.internal:9000",
		Region:         "us-east-1",
		Bucket:         "ainex-archives",
		AccessKey:      "ak",
		SecretKey:      "sk",
		ForcePathStyle: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ainex-archives", c.Bucket())
	assert.NotNil(t, c.S3())
	assert.NoError(t, c.Close())
}

func TestWithScheme(t *testing.T) {
	tests := []struct {
		endpoint string
		useSSL   bool
		want     string
	}{
		{"minio.internal:9000", false, "http://minio.internal:9000"},
		{"minio.internal:9000", true, "https://minio.internal:9000"},
		{"https://e2.example.com", false, "https://e2.example.com"},
		{"http://localhost:9000", true, "http://localhost:9000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, withScheme(tt.endpoint, tt.useSSL), "endpoint %s ssl %v", tt.endpoint, tt.useSSL)
	}
}
