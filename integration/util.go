//go:build integration
// +build integration

package integration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bitrise-io/go-s3stream/client"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/require"
)

var logger = log.NewLogger()

func checksumOf(bytes []byte) string {
	hash := sha256.New()
	hash.Write(bytes)
	return hex.EncodeToString(hash.Sum(nil))
}

func randomBytes(n int) []byte {
	data := make([]byte, n)
	_, _ = rand.New(rand.NewSource(time.Now().UnixNano())).Read(data)
	return data
}

// testBucket returns a client and the bucket configured by the environment. The test is skipped
// if no bucket is configured.
func testBucket(t *testing.T) (*s3.Client, string) {
	t.Helper()

	bucket := os.Getenv("S3STREAM_TEST_BUCKET")
	if bucket == "" {
		t.Skip("S3STREAM_TEST_BUCKET is not set")
	}

	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}

	s3Client, err := client.New(context.Background(), client.Config{
		Region:          region,
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Endpoint:        os.Getenv("S3STREAM_TEST_ENDPOINT"),
		UsePathStyle:    os.Getenv("S3STREAM_TEST_ENDPOINT") != "",
	}, logger)
	require.NoError(t, err)

	return s3Client, bucket
}

// testKey returns a unique key that is deleted when the test finishes.
func testKey(t *testing.T, s3Client *s3.Client, bucket string) string {
	t.Helper()

	key := fmt.Sprintf("s3stream-integration/%s-%d", t.Name(), time.Now().UnixNano())
	t.Cleanup(func() {
		_, err := s3Client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			t.Logf("delete %s: %s", key, err)
		}
	})
	return key
}
