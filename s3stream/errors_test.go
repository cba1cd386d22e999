package s3stream

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func Test_isNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "head not found", err: &types.NotFound{Message: aws.String("Not Found")}, want: true},
		{name: "no such key", err: &types.NoSuchKey{}, want: true},
		{name: "generic not found code", err: &smithy.GenericAPIError{Code: "NotFound"}, want: true},
		{name: "wrapped", err: fmt.Errorf("operation error S3: HeadObject: %w", &types.NotFound{}), want: true},
		{name: "access denied", err: &smithy.GenericAPIError{Code: "AccessDenied"}, want: false},
		{name: "plain error", err: errors.New("NotFound"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNotFound(tt.err))
		})
	}
}

func TestMetadataFetchError_Is(t *testing.T) {
	cause := errors.New("cause")

	err := error(&MetadataFetchError{Bucket: "b", Key: "k", NotFound: true, Err: cause})
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.ErrorIs(t, err, cause)
	assert.EqualError(t, err, "fetch metadata of s3://b/k: cause")

	err = &MetadataFetchError{Bucket: "b", Key: "k", Err: cause}
	assert.NotErrorIs(t, err, ErrObjectNotFound)
}

func TestTransportError_Error(t *testing.T) {
	cause := errors.New("timeout")

	tests := []struct {
		err  *TransportError
		want string
	}{
		{err: &TransportError{Op: "get object", PartNumber: 2, Range: "bytes=10-19", Err: cause}, want: "get object (part 2, bytes=10-19): timeout"},
		{err: &TransportError{Op: "upload part", PartNumber: 4, Err: cause}, want: "upload part (part 4): timeout"},
		{err: &TransportError{Op: "complete multipart upload", Err: cause}, want: "complete multipart upload: timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.EqualError(t, tt.err, tt.want)
			assert.ErrorIs(t, tt.err, cause)
		})
	}
}
