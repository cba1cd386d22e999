package s3stream

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-s3stream/chunker"
)

var (
	// ErrStreamClosed is returned by every operation on a closed Reader or Writer.
	ErrStreamClosed = errors.New("stream closed")

	// ErrObjectNotFound is matched by a MetadataFetchError when the object does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrTooManyParts is returned when an upload would need more parts than S3 accepts.
	ErrTooManyParts = fmt.Errorf("multipart upload exceeds %d parts", chunker.MaxPartCount)
)

// MetadataFetchError is returned by NewReader when the object's metadata can't be fetched.
type MetadataFetchError struct {
	Bucket   string
	Key      string
	NotFound bool
	Err      error
}

func (e *MetadataFetchError) Error() string {
	return fmt.Sprintf("fetch metadata of s3://%s/%s: %s", e.Bucket, e.Key, e.Err)
}

func (e *MetadataFetchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrObjectNotFound and the object is missing.
func (e *MetadataFetchError) Is(target error) bool {
	return target == ErrObjectNotFound && e.NotFound
}

// SessionCreateError is returned by NewWriter when the multipart upload can't be created.
type SessionCreateError struct {
	Bucket string
	Key    string
	Err    error
}

func (e *SessionCreateError) Error() string {
	return fmt.Sprintf("create multipart upload for s3://%s/%s: %s", e.Bucket, e.Key, e.Err)
}

func (e *SessionCreateError) Unwrap() error {
	return e.Err
}

// TransportError wraps a failed call to the store.
type TransportError struct {
	// Op names the failed operation, e.g. "get object" or "upload part".
	Op string
	// PartNumber is the 1-based part or range index, 0 when the call is not part specific.
	PartNumber int32
	// Range is the requested byte range for ranged GETs.
	Range string
	Err   error
}

func (e *TransportError) Error() string {
	switch {
	case e.Range != "":
		return fmt.Sprintf("%s (part %d, %s): %s", e.Op, e.PartNumber, e.Range, e.Err)
	case e.PartNumber > 0:
		return fmt.Sprintf("%s (part %d): %s", e.Op, e.PartNumber, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ChecksumMismatchError is returned when the store's tag of a part differs from its local digest.
type ChecksumMismatchError struct {
	PartNumber int32
	Expected   string
	Actual     string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("mismatching checksum of part %d: %s != %s", e.PartNumber, e.Actual, e.Expected)
}

// CompletionVerificationError is returned when the completed object's tag doesn't match the
// parts that were uploaded.
type CompletionVerificationError struct {
	ExpectedETag  string
	ActualETag    string
	ExpectedParts int
	ActualParts   int
	// Err is set when the tag could not be parsed as a multipart ETag.
	Err error
}

func (e *CompletionVerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("verify completed upload: %s", e.Err)
	}
	if e.ExpectedParts != e.ActualParts {
		return fmt.Sprintf("unexpected parts count: %d != %d", e.ActualParts, e.ExpectedParts)
	}
	return fmt.Sprintf("mismatching checksum: %s != %s", e.ActualETag, e.ExpectedETag)
}

func (e *CompletionVerificationError) Unwrap() error {
	return e.Err
}

func isNotFound(err error) bool {
	var apiError smithy.APIError
	if !errors.As(err, &apiError) {
		return false
	}

	switch apiError.(type) {
	case *types.NotFound, *types.NoSuchKey:
		return true
	}

	code := apiError.ErrorCode()
	return code == "NotFound" || code == "NoSuchKey"
}
