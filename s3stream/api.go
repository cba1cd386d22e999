// Package s3stream exposes large S3 objects as ordinary byte streams.
//
// A Reader downloads an object as a sequence of ranged GETs, several of them in flight ahead of
// the consumer, and delivers the bytes strictly in order. A Writer uploads everything written to
// it as a multipart upload, verifying every part's checksum and either completing the upload
// or aborting it on Close.
package s3stream

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DownloadAPIClient abstracts the subset of S3 methods used by Reader.
//
// HeadObject is used to determine the size of the object so the ranges are known up front.
type DownloadAPIClient interface {
	HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// UploadAPIClient abstracts the subset of S3 methods used by Writer.
type UploadAPIClient interface {
	CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// APIClient is satisfied by *s3.Client.
type APIClient interface {
	DownloadAPIClient
	UploadAPIClient
}

var _ APIClient = (*s3.Client)(nil)
