// Package transfer copies local data to and from S3 objects through the s3stream Reader and Writer.
package transfer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bitrise-io/go-s3stream/s3stream"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/zeebo/blake3"
)

// UploadParams ...
type UploadParams struct {
	Bucket string
	Key    string
	// Compress zstd compresses the data before it is uploaded.
	Compress bool
	// CompressionLevel is the zstd level, between 1 and 19. 0 means DefaultCompressionLevel.
	CompressionLevel int
	ContentType      string
	Options          []func(*s3stream.WriterOptions)
}

// DownloadParams ...
type DownloadParams struct {
	Bucket string
	Key    string
	// Decompress zstd decompresses the downloaded data.
	Decompress bool
	Options    []func(*s3stream.ReaderOptions)
}

// Result describes a finished transfer.
type Result struct {
	// Bytes is the number of bytes read from the source (upload) or written to the destination
	// (download), before compression and after decompression respectively.
	Bytes int64
	// Digest is the hex encoded BLAKE3 digest of those bytes.
	Digest string
	// Parts is the number of parts transferred.
	Parts int64
	// ETag is the entity tag of the object.
	ETag string
}

// Upload streams src into bucket/key. The upload is aborted if src can't be read.
func Upload(ctx context.Context, client s3stream.UploadAPIClient, src io.Reader, params UploadParams, logger log.Logger) (Result, error) {
	opts := append([]func(*s3stream.WriterOptions){func(o *s3stream.WriterOptions) {
		o.Logger = logger
	}}, params.Options...)
	if params.ContentType != "" || params.Compress {
		opts = append(opts, withContentType(params))
	}

	w, err := s3stream.NewWriter(ctx, client, params.Bucket, params.Key, opts...)
	if err != nil {
		return Result{}, err
	}

	var sink io.WriteCloser = nopWriteCloser{w}
	if params.Compress {
		enc, err := newCompressor(w, params.CompressionLevel)
		if err != nil {
			return Result{}, errors.Join(err, w.Abort())
		}
		sink = enc
	}

	hasher := blake3.New()
	n, err := io.Copy(sink, io.TeeReader(src, hasher))
	if err == nil {
		err = sink.Close()
	}
	if err != nil {
		if abortErr := w.Abort(); abortErr != nil && !errors.Is(abortErr, s3stream.ErrStreamClosed) {
			logger.Warnf("Failed to abort upload: %s", abortErr)
		}
		return Result{}, fmt.Errorf("upload s3://%s/%s: %w", params.Bucket, params.Key, err)
	}

	if err := w.Close(); err != nil {
		return Result{}, fmt.Errorf("upload s3://%s/%s: %w", params.Bucket, params.Key, err)
	}

	result := Result{
		Bytes:  n,
		Digest: hex.EncodeToString(hasher.Sum(nil)),
		Parts:  w.Stats().FinishedCount(),
	}
	if out := w.Result(); out != nil {
		result.ETag = aws.ToString(out.ETag)
	}
	return result, nil
}

// Download streams bucket/key into dst.
func Download(ctx context.Context, client s3stream.DownloadAPIClient, dst io.Writer, params DownloadParams, logger log.Logger) (Result, error) {
	opts := append([]func(*s3stream.ReaderOptions){func(o *s3stream.ReaderOptions) {
		o.Logger = logger
	}}, params.Options...)

	r, err := s3stream.NewReader(ctx, client, params.Bucket, params.Key, opts...)
	if err != nil {
		return Result{}, err
	}
	defer r.Close() //nolint:errcheck

	var src io.Reader = r
	if params.Decompress {
		dec, err := newDecompressor(r)
		if err != nil {
			return Result{}, err
		}
		defer dec.Close() //nolint:errcheck
		src = dec
	}

	hasher := blake3.New()
	n, err := io.Copy(io.MultiWriter(dst, hasher), src)
	if err != nil {
		return Result{}, fmt.Errorf("download s3://%s/%s: %w", params.Bucket, params.Key, err)
	}

	return Result{
		Bytes:  n,
		Digest: hex.EncodeToString(hasher.Sum(nil)),
		Parts:  r.Stats().FinishedCount(),
		ETag:   r.Metadata().ETag,
	}, nil
}

func withContentType(params UploadParams) func(*s3stream.WriterOptions) {
	contentType := params.ContentType
	if contentType == "" {
		contentType = "application/zstd"
	}

	return func(o *s3stream.WriterOptions) {
		mutator := o.CreateMutator
		o.CreateMutator = func(in *s3.CreateMultipartUploadInput) {
			if mutator != nil {
				mutator(in)
			}
			in.ContentType = aws.String(contentType)
		}
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}
