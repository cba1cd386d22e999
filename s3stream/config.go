package s3stream

import (
	"crypto/md5"
	"hash"
	"runtime"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bitrise-io/go-s3stream/chunker"
	"github.com/bitrise-io/go-utils/v2/log"
)

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// Parallelism is the maximum number of ranges fetched at the same time, including the one
	// being read.
	// Default: DefaultParallelism()
	Parallelism int

	// Chunker provides the size of each range.
	// Default: chunker.Default()
	Chunker chunker.Chunker

	// BufferSize is the maximum number of bytes buffered per range ahead of the consumer.
	// Default: chunker.MinPartSize
	BufferSize int

	// HeadMutator is applied to the HeadObject request sent by NewReader.
	HeadMutator func(*s3.HeadObjectInput)

	// GetMutator is applied to every ranged GetObject request before it is sent.
	// Bucket, Key and Range are always overwritten.
	GetMutator func(*s3.GetObjectInput)

	// NoIfMatch disables pinning every ranged GET to the ETag returned by HeadObject.
	NoIfMatch bool

	// ClientOptions are passed to every call made to the client.
	ClientOptions []func(*s3.Options)

	Logger log.Logger
}

// WriterOptions configures a Writer.
type WriterOptions struct {
	// Parallelism is the maximum number of parts uploaded at the same time.
	// Write blocks once this many parts are in flight.
	// Default: DefaultParallelism()
	Parallelism int

	// Chunker provides the size of each part. Every part but the last one has to be at least
	// chunker.MinPartSize for S3 to accept the upload.
	// Default: chunker.Default()
	Chunker chunker.Chunker

	// NewHash creates the digest used for part tags and the integrity header. S3 requires MD5.
	// Default: md5.New
	NewHash func() hash.Hash

	// CreateMutator is applied to the CreateMultipartUpload request, e.g. to set ContentType.
	// Bucket and Key are always overwritten.
	CreateMutator func(*s3.CreateMultipartUploadInput)

	// PartMutator is applied to every UploadPart request before it is sent.
	PartMutator func(*s3.UploadPartInput)

	// SkipCompletionCheck disables the verification of the completed object's ETag, for stores
	// whose multipart ETag is not derived from the part digests (e.g. SSE-KMS).
	SkipCompletionCheck bool

	// AbortRetries is the number of times a failed AbortMultipartUpload is retried.
	// Default: 2
	AbortRetries uint

	// AbortRetryWait is the wait time between abort attempts.
	// Default: 1 second
	AbortRetryWait time.Duration

	// ClientOptions are passed to every call made to the client.
	ClientOptions []func(*s3.Options)

	Logger log.Logger
}

// DefaultParallelism returns the number of CPUs available to the process.
func DefaultParallelism() int {
	c := runtime.NumCPU()
	if c < 1 {
		c = 1
	}
	return c
}

// DefaultReaderOptions returns the default configuration of a Reader.
func DefaultReaderOptions() ReaderOptions {
	return ReaderOptions{
		Parallelism: DefaultParallelism(),
		Chunker:     chunker.Default(),
		BufferSize:  int(chunker.MinPartSize),
		Logger:      log.NewLogger(),
	}
}

// DefaultWriterOptions returns the default configuration of a Writer.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{
		Parallelism:    DefaultParallelism(),
		Chunker:        chunker.Default(),
		NewHash:        md5.New,
		AbortRetries:   2,
		AbortRetryWait: time.Second,
		Logger:         log.NewLogger(),
	}
}

func (o *ReaderOptions) normalize() {
	d := DefaultReaderOptions()
	if o.Parallelism < 1 {
		o.Parallelism = d.Parallelism
	}
	if o.Chunker == nil {
		o.Chunker = d.Chunker
	}
	if o.BufferSize <= 0 {
		o.BufferSize = d.BufferSize
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
}

func (o *WriterOptions) normalize() {
	d := DefaultWriterOptions()
	if o.Parallelism < 1 {
		o.Parallelism = d.Parallelism
	}
	if o.Chunker == nil {
		o.Chunker = d.Chunker
	}
	if o.NewHash == nil {
		o.NewHash = d.NewHash
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
}
