package s3stream

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bitrise-io/go-s3stream/chunker"
	"github.com/bitrise-io/go-s3stream/pipe"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// Reader downloads an object range by range.
//
// No range is requested before the first Read. From then on up to Parallelism ranges are in
// flight, started in order, and the bytes are always delivered in ascending offset order.
type Reader struct {
	client   DownloadAPIClient
	bucket   string
	key      string
	opts     ReaderOptions
	logger   log.Logger
	metadata ObjectMetadata

	ctx     context.Context
	cancel  context.CancelFunc
	closing atomic.Bool

	// reading is the body of the range being read. Close closes it without holding mu,
	// which a Read blocked on the body holds.
	readingMu sync.Mutex
	reading   *pipe.Pipe

	mu      sync.Mutex
	ranges  *chunker.RangeIterator
	pending []*rangeFetch
	current *rangeFetch
	err     error
	closed  bool
	stats   *Stats
}

type rangeFetch struct {
	number  int32
	rng     chunker.ByteRange
	started time.Time
	done    chan struct{}

	// body and err are only read once done is closed.
	body *pipe.Pipe
	err  error

	read int64
}

// NewReader fetches the metadata of bucket/key and returns a Reader over its content.
// The caller must close the Reader.
func NewReader(ctx context.Context, client DownloadAPIClient, bucket, key string, optFns ...func(*ReaderOptions)) (*Reader, error) {
	opts := DefaultReaderOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.normalize()

	input := &s3.HeadObjectInput{}
	if opts.HeadMutator != nil {
		opts.HeadMutator(input)
	}
	input.Bucket = aws.String(bucket)
	input.Key = aws.String(key)

	out, err := client.HeadObject(ctx, input, opts.ClientOptions...)
	if err != nil {
		return nil, &MetadataFetchError{Bucket: bucket, Key: key, NotFound: isNotFound(err), Err: err}
	}

	metadata := metadataFromHead(out)
	opts.Logger.Debugf("Object s3://%s/%s: %s, ETag: %s",
		bucket, key, units.HumanSizeWithPrecision(float64(metadata.Size), 3), metadata.ETag)

	fetchCtx, cancel := context.WithCancel(ctx)
	return &Reader{
		client:   client,
		bucket:   bucket,
		key:      key,
		opts:     opts,
		logger:   opts.Logger,
		metadata: metadata,
		ctx:      fetchCtx,
		cancel:   cancel,
		ranges:   chunker.Ranges(opts.Chunker, metadata.Size),
		stats:    &Stats{},
	}, nil
}

// Metadata returns the object's attributes as seen when the Reader was opened.
func (r *Reader) Metadata() ObjectMetadata {
	m := r.metadata
	m.UserMetadata = copyMetadata(r.metadata.UserMetadata)
	return m
}

// Size returns the size of the object.
func (r *Reader) Size() int64 {
	return r.metadata.Size
}

// Stats returns the download statistics.
func (r *Reader) Stats() *Stats {
	return r.stats
}

// Read reads the next bytes of the object. Once a range failed, every call returns that error.
func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrStreamClosed
	}
	if r.err != nil {
		return 0, r.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	for {
		if r.current == nil {
			f, err := r.next()
			if err != nil {
				return 0, r.fail(err)
			}
			if f == nil {
				return 0, io.EOF
			}
			r.current = f
			r.setReading(f.body)
		}

		f := r.current
		n, err := f.body.Read(p)
		f.read += int64(n)

		if err != nil && r.closing.Load() {
			return 0, r.fail(ErrStreamClosed)
		}

		if f.read > f.rng.Size() {
			return 0, r.fail(&TransportError{
				Op: "get object", PartNumber: f.number, Range: f.rng.String(),
				Err: fmt.Errorf("received %d bytes, expected %d", f.read, f.rng.Size()),
			})
		}

		if err == io.EOF {
			if f.read != f.rng.Size() {
				return 0, r.fail(&TransportError{
					Op: "get object", PartNumber: f.number, Range: f.rng.String(), Err: io.ErrUnexpectedEOF,
				})
			}
			r.finish(f)
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			return 0, r.fail(&TransportError{Op: "get object", PartNumber: f.number, Range: f.rng.String(), Err: err})
		}

		return n, nil
	}
}

// next starts fetches until Parallelism are in flight and waits for the earliest one.
// It returns nil once every range was consumed.
func (r *Reader) next() (*rangeFetch, error) {
	for len(r.pending) < r.opts.Parallelism {
		rng, ok := r.ranges.Next()
		if !ok {
			break
		}
		r.pending = append(r.pending, r.start(int32(r.ranges.Count()), rng))
	}

	if len(r.pending) == 0 {
		return nil, nil
	}

	f := r.pending[0]
	r.pending[0] = nil
	r.pending = r.pending[1:]

	select {
	case <-f.done:
	case <-r.ctx.Done():
		r.release(f)
		if r.closing.Load() {
			return nil, ErrStreamClosed
		}
		return nil, fmt.Errorf("download cancelled: %w", r.ctx.Err())
	}

	if f.err != nil {
		return nil, f.err
	}
	return f, nil
}

func (r *Reader) start(number int32, rng chunker.ByteRange) *rangeFetch {
	f := &rangeFetch{
		number:  number,
		rng:     rng,
		started: time.Now(),
		done:    make(chan struct{}),
	}

	input := &s3.GetObjectInput{}
	if r.opts.GetMutator != nil {
		r.opts.GetMutator(input)
	}
	input.Bucket = aws.String(r.bucket)
	input.Key = aws.String(r.key)
	input.Range = aws.String(rng.String())
	if !r.opts.NoIfMatch && r.metadata.ETag != "" {
		input.IfMatch = aws.String(r.metadata.ETag)
	}

	r.logger.Debugf("Downloading part %d (%s)", number, rng)

	go func() {
		defer close(f.done)

		out, err := r.client.GetObject(r.ctx, input, r.opts.ClientOptions...)
		if err != nil {
			f.err = &TransportError{Op: "get object", PartNumber: number, Range: rng.String(), Err: err}
			return
		}
		f.body = pipe.FromReader(out.Body, r.opts.BufferSize)
	}()

	return f
}

func (r *Reader) finish(f *rangeFetch) {
	took := time.Since(f.started)
	r.stats.Update(took, f.read)
	r.logger.Debugf("Part %d downloaded in %v", f.number, took.Round(time.Millisecond))

	_ = f.body.Close()
	r.current = nil
	r.setReading(nil)
}

// fail stops the download: nothing new is started and everything in flight is cancelled.
func (r *Reader) fail(err error) error {
	r.err = err
	r.stop()
	return err
}

func (r *Reader) stop() {
	r.cancel()

	if r.current != nil {
		_ = r.current.body.Close()
		r.current = nil
		r.setReading(nil)
	}
	for _, f := range r.pending {
		r.release(f)
	}
	r.pending = nil
}

// release waits for a cancelled fetch and closes its body.
func (r *Reader) release(f *rangeFetch) {
	<-f.done
	if f.body != nil {
		_ = f.body.Close()
	}
}

func (r *Reader) setReading(body *pipe.Pipe) {
	r.readingMu.Lock()
	defer r.readingMu.Unlock()

	r.reading = body
	// Close may have looked before the body was set.
	if body != nil && r.closing.Load() {
		_ = body.Close()
	}
}

// Close cancels the fetches still in flight and releases their buffers. A Read blocked on a range
// body returns ErrStreamClosed.
func (r *Reader) Close() error {
	r.closing.Store(true)
	r.cancel()

	r.readingMu.Lock()
	if r.reading != nil {
		_ = r.reading.Close()
	}
	r.readingMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrStreamClosed
	}
	r.closed = true
	r.stop()

	r.logger.Debugf("Downloaded %d parts (%s) of s3://%s/%s [avg=%v]",
		r.stats.FinishedCount(), units.HumanSizeWithPrecision(float64(r.stats.Bytes()), 3),
		r.bucket, r.key, r.stats.Average().Round(time.Millisecond))

	return nil
}
