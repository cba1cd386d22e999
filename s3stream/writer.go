package s3stream

import (
	"bytes"
	"context"
	"errors"
	"hash"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/bitrise-io/go-s3stream/chunker"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

const maxInitialBufferSize = 16 * 1024 * 1024

type writerState int

const (
	writerOpen writerState = iota
	writerClosing
	writerCompleted
	writerAborted
)

// Writer uploads everything written to it as a multipart upload.
//
// Writes are buffered until the current part size is reached, then the part is uploaded in the
// background. Close uploads the remainder, waits for every part and completes the upload, or
// aborts it if anything failed. A Writer is not safe for concurrent use.
type Writer struct {
	client   UploadAPIClient
	bucket   string
	key      string
	uploadID string
	opts     WriterOptions
	logger   log.Logger

	ctx         context.Context
	partCtx     context.Context
	cancelParts context.CancelFunc

	sizes    *chunker.SizeIterator
	buf      []byte
	digest   hash.Hash
	lastPart int32

	semaphore chan struct{}
	wg        sync.WaitGroup

	mu        sync.Mutex
	completed []completedPart
	err       error

	state  writerState
	result *s3.CompleteMultipartUploadOutput
	stats  *Stats
}

// NewWriter creates a multipart upload for bucket/key and returns a Writer feeding it.
// The upload is only finalised by Close; the caller must always call it.
func NewWriter(ctx context.Context, client UploadAPIClient, bucket, key string, optFns ...func(*WriterOptions)) (*Writer, error) {
	opts := DefaultWriterOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.normalize()

	input := &s3.CreateMultipartUploadInput{}
	if opts.CreateMutator != nil {
		opts.CreateMutator(input)
	}
	input.Bucket = aws.String(bucket)
	input.Key = aws.String(key)

	out, err := client.CreateMultipartUpload(ctx, input, opts.ClientOptions...)
	if err != nil {
		return nil, &SessionCreateError{Bucket: bucket, Key: key, Err: err}
	}
	uploadID := aws.ToString(out.UploadId)
	if uploadID == "" {
		return nil, &SessionCreateError{Bucket: bucket, Key: key, Err: errors.New("empty upload id")}
	}
	opts.Logger.Debugf("Created multipart upload %s for s3://%s/%s", uploadID, bucket, key)

	partCtx, cancel := context.WithCancel(ctx)
	w := &Writer{
		client:      client,
		bucket:      bucket,
		key:         key,
		uploadID:    uploadID,
		opts:        opts,
		logger:      opts.Logger,
		ctx:         ctx,
		partCtx:     partCtx,
		cancelParts: cancel,
		sizes:       chunker.NewSizeIterator(opts.Chunker),
		digest:      opts.NewHash(),
		semaphore:   make(chan struct{}, opts.Parallelism),
		stats:       &Stats{},
	}
	w.buf = w.newBuffer()

	return w, nil
}

// UploadID returns the identifier of the multipart upload.
func (w *Writer) UploadID() string {
	return w.uploadID
}

// Stats returns the upload statistics.
func (w *Writer) Stats() *Stats {
	return w.stats
}

// Result returns the response of the completed upload, nil until Close succeeded.
func (w *Writer) Result() *s3.CompleteMultipartUploadOutput {
	return w.result
}

// Write buffers p and uploads every part that fills up. It blocks while Parallelism parts are
// in flight and fails as soon as any part failed.
func (w *Writer) Write(p []byte) (int, error) {
	if w.state != writerOpen {
		return 0, ErrStreamClosed
	}
	if err := w.failure(); err != nil {
		return 0, err
	}

	written := 0
	for len(p) > 0 {
		target := w.sizes.Value()
		room := target - int64(len(w.buf))

		n := len(p)
		if int64(n) > room {
			n = int(room)
		}

		w.buf = append(w.buf, p[:n]...)
		w.digest.Write(p[:n])
		p = p[n:]
		written += n

		if int64(len(w.buf)) >= target {
			if err := w.flush(); err != nil {
				return written, err
			}
		}
	}

	return written, nil
}

// flush seals the buffer into a part and uploads it in the background.
func (w *Writer) flush() error {
	if err := w.failure(); err != nil {
		return err
	}
	if w.lastPart >= chunker.MaxPartCount {
		w.fail(ErrTooManyParts)
		return ErrTooManyParts
	}

	select {
	case w.semaphore <- struct{}{}:
	case <-w.partCtx.Done():
		if err := w.failure(); err != nil {
			return err
		}
		return w.partCtx.Err()
	}
	if err := w.failure(); err != nil {
		<-w.semaphore
		return err
	}

	w.lastPart++
	part := &Part{
		UploadID: w.uploadID,
		Number:   w.lastPart,
		Payload:  w.buf,
		Digest:   w.digest.Sum(nil),
	}

	w.sizes.Advance()
	w.buf = w.newBuffer()
	w.digest.Reset()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.semaphore }()

		w.uploadPart(part)
	}()

	return nil
}

func (w *Writer) uploadPart(part *Part) {
	size := int64(len(part.Payload))
	w.logger.Debugf("Uploading part %d (%s) [finished=%d] [avg=%v]",
		part.Number, units.HumanSizeWithPrecision(float64(size), 3),
		w.stats.FinishedCount(), w.stats.Average().Round(time.Millisecond))

	input := &s3.UploadPartInput{}
	if w.opts.PartMutator != nil {
		w.opts.PartMutator(input)
	}
	input.Bucket = aws.String(w.bucket)
	input.Key = aws.String(w.key)
	input.UploadId = aws.String(w.uploadID)
	input.PartNumber = aws.Int32(part.Number)
	input.Body = bytes.NewReader(part.Payload)
	input.ContentLength = aws.Int64(size)
	input.ContentMD5 = aws.String(part.ContentMD5())

	start := time.Now()
	out, err := w.client.UploadPart(w.partCtx, input, w.opts.ClientOptions...)
	if err != nil {
		w.fail(&TransportError{Op: "upload part", PartNumber: part.Number, Err: err})
		return
	}

	etag := normalizeETag(aws.ToString(out.ETag))
	if etag != part.ETag() {
		w.fail(&ChecksumMismatchError{PartNumber: part.Number, Expected: part.ETag(), Actual: etag})
		return
	}

	took := time.Since(start)
	w.stats.Update(took, size)
	w.logger.Debugf("Part %d uploaded in %v, ETag: %s", part.Number, took.Round(time.Millisecond), etag)

	w.mu.Lock()
	w.completed = append(w.completed, completedPart{Number: part.Number, ETag: etag})
	w.mu.Unlock()
}

// Close uploads the buffered remainder, waits for every part and completes the upload. If any
// part or the completion failed, the upload is aborted and the error that caused it returned.
func (w *Writer) Close() error {
	if w.state != writerOpen {
		return ErrStreamClosed
	}
	w.state = writerClosing
	defer w.cancelParts()

	// An empty stream still needs one (empty) part to complete.
	if len(w.buf) > 0 || w.lastPart == 0 {
		if err := w.flush(); err != nil {
			w.fail(err)
		}
	}
	w.wg.Wait()

	if err := w.failure(); err != nil {
		w.abort()
		return err
	}

	if err := w.complete(); err != nil {
		w.abort()
		return err
	}

	w.state = writerCompleted
	w.logger.Debugf("Uploaded %d parts (%s) to s3://%s/%s [avg=%v]",
		w.stats.FinishedCount(), units.HumanSizeWithPrecision(float64(w.stats.Bytes()), 3),
		w.bucket, w.key, w.stats.Average().Round(time.Millisecond))

	return nil
}

// Abort discards everything written so far: the parts in flight are cancelled and the multipart
// upload is aborted. Use it instead of Close when the data source failed.
func (w *Writer) Abort() error {
	if w.state != writerOpen {
		return ErrStreamClosed
	}
	w.state = writerClosing

	w.cancelParts()
	w.wg.Wait()
	w.abort()

	return nil
}

func (w *Writer) complete() error {
	w.mu.Lock()
	parts := make([]completedPart, len(w.completed))
	copy(parts, w.completed)
	w.mu.Unlock()

	sort.Slice(parts, func(i, j int) bool {
		return parts[i].Number < parts[j].Number
	})

	completed := make([]types.CompletedPart, 0, len(parts))
	for _, part := range parts {
		completed = append(completed, types.CompletedPart{
			ETag:       aws.String(part.ETag),
			PartNumber: aws.Int32(part.Number),
		})
	}

	out, err := w.client.CompleteMultipartUpload(w.ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(w.bucket),
		Key:      aws.String(w.key),
		UploadId: aws.String(w.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	}, w.opts.ClientOptions...)
	if err != nil {
		return &TransportError{Op: "complete multipart upload", Err: err}
	}

	if !w.opts.SkipCompletionCheck {
		if err := verifyCompletion(w.opts.NewHash, parts, aws.ToString(out.ETag)); err != nil {
			return err
		}
	}

	w.result = out
	return nil
}

// abort is best-effort: a failure is logged and never replaces the error that caused it.
func (w *Writer) abort() {
	w.state = writerAborted
	w.logger.Debugf("Aborting multipart upload %s", w.uploadID)

	ctx := context.WithoutCancel(w.ctx)
	err := retry.Times(w.opts.AbortRetries).Wait(w.opts.AbortRetryWait).Try(func(attempt uint) error {
		_, err := w.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(w.bucket),
			Key:      aws.String(w.key),
			UploadId: aws.String(w.uploadID),
		}, w.opts.ClientOptions...)
		return err
	})
	if err != nil {
		w.logger.Warnf("Failed to abort multipart upload %s: %s", w.uploadID, err)
	}
}

// fail records the first error and cancels the parts still in flight.
func (w *Writer) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err == nil {
		w.err = err
		w.cancelParts()
	}
}

func (w *Writer) failure() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Writer) newBuffer() []byte {
	size := w.sizes.Value()
	if size > maxInitialBufferSize {
		size = maxInitialBufferSize
	}
	return make([]byte, 0, size)
}
