// Package fakes3 provides an in-memory stand-in for the S3 multipart and ranged GET API.
package fakes3

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Operation names used by Calls.
const (
	OpHeadObject              = "HeadObject"
	OpGetObject               = "GetObject"
	OpCreateMultipartUpload   = "CreateMultipartUpload"
	OpUploadPart              = "UploadPart"
	OpCompleteMultipartUpload = "CompleteMultipartUpload"
	OpAbortMultipartUpload    = "AbortMultipartUpload"
)

type object struct {
	data         []byte
	etag         string
	contentType  string
	metadata     map[string]string
	lastModified time.Time
}

type upload struct {
	bucket      string
	key         string
	contentType string
	metadata    map[string]string
	parts       map[int32][]byte
}

// Store is a fake S3 client. The zero value is not usable, use New.
//
// The hook fields may be set before the store is used to inject failures.
type Store struct {
	// FailHead makes HeadObject fail.
	FailHead error
	// FailCreate makes CreateMultipartUpload fail.
	FailCreate error
	// FailGet is called with the Range header of every GetObject; a non-nil error fails the call.
	FailGet func(rangeHeader string) error
	// FailBody is called with the Range header of every GetObject; a non-nil error is returned
	// by the body once half the range has been read.
	FailBody func(rangeHeader string) error
	// FailPart is called for every UploadPart; a non-nil error fails the call.
	FailPart func(partNumber int32) error
	// TamperPartETag rewrites the ETag returned by UploadPart.
	TamperPartETag func(partNumber int32, etag string) string
	// FailComplete makes CompleteMultipartUpload fail.
	FailComplete error
	// TamperCompleteETag rewrites the ETag returned by CompleteMultipartUpload.
	TamperCompleteETag func(etag string) string
	// FailAbort makes AbortMultipartUpload fail.
	FailAbort error
	// Delay is called before a GetObject or UploadPart returns.
	Delay func(op string, n int) time.Duration

	mu       sync.Mutex
	objects  map[string]*object
	uploads  map[string]*upload
	nextID   int
	calls    map[string]int
	ranges   []string
	aborted  []string
	inFlight map[string]int
	maxIn    map[string]int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		objects:  map[string]*object{},
		uploads:  map[string]*upload{},
		calls:    map[string]int{},
		inFlight: map[string]int{},
		maxIn:    map[string]int{},
	}
}

func objectKey(bucket, key string) string {
	return bucket + "/" + key
}

// Put stores an object as if it was uploaded in one piece.
func (s *Store) Put(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := md5.Sum(data)
	s.objects[objectKey(bucket, key)] = &object{
		data:         append([]byte(nil), data...),
		etag:         fmt.Sprintf("%q", hex.EncodeToString(sum[:])),
		lastModified: time.Now().UTC(),
		metadata:     map[string]string{},
	}
}

// Object returns the content of a stored object.
func (s *Store) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[objectKey(bucket, key)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// Calls returns how many times op was called.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Ranges returns the Range headers of every GetObject call, in call order.
func (s *Store) Ranges() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ranges...)
}

// Aborted returns the IDs of aborted uploads.
func (s *Store) Aborted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.aborted...)
}

// OpenUploads returns the number of uploads neither completed nor aborted.
func (s *Store) OpenUploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

// MaxInFlight returns the highest number of concurrent calls of op observed.
func (s *Store) MaxInFlight(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxIn[op]
}

func (s *Store) enter(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[op]++
	s.inFlight[op]++
	if s.inFlight[op] > s.maxIn[op] {
		s.maxIn[op] = s.inFlight[op]
	}
	return s.calls[op]
}

func (s *Store) leave(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight[op]--
}

func (s *Store) wait(ctx context.Context, op string, n int) error {
	if s.Delay == nil {
		return nil
	}
	d := s.Delay(op, n)
	if d <= 0 {
		return nil
	}

	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func apiError(code, message string) error {
	return &smithy.GenericAPIError{Code: code, Message: message}
}

// HeadObject ...
func (s *Store) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	s.enter(OpHeadObject)
	defer s.leave(OpHeadObject)

	if s.FailHead != nil {
		return nil, s.FailHead
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[objectKey(aws.ToString(in.Bucket), aws.ToString(in.Key))]
	if !ok {
		return nil, &types.NotFound{Message: aws.String("Not Found")}
	}

	lastModified := obj.lastModified
	out := &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ETag:          aws.String(obj.etag),
		LastModified:  &lastModified,
		Metadata:      map[string]string{},
	}
	if obj.contentType != "" {
		out.ContentType = aws.String(obj.contentType)
	}
	for k, v := range obj.metadata {
		out.Metadata[k] = v
	}
	return out, nil
}

// GetObject ...
func (s *Store) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	n := s.enter(OpGetObject)
	defer s.leave(OpGetObject)

	rangeHeader := aws.ToString(in.Range)
	s.mu.Lock()
	s.ranges = append(s.ranges, rangeHeader)
	s.mu.Unlock()

	if err := s.wait(ctx, OpGetObject, n); err != nil {
		return nil, err
	}
	if s.FailGet != nil {
		if err := s.FailGet(rangeHeader); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	obj, ok := s.objects[objectKey(aws.ToString(in.Bucket), aws.ToString(in.Key))]
	s.mu.Unlock()
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	if in.IfMatch != nil && aws.ToString(in.IfMatch) != obj.etag {
		return nil, apiError("PreconditionFailed", "At least one of the pre-conditions you specified did not hold")
	}

	data := obj.data
	if rangeHeader != "" {
		begin, end, err := parseRange(rangeHeader)
		if err != nil {
			return nil, err
		}
		if begin >= int64(len(data)) {
			return nil, apiError("InvalidRange", "The requested range is not satisfiable")
		}
		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}
		data = data[begin : end+1]
	}

	var body io.Reader = bytes.NewReader(append([]byte(nil), data...))
	if s.FailBody != nil {
		if err := s.FailBody(rangeHeader); err != nil {
			body = io.MultiReader(io.LimitReader(body, int64(len(data)/2)), failingReader{err})
		}
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(body),
		ContentLength: aws.Int64(int64(len(data))),
		ETag:          aws.String(obj.etag),
	}, nil
}

func parseRange(header string) (int64, int64, error) {
	value := strings.TrimPrefix(header, "bytes=")
	bounds := strings.Split(value, "-")
	if value == header || len(bounds) != 2 {
		return 0, 0, apiError("InvalidArgument", "invalid range: "+header)
	}

	begin, err := strconv.ParseInt(bounds[0], 10, 64)
	if err != nil {
		return 0, 0, apiError("InvalidArgument", "invalid range: "+header)
	}
	end, err := strconv.ParseInt(bounds[1], 10, 64)
	if err != nil || end < begin {
		return 0, 0, apiError("InvalidArgument", "invalid range: "+header)
	}
	return begin, end, nil
}

// CreateMultipartUpload ...
func (s *Store) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	s.enter(OpCreateMultipartUpload)
	defer s.leave(OpCreateMultipartUpload)

	if s.FailCreate != nil {
		return nil, s.FailCreate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := fmt.Sprintf("upload-%d", s.nextID)
	s.uploads[id] = &upload{
		bucket:      aws.ToString(in.Bucket),
		key:         aws.ToString(in.Key),
		contentType: aws.ToString(in.ContentType),
		metadata:    in.Metadata,
		parts:       map[int32][]byte{},
	}

	return &s3.CreateMultipartUploadOutput{
		Bucket:   in.Bucket,
		Key:      in.Key,
		UploadId: aws.String(id),
	}, nil
}

// UploadPart ...
func (s *Store) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	n := s.enter(OpUploadPart)
	defer s.leave(OpUploadPart)

	number := aws.ToInt32(in.PartNumber)
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	if err := s.wait(ctx, OpUploadPart, n); err != nil {
		return nil, err
	}
	if s.FailPart != nil {
		if err := s.FailPart(number); err != nil {
			return nil, err
		}
	}

	sum := md5.Sum(data)
	if in.ContentMD5 != nil && aws.ToString(in.ContentMD5) != base64.StdEncoding.EncodeToString(sum[:]) {
		return nil, apiError("BadDigest", "The Content-MD5 you specified did not match what we received.")
	}
	if in.ContentLength != nil && aws.ToInt64(in.ContentLength) != int64(len(data)) {
		return nil, apiError("IncompleteBody", "You did not provide the number of bytes specified by the Content-Length HTTP header.")
	}

	s.mu.Lock()
	u, ok := s.uploads[aws.ToString(in.UploadId)]
	if ok {
		u.parts[number] = data
	}
	s.mu.Unlock()
	if !ok {
		return nil, apiError("NoSuchUpload", "The specified upload does not exist.")
	}

	etag := hex.EncodeToString(sum[:])
	if s.TamperPartETag != nil {
		etag = s.TamperPartETag(number, etag)
	}
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("%q", etag))}, nil
}

// CompleteMultipartUpload ...
func (s *Store) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	s.enter(OpCompleteMultipartUpload)
	defer s.leave(OpCompleteMultipartUpload)

	if s.FailComplete != nil {
		return nil, s.FailComplete
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := aws.ToString(in.UploadId)
	u, ok := s.uploads[id]
	if !ok {
		return nil, apiError("NoSuchUpload", "The specified upload does not exist.")
	}
	if in.MultipartUpload == nil || len(in.MultipartUpload.Parts) == 0 {
		return nil, apiError("MalformedXML", "The XML you provided was not well-formed.")
	}

	var content bytes.Buffer
	aggregate := md5.New()
	parts := in.MultipartUpload.Parts
	if !sort.SliceIsSorted(parts, func(i, j int) bool {
		return aws.ToInt32(parts[i].PartNumber) < aws.ToInt32(parts[j].PartNumber)
	}) {
		return nil, apiError("InvalidPartOrder", "The list of parts was not in ascending order.")
	}
	for _, part := range parts {
		data, ok := u.parts[aws.ToInt32(part.PartNumber)]
		if !ok {
			return nil, apiError("InvalidPart", "One or more of the specified parts could not be found.")
		}
		sum := md5.Sum(data)
		if strings.Trim(aws.ToString(part.ETag), `"`) != hex.EncodeToString(sum[:]) {
			return nil, apiError("InvalidPart", "One or more of the specified parts could not be found.")
		}
		aggregate.Write(sum[:])
		content.Write(data)
	}

	etag := fmt.Sprintf("%s-%d", hex.EncodeToString(aggregate.Sum(nil)), len(parts))
	if s.TamperCompleteETag != nil {
		etag = s.TamperCompleteETag(etag)
	}
	quoted := fmt.Sprintf("%q", etag)

	s.objects[objectKey(u.bucket, u.key)] = &object{
		data:         content.Bytes(),
		etag:         quoted,
		contentType:  u.contentType,
		metadata:     u.metadata,
		lastModified: time.Now().UTC(),
	}
	delete(s.uploads, id)

	return &s3.CompleteMultipartUploadOutput{
		Bucket:   aws.String(u.bucket),
		Key:      aws.String(u.key),
		ETag:     aws.String(quoted),
		Location: aws.String(fmt.Sprintf("https://%s.s3.amazonaws.com/%s", u.bucket, u.key)),
	}, nil
}

// AbortMultipartUpload ...
func (s *Store) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	s.enter(OpAbortMultipartUpload)
	defer s.leave(OpAbortMultipartUpload)

	id := aws.ToString(in.UploadId)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.aborted = append(s.aborted, id)
	if s.FailAbort != nil {
		return nil, s.FailAbort
	}
	delete(s.uploads, id)

	return &s3.AbortMultipartUploadOutput{}, nil
}

type failingReader struct {
	err error
}

func (r failingReader) Read([]byte) (int, error) {
	return 0, r.err
}
