package s3stream

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectMetadata is the snapshot of an object's attributes taken when a Reader is opened.
type ObjectMetadata struct {
	Size               int64
	ContentType        string
	ContentEncoding    string
	ContentDisposition string
	ContentLanguage    string
	CacheControl       string
	Expires            time.Time
	LastModified       time.Time
	VersionID          string
	// ETag is the entity tag as returned by the store, quotes included.
	ETag         string
	UserMetadata map[string]string
}

func metadataFromHead(out *s3.HeadObjectOutput) ObjectMetadata {
	m := ObjectMetadata{
		Size:               aws.ToInt64(out.ContentLength),
		ContentType:        aws.ToString(out.ContentType),
		ContentEncoding:    aws.ToString(out.ContentEncoding),
		ContentDisposition: aws.ToString(out.ContentDisposition),
		ContentLanguage:    aws.ToString(out.ContentLanguage),
		CacheControl:       aws.ToString(out.CacheControl),
		Expires:            aws.ToTime(out.Expires),
		LastModified:       aws.ToTime(out.LastModified),
		VersionID:          aws.ToString(out.VersionId),
		ETag:               aws.ToString(out.ETag),
	}
	m.UserMetadata = copyMetadata(out.Metadata)
	return m
}

func copyMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
