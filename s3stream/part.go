package s3stream

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Part is one sealed piece of a multipart upload. It is never modified once created.
type Part struct {
	UploadID string
	Number   int32
	Payload  []byte
	Digest   []byte
}

// ETag returns the tag the store is expected to report for the part.
func (p *Part) ETag() string {
	return hex.EncodeToString(p.Digest)
}

// ContentMD5 returns the integrity header value sent with the part.
func (p *Part) ContentMD5() string {
	return base64.StdEncoding.EncodeToString(p.Digest)
}

func (p *Part) String() string {
	return fmt.Sprintf("Part(uploadID=%s, number=%d, etag=%s)", p.UploadID, p.Number, p.ETag())
}

type completedPart struct {
	Number int32
	// ETag is the normalised tag reported by the store.
	ETag string
}
