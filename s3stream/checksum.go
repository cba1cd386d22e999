package s3stream

import (
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"
)

// normalizeETag strips the quotes S3 puts around entity tags.
func normalizeETag(etag string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(etag), `"`))
}

// splitMultipartETag splits a multipart ETag ("<hex>-<part count>") into its parts.
func splitMultipartETag(etag string) (string, int, error) {
	tag := normalizeETag(etag)

	i := strings.LastIndex(tag, "-")
	if i < 0 {
		return "", 0, fmt.Errorf("not a multipart etag: %s", etag)
	}

	count, err := strconv.Atoi(tag[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("parse part count of etag %s: %w", etag, err)
	}

	return tag[:i], count, nil
}

// aggregateETag hashes the concatenated raw digests of the parts, which must be ordered by
// part number. This is how S3 derives the ETag of a completed multipart upload.
func aggregateETag(newHash func() hash.Hash, parts []completedPart) (string, error) {
	h := newHash()
	for _, part := range parts {
		digest, err := hex.DecodeString(part.ETag)
		if err != nil {
			return "", fmt.Errorf("decode etag of part %d: %w", part.Number, err)
		}
		h.Write(digest)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func verifyCompletion(newHash func() hash.Hash, parts []completedPart, etag string) error {
	expected, err := aggregateETag(newHash, parts)
	if err != nil {
		return err
	}

	tag, count, err := splitMultipartETag(etag)
	if err != nil {
		return &CompletionVerificationError{
			ExpectedETag:  expected,
			ActualETag:    normalizeETag(etag),
			ExpectedParts: len(parts),
			Err:           err,
		}
	}

	if tag != expected || count != len(parts) {
		return &CompletionVerificationError{
			ExpectedETag:  expected,
			ActualETag:    tag,
			ExpectedParts: len(parts),
			ActualParts:   count,
		}
	}
	return nil
}
