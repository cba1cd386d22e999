package s3stream

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func Test_normalizeETag(t *testing.T) {
	tests := []struct {
		etag string
		want string
	}{
		{etag: `"d41d8cd98f00b204e9800998ecf8427e"`, want: "d41d8cd98f00b204e9800998ecf8427e"},
		{etag: `D41D8CD98F00B204E9800998ECF8427E`, want: "d41d8cd98f00b204e9800998ecf8427e"},
		{etag: ` "abc-2" `, want: "abc-2"},
		{etag: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.etag, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeETag(tt.etag))
		})
	}
}

func Test_splitMultipartETag(t *testing.T) {
	tag, count, err := splitMultipartETag(`"9b2cf535f27731c974343645a3985328-12"`)
	require.NoError(t, err)
	assert.Equal(t, "9b2cf535f27731c974343645a3985328", tag)
	assert.Equal(t, 12, count)

	_, _, err = splitMultipartETag(`"9b2cf535f27731c974343645a3985328"`)
	assert.Error(t, err)

	_, _, err = splitMultipartETag(`"9b2cf535f27731c974343645a3985328-x"`)
	assert.Error(t, err)
}

func Test_aggregateETag(t *testing.T) {
	parts := []completedPart{
		{Number: 1, ETag: md5Hex("first")},
		{Number: 2, ETag: md5Hex("second")},
	}

	h := md5.New()
	for _, p := range parts {
		digest, err := hex.DecodeString(p.ETag)
		require.NoError(t, err)
		h.Write(digest)
	}
	want := hex.EncodeToString(h.Sum(nil))

	got, err := aggregateETag(md5.New, parts)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = aggregateETag(md5.New, []completedPart{{Number: 1, ETag: "not-hex"}})
	assert.Error(t, err)
}

func Test_verifyCompletion(t *testing.T) {
	parts := []completedPart{
		{Number: 1, ETag: md5Hex("first")},
		{Number: 2, ETag: md5Hex("second")},
	}
	aggregate, err := aggregateETag(md5.New, parts)
	require.NoError(t, err)

	assert.NoError(t, verifyCompletion(md5.New, parts, `"`+aggregate+`-2"`))

	err = verifyCompletion(md5.New, parts, `"`+aggregate+`-3"`)
	var verificationErr *CompletionVerificationError
	require.ErrorAs(t, err, &verificationErr)
	assert.Equal(t, 2, verificationErr.ExpectedParts)
	assert.Equal(t, 3, verificationErr.ActualParts)

	err = verifyCompletion(md5.New, parts, `"`+md5Hex("other")+`"`)
	require.ErrorAs(t, err, &verificationErr)
	assert.Equal(t, 0, verificationErr.ActualParts)
	assert.EqualError(t, err, "verify completed upload: not a multipart etag: \""+md5Hex("other")+"\"")
}

func TestPart(t *testing.T) {
	sum := md5.Sum([]byte("payload"))
	part := &Part{UploadID: "upload-1", Number: 3, Payload: []byte("payload"), Digest: sum[:]}

	assert.Equal(t, md5Hex("payload"), part.ETag())
	assert.Equal(t, "Mhw89IbtUJFk7eweGYH+yA==", part.ContentMD5())
	assert.Equal(t, "Part(uploadID=upload-1, number=3, etag="+md5Hex("payload")+")", part.String())
}
