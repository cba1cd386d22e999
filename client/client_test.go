package client

import (
	"context"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing region",
			cfg:     Config{AccessKeyID: "id", SecretAccessKey: "secret"},
			wantErr: "load aws config: region must not be empty",
		},
		{
			name: "static credentials",
			cfg:  Config{Region: "eu-west-1", AccessKeyID: "id", SecretAccessKey: "secret"},
		},
		{
			name: "custom endpoint",
			cfg:  Config{Region: "us-east-1", AccessKeyID: "id", SecretAccessKey: "secret", Endpoint: "http://localhost:9000", UsePathStyle: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(context.Background(), tt.cfg, log.NewLogger())
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				assert.Nil(t, client)
				return
			}
			require.NoError(t, err)

			opts := client.Options()
			assert.Equal(t, tt.cfg.Region, opts.Region)
			assert.Equal(t, tt.cfg.UsePathStyle, opts.UsePathStyle)
			if tt.cfg.Endpoint != "" {
				assert.Equal(t, tt.cfg.Endpoint, aws.ToString(opts.BaseEndpoint))
			} else {
				assert.Nil(t, opts.BaseEndpoint)
			}

			creds, err := opts.Credentials.Retrieve(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "id", creds.AccessKeyID)
		})
	}
}

func Test_customRetryFunction(t *testing.T) {
	mockLogger := new(mocks.Logger)
	mockLogger.On("Debugf", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()

	cases := []struct {
		name     string
		response *http.Response
		error    error
		expected bool
	}{
		{name: "server error", response: &http.Response{StatusCode: http.StatusServiceUnavailable}, expected: true},
		{name: "throttled", response: &http.Response{StatusCode: http.StatusTooManyRequests}, expected: true},
		{name: "ok", response: &http.Response{StatusCode: http.StatusOK}, expected: false},
		{name: "not found", response: &http.Response{StatusCode: http.StatusNotFound}, expected: false},
		{name: "connection error", error: errors.New("connection reset by peer"), expected: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			retry, _ := createCustomRetryFunction(mockLogger)(context.Background(), tc.response, tc.error)
			assert.Equal(t, tc.expected, retry)
		})
	}
	mockLogger.AssertNumberOfCalls(t, "Debugf", len(cases))
}

func Test_newHTTPClient_retriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer svr.Close()

	client := newHTTPClient(0, nil, log.NewLogger())
	resp, err := client.Get(svr.URL)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func Test_newHTTPClient_returnsLastResponse(t *testing.T) {
	var calls atomic.Int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer svr.Close()

	client := newHTTPClient(-1, nil, log.NewLogger())
	resp, err := client.Get(svr.URL)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestResolveRegion(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "/my-bucket", r.URL.Path)
		w.Header().Set("X-Amz-Bucket-Region", "eu-west-2")
		w.WriteHeader(http.StatusOK)
	}))
	defer svr.Close()

	s3Client, err := New(context.Background(), Config{
		Region:          "us-east-1",
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
		Endpoint:        svr.URL,
		UsePathStyle:    true,
		RetryMax:        -1,
	}, log.NewLogger())
	require.NoError(t, err)

	region, err := ResolveRegion(context.Background(), s3Client, "my-bucket")
	require.NoError(t, err)
	assert.Equal(t, "eu-west-2", region)

	_, err = ResolveRegion(context.Background(), s3Client, "")
	assert.EqualError(t, err, "bucket must not be empty")
}

func TestNew_customCABundle(t *testing.T) {
	svr := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Amz-Bucket-Region", "ap-south-1")
		w.WriteHeader(http.StatusOK)
	}))
	defer svr.Close()

	bundle := filepath.Join(t.TempDir(), "ca.pem")
	cert := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: svr.Certificate().Raw})
	require.NoError(t, os.WriteFile(bundle, cert, 0600))
	t.Setenv("AWS_CA_BUNDLE", bundle)

	s3Client, err := New(context.Background(), Config{
		Region:          "us-east-1",
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
		Endpoint:        svr.URL,
		UsePathStyle:    true,
		RetryMax:        -1,
	}, log.NewLogger())
	require.NoError(t, err)

	// The test server's certificate is only trusted through the bundle.
	region, err := ResolveRegion(context.Background(), s3Client, "my-bucket")
	require.NoError(t, err)
	assert.Equal(t, "ap-south-1", region)
}
