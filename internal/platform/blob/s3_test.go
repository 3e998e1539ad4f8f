package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

// mockS3Transport serves the handful of S3 calls the store makes from memory.
type mockS3Transport struct {
	mu    sync.Mutex
	state map[string][]byte
}

func newMockS3(t *testing.T) *S3 {
	t.Helper()

	rt := &mockS3Transport{state: make(map[string][]byte)}

	s, err := NewS3(context.Background(), Config{
		S3Bucket:          "mock-bucket",
		S3Endpoint:        "https://mock.s3.local",
		S3PathStyle:       true,
		S3AccessKeyID:     "AKIA",
		S3SecretAccessKey: "SECRET",
	}, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
	})
	require.NoError(t, err)

	return s
}

func response(status int, body []byte, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}

	return &http.Response{
		StatusCode:    status,
		Body:          io.NopCloser(bytes.NewReader(body)),
		Header:        header,
		ContentLength: int64(len(body)),
	}
}

var notFoundBody = []byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)

func (m *mockS3Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)

	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return m.list(req.URL.Query().Get("prefix")), nil
	}

	switch req.Method {
	case http.MethodHead, http.MethodGet:
		body, ok := m.state[key]
		if !ok {
			if req.Method == http.MethodHead {
				return response(http.StatusNotFound, nil, nil), nil
			}

			return response(http.StatusNotFound, notFoundBody, http.Header{"Content-Type": {"application/xml"}}), nil
		}

		header := http.Header{
			"Content-Length": {strconv.Itoa(len(body))},
			"Content-Type":   {"application/octet-stream"},
			"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
			"Etag":           {`"etag"`},
		}

		if req.Method == http.MethodHead {
			resp := response(http.StatusOK, nil, header)
			resp.ContentLength = int64(len(body))

			return resp, nil
		}

		return response(http.StatusOK, body, header), nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeAWSChunked(body); ok {
			body = dec
		}

		m.state[key] = body

		return response(http.StatusOK, nil, http.Header{"Etag": {`"etag"`}}), nil
	}

	return response(http.StatusNotImplemented, nil, nil), nil
}

func (m *mockS3Transport) list(prefix string) *http.Response {
	keys := make([]string, 0, len(m.state))
	for k := range m.state {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	var b strings.Builder

	b.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)

	for _, k := range keys {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(m.state[k]))
	}

	b.WriteString("</ListBucketResult>")

	return response(http.StatusOK, []byte(b.String()), http.Header{"Content-Type": {"application/xml"}})
}

// decodeAWSChunked unwraps a single-chunk aws-chunked payload:
// <hex size>\r\n<body>\r\n0\r\n[trailers].
func decodeAWSChunked(b []byte) ([]byte, bool) {
	parts := strings.SplitN(string(b), "\r\n", 3)
	if len(parts) < 3 {
		return nil, false
	}

	size, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil || int64(len(parts[1])) != size || !strings.HasPrefix(parts[2], "0") {
		return nil, false
	}

	return []byte(parts[1]), true
}

func TestS3(t *testing.T) {
	s := newMockS3(t)
	require.Equal(t, DriverS3, s.Driver())
	exerciseStore(t, s)
}

func TestDecodeAWSChunked(t *testing.T) {
	dec, ok := decodeAWSChunked([]byte("3\r\nabc\r\n0\r\n"))
	require.True(t, ok)
	require.Equal(t, "abc", string(dec))

	_, ok = decodeAWSChunked([]byte("5\r\nabc\r\n0\r\n"))
	require.False(t, ok)

	_, ok = decodeAWSChunked([]byte(`{"plain":true}`))
	require.False(t, ok)
}
