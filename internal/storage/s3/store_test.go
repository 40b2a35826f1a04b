package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mkoziy/antigen/sequencing/internal/storage/core"
)

// mockRoundTripper serves the subset of the S3 API the store uses.
type mockRoundTripper struct {
	mu    sync.Mutex
	state map[string]stored
}

type stored struct {
	body        []byte
	contentType string
}

func empty(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) { //nolint:cyclop
	m.mu.Lock()
	defer m.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && strings.Contains(req.URL.RawQuery, "list-type=2") {
		prefix := req.URL.Query().Get("prefix")
		cont := req.URL.Query().Get("continuation-token")
		var keys []string
		for k := range m.state {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0"?><ListBucketResult>`)
		page := keys
		if cont == "" && len(keys) > 1 {
			page = keys[:1]
			b.WriteString("<IsTruncated>true</IsTruncated><NextContinuationToken>tok123</NextContinuationToken>")
		} else {
			if cont != "" && len(keys) > 1 {
				page = keys[1:]
			}
			b.WriteString("<IsTruncated>false</IsTruncated>")
		}
		for _, k := range page {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(m.state[k].body))
		}
		b.WriteString("</ListBucketResult>")
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(b.String())), Header: http.Header{"Content-Type": {"application/xml"}}}, nil
	}
	switch req.Method {
	case http.MethodHead, http.MethodGet:
		st, ok := m.state[key]
		if !ok {
			if req.Method == http.MethodGet {
				body := `<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`
				return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(body)), Header: http.Header{"Content-Type": {"application/xml"}}}, nil
			}
			return empty(http.StatusNotFound), nil
		}
		body := st.body
		if req.Method == http.MethodHead {
			body = nil
		}
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(body)), Header: http.Header{
			"Content-Length": {strconv.Itoa(len(st.body))},
			"Content-Type":   {st.contentType},
			"Etag":           {`"etag123"`},
			"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
		}}, nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeChunked(body); ok {
			body = dec
		}
		m.state[key] = stored{body: body, contentType: req.Header.Get("Content-Type")}
		resp := empty(http.StatusOK)
		resp.Header.Set("Etag", `"etag123"`)
		return resp, nil
	case http.MethodDelete:
		delete(m.state, key)
		return empty(http.StatusNoContent), nil
	}
	return empty(http.StatusNotImplemented), nil
}

// decodeChunked unwraps a single-chunk aws-chunked payload.
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	n, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil || n <= 0 || int64(len(parts[1])) != n || parts[2] != "0" {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newMockStore(t *testing.T) *Store {
	t.Helper()
	rt := &mockRoundTripper{state: make(map[string]stored)}
	s, err := New(context.Background(), Config{
		Bucket:          "antigen-test",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
	}, func(o *awsS3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return s
}

func TestStoreMockedFlow(t *testing.T) {
	store := newMockStore(t)
	ctx := context.Background()
	if store.Driver() != core.DriverS3 {
		t.Fatalf("expected DriverS3")
	}
	key := "seqruns/1/0/abc/seqres.zip"
	info, err := store.Put(ctx, key, bytes.NewReader([]byte("hello")), core.PutOptions{ContentType: "application/zip"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != key || info.ContentType != "application/zip" || info.ETag != "etag123" {
		t.Fatalf("unexpected info %#v", info)
	}
	if _, err := store.Put(ctx, key, bytes.NewReader([]byte("again")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "hello" {
		t.Fatalf("get mismatch: %q", data)
	}

	if _, err := store.Put(ctx, "seqruns/1/1/def/seqres.zip", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("put2: %v", err)
	}
	list, err := store.List(ctx, "seqruns/1/")
	if err != nil || len(list) != 2 {
		t.Fatalf("list across pages: %v %+v", err, list)
	}

	url, err := store.PresignURL(ctx, key, core.SignedURLOptions{Expiry: 30 * time.Second})
	if err != nil || !strings.Contains(url, "seqruns/1/0/abc/seqres.zip") {
		t.Fatalf("presign: %v %s", err, url)
	}
	if _, err := store.PresignURL(ctx, key, core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}

	if ok, err := store.Delete(ctx, key); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, key); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
}

func TestStoreNotFound(t *testing.T) {
	store := newMockStore(t)
	ctx := context.Background()
	if _, err := store.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("head: expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}

func TestFromHeadDefaults(t *testing.T) {
	etag := `"abc"`
	info := fromHead("k", 10, nil, &etag, nil, nil)
	if info.ETag != "abc" || info.ContentType != "" || info.Size != 10 || info.LastModified.IsZero() {
		t.Fatalf("unexpected info: %+v", info)
	}
}
