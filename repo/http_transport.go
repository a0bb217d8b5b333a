package repo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spfs-io/spfs/rtmetrics"
)

// HTTPTransport implements store.Transport over plain HTTP, POSTing each
// RPC frame to "<base>/rpc/<op>" and reading the response body back as a
// single frame. This is the wire protocol for the http2:// repository
// address scheme -- modeled on the teacher registry client's use of
// http.Client for every blob/manifest operation (registry/client),
// narrowed to spfs's single digest-keyed opcode framing instead of a
// REST-per-resource API.
type HTTPTransport struct {
	base   string
	client *http.Client
}

// NewHTTPTransport returns an HTTPTransport rooted at base (e.g.
// "https://registry.example.com/spfs/v1").
func NewHTTPTransport(base string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{base: base, client: client}
}

// Call implements store.Transport. A 200 response is a found result, 404
// is a "not found" result (found=false, err=nil), anything else is a
// transport-level error.
func (t *HTTPTransport) Call(ctx context.Context, op byte, body io.Reader) (io.ReadCloser, bool, error) {
	url := fmt.Sprintf("%s/rpc/%d", t.base, op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	start := time.Now()
	resp, err := t.client.Do(req)
	rtmetrics.Since(rtmetrics.RPCCallDuration, start)
	if err != nil {
		return nil, false, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, true, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return io.NopCloser(bytes.NewReader(nil)), false, nil
	default:
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, false, fmt.Errorf("rpc call op=%d failed: %s: %s", op, resp.Status, msg)
	}
}
