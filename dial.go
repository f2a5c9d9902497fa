package websock

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"

	"github.com/fenwren/websock/internal/bufpool"
)

// DialOptions represents the options available to pass to Dial.
type DialOptions struct {
	// HTTPClient is the http client used for the handshake.
	// Its Transport must return writable bodies for upgraded
	// connections; http.Transport does this correctly.
	HTTPClient *http.Client

	// HTTPHeader specifies extra HTTP headers included in the handshake
	// request.
	HTTPHeader http.Header

	// Subprotocols lists the subprotocols to negotiate with the server.
	Subprotocols []string
}

// Dial performs an upgrade handshake on the given url with the given
// options.
//
// A fresh random 16 byte key is generated for every dial and the server's
// Sec-WebSocket-Accept token is verified against it: a mismatched token
// fails with ErrAcceptMismatch and any other refusal to upgrade fails with
// ErrRejected.
//
// The response is returned even on failure to aid in debugging. Its body
// will have been replaced by a bounded in-memory copy.
func Dial(ctx context.Context, u string, opts *DialOptions) (*Conn, *http.Response, error) {
	c, r, err := dial(ctx, u, opts)
	if err != nil {
		return nil, r, fmt.Errorf("failed to dial: %w", err)
	}
	return c, r, nil
}

func dial(ctx context.Context, u string, opts *DialOptions) (_ *Conn, _ *http.Response, err error) {
	if opts == nil {
		opts = &DialOptions{}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse url: %w", err)
	}

	switch parsedURL.Scheme {
	case "ws":
		parsedURL.Scheme = "http"
	case "wss":
		parsedURL.Scheme = "https"
	case "http", "https":
	default:
		return nil, nil, fmt.Errorf("unexpected url scheme: %q", parsedURL.Scheme)
	}

	key, err := secKey()
	if err != nil {
		return nil, nil, err
	}

	req, _ := http.NewRequestWithContext(ctx, "GET", parsedURL.String(), nil)
	if opts.HTTPHeader != nil {
		req.Header = opts.HTTPHeader.Clone()
	}
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", key)
	if len(opts.Subprotocols) > 0 {
		req.Header.Set("Sec-WebSocket-Protocol", strings.Join(opts.Subprotocols, ","))
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send handshake request: %w", err)
	}
	defer func() {
		if err != nil {
			// Keep a bit of the body around for debugging.
			respBody := resp.Body
			r := io.LimitReader(respBody, 1024)
			b, _ := ioutil.ReadAll(r)
			resp.Body = ioutil.NopCloser(bytes.NewReader(b))
			respBody.Close()
		}
	}()

	err = verifyServerResponse(resp, key)
	if err != nil {
		return nil, resp, err
	}

	rwc, ok := resp.Body.(io.ReadWriteCloser)
	if !ok {
		return nil, resp, fmt.Errorf("response body is not a io.ReadWriteCloser: %T", resp.Body)
	}

	return newConn(connConfig{
		rwc:         rwc,
		br:          bufpool.GetReader(rwc),
		bw:          bufpool.GetWriter(rwc),
		client:      true,
		subprotocol: resp.Header.Get("Sec-WebSocket-Protocol"),
	}), resp, nil
}

// secKey generates the random 16 byte handshake key, base64 encoded. The
// key is used once per dial.
func secKey() (string, error) {
	b := make([]byte, 16)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("failed to generate Sec-WebSocket-Key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func verifyServerResponse(resp *http.Response, key string) error {
	if resp.StatusCode != http.StatusSwitchingProtocols {
		return fmt.Errorf("%w: expected status %v but got %v", ErrRejected, http.StatusSwitchingProtocols, resp.StatusCode)
	}

	if !headerContainsToken(resp.Header, "Connection", "Upgrade") {
		return fmt.Errorf("%w: Connection header %q does not contain Upgrade", ErrRejected, resp.Header.Get("Connection"))
	}

	if !headerContainsToken(resp.Header, "Upgrade", "websocket") {
		return fmt.Errorf("%w: Upgrade header %q does not contain websocket", ErrRejected, resp.Header.Get("Upgrade"))
	}

	if accept := resp.Header.Get("Sec-WebSocket-Accept"); accept != secAcceptToken(key) {
		return fmt.Errorf("%w: got %q", ErrAcceptMismatch, accept)
	}

	return nil
}
