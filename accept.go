package websock

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

// AcceptOptions represents the options available to pass to Accept.
type AcceptOptions struct {
	// Subprotocols lists the subprotocols that Accept will negotiate with
	// a client. The empty subprotocol will always be negotiated as per
	// RFC 6455. If you would like to reject it, close the connection when
	// c.Subprotocol() == "".
	Subprotocols []string

	// InsecureSkipVerify disables Accept's origin verification behaviour.
	// By default Accept only allows the handshake to succeed when the
	// script initiating it runs on the same domain as the server, to
	// prevent CSRF when secure data is stored in cookies.
	//
	// Think carefully about whether you really need this option before
	// you use it.
	InsecureSkipVerify bool
}

// Accept accepts an upgrade handshake from a client and promotes the
// connection to the framed protocol.
//
// Accept writes the response itself: either the 101 upgrade or, on
// failure, an appropriate error status, so the caller never has to.
// Handshake contract violations are reported wrapping ErrNotAcceptable.
func Accept(w http.ResponseWriter, r *http.Request, opts *AcceptOptions) (*Conn, error) {
	c, err := accept(w, r, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to accept connection: %w", err)
	}
	return c, nil
}

func accept(w http.ResponseWriter, r *http.Request, opts *AcceptOptions) (*Conn, error) {
	if opts == nil {
		opts = &AcceptOptions{}
	}

	err := verifyClientRequest(w, r)
	if err != nil {
		return nil, err
	}

	if !opts.InsecureSkipVerify {
		err = authenticateOrigin(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return nil, err
		}
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		err = errors.New("passed ResponseWriter does not implement http.Hijacker")
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return nil, err
	}

	w.Header().Set("Upgrade", "websocket")
	w.Header().Set("Connection", "Upgrade")
	w.Header().Set("Sec-WebSocket-Accept", secAcceptToken(r.Header.Get("Sec-WebSocket-Key")))

	subproto := selectSubprotocol(r, opts.Subprotocols)
	if subproto != "" {
		w.Header().Set("Sec-WebSocket-Protocol", subproto)
	}

	w.WriteHeader(http.StatusSwitchingProtocols)

	netConn, brw, err := hj.Hijack()
	if err != nil {
		err = fmt.Errorf("failed to hijack connection: %w", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, err
	}

	// https://github.com/golang/go/issues/32314
	b, _ := brw.Reader.Peek(brw.Reader.Buffered())
	brw.Reader.Reset(io.MultiReader(bytes.NewReader(b), netConn))

	return newConn(connConfig{
		rwc:         netConn,
		br:          brw.Reader,
		bw:          brw.Writer,
		subprotocol: w.Header().Get("Sec-WebSocket-Protocol"),
	}), nil
}

func verifyClientRequest(w http.ResponseWriter, r *http.Request) error {
	if !r.ProtoAtLeast(1, 1) {
		return notAcceptable(w, "handshake request must be at least HTTP/1.1: %q", r.Proto)
	}

	if !headerContainsToken(r.Header, "Connection", "Upgrade") {
		return notAcceptable(w, "Connection header %q does not contain Upgrade", r.Header.Get("Connection"))
	}

	if !headerContainsToken(r.Header, "Upgrade", "websocket") {
		return notAcceptable(w, "Upgrade header %q does not contain websocket", r.Header.Get("Upgrade"))
	}

	if r.Method != "GET" {
		return notAcceptable(w, "handshake request method is not GET but %q", r.Method)
	}

	if r.Header.Get("Sec-WebSocket-Version") != "13" {
		return notAcceptable(w, "unsupported protocol version %q", r.Header.Get("Sec-WebSocket-Version"))
	}

	if r.Header.Get("Sec-WebSocket-Key") == "" {
		return notAcceptable(w, "missing Sec-WebSocket-Key")
	}

	return nil
}

// notAcceptable rejects the handshake with a 400 before any upgrade bytes
// are written.
func notAcceptable(w http.ResponseWriter, f string, v ...interface{}) error {
	err := fmt.Errorf("%w: "+f, append([]interface{}{ErrNotAcceptable}, v...)...)
	http.Error(w, err.Error(), http.StatusBadRequest)
	return err
}

func authenticateOrigin(r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("failed to parse Origin header %q: %w", origin, err)
	}
	if !strings.EqualFold(u.Host, r.Host) {
		return fmt.Errorf("request Origin %q is not authorized for Host %q", origin, r.Host)
	}
	return nil
}

func selectSubprotocol(r *http.Request, subprotocols []string) string {
	for _, sp := range subprotocols {
		if headerContainsToken(r.Header, "Sec-WebSocket-Protocol", sp) {
			return sp
		}
	}
	return ""
}

func headerContainsToken(h http.Header, key, token string) bool {
	key = textproto.CanonicalMIMEHeaderKey(key)
	token = strings.ToLower(token)

	for _, v := range h[key] {
		for _, t := range strings.Split(v, ",") {
			if strings.ToLower(strings.TrimSpace(t)) == token {
				return true
			}
		}
	}
	return false
}

var keyGUID = []byte("258EAFA5-E914-47DA-95CA-C5AB0DC85B11")

// secAcceptToken derives the accept token for a handshake key:
// base64(SHA-1(key + GUID)). Both sides compute it; byte equality proves
// the server saw this client's key.
func secAcceptToken(secKey string) string {
	h := sha1.New()
	h.Write([]byte(secKey))
	h.Write(keyGUID)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
