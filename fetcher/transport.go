package fetcher

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// utlsConn wraps a utls.UConn so net/http2 can read its ConnectionState.
type utlsConn struct {
	*utls.UConn
}

func (c *utlsConn) ConnectionState() tls.ConnectionState {
	cs := c.UConn.ConnectionState()
	return tls.ConnectionState{
		Version:                    cs.Version,
		HandshakeComplete:          cs.HandshakeComplete,
		CipherSuite:                cs.CipherSuite,
		NegotiatedProtocol:         cs.NegotiatedProtocol,
		NegotiatedProtocolIsMutual: cs.NegotiatedProtocolIsMutual,
		ServerName:                 cs.ServerName,
		PeerCertificates:           cs.PeerCertificates,
		VerifiedChains:             cs.VerifiedChains,
		OCSPResponse:               cs.OCSPResponse,
		TLSUnique:                  cs.TLSUnique,
	}
}

func newPlainClient(allowPrivate bool) *http.Client {
	return &http.Client{Transport: &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialerFor(&net.Dialer{}, allowPrivate),
	}}
}

// newBrowserClient returns a client whose TLS handshake looks like Firefox.
// Sites that block Go's default fingerprint tend to answer 403, which would
// otherwise blacklist them. A zero timeout means no timeout.
func newBrowserClient(timeout time.Duration, allowPrivate bool) *http.Client {
	dial := dialerFor(&net.Dialer{Timeout: timeout}, allowPrivate)
	rt := &browserTransport{
		dial: dial,
		h1:   &http.Transport{DialContext: dial},
		h2:   &http2.Transport{},
	}
	return &http.Client{Timeout: timeout, Transport: rt}
}

type browserTransport struct {
	dial dialFunc
	h1   *http.Transport
	h2   *http2.Transport
}

func (bt *browserTransport) dialUTLS(ctx context.Context, addr, serverName string) (net.Conn, string, error) {
	conn, err := bt.dial(ctx, "tcp", addr)
	if err != nil {
		return nil, "", err
	}
	tlsConn := utls.UClient(conn, &utls.Config{ServerName: serverName}, utls.HelloFirefox_120)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, "", err
	}
	return &utlsConn{tlsConn}, tlsConn.ConnectionState().NegotiatedProtocol, nil
}

// RoundTrip dials a fresh connection per request. The connection is closed
// together with the response body.
func (bt *browserTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return bt.h1.RoundTrip(req)
	}

	host := req.URL.Hostname()
	port := req.URL.Port()
	if port == "" {
		port = "443"
	}
	conn, alpn, err := bt.dialUTLS(req.Context(), net.JoinHostPort(host, port), host)
	if err != nil {
		return nil, err
	}

	if alpn == "h2" {
		h2conn, err := bt.h2.NewClientConn(conn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		resp, err := h2conn.RoundTrip(req)
		if err != nil {
			h2conn.Close()
			return nil, err
		}
		resp.Body = &closingBody{ReadCloser: resp.Body, release: h2conn.Close}
		return resp, nil
	}

	// HTTP/1.1: hand the finished TLS conn to a one-shot transport.
	transport := &http.Transport{
		DisableKeepAlives: true,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return conn, nil
		},
	}
	resp, err := transport.RoundTrip(req)
	if err != nil {
		conn.Close()
		return nil, err
	}
	resp.Body = &closingBody{ReadCloser: resp.Body, release: func() error {
		transport.CloseIdleConnections()
		return nil
	}}
	return resp, nil
}

// closingBody releases the underlying connection once the body is closed.
type closingBody struct {
	io.ReadCloser
	release func() error
}

func (b *closingBody) Close() error {
	err := b.ReadCloser.Close()
	_ = b.release()
	return err
}
