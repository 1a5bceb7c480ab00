/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
)

// Relay is a forwarding path handed out by the relay provider. TCP and TLS
// relays are used as authenticated HTTP CONNECT proxies.
type Relay struct {
	Address    string `mapstructure:"address"`
	Port       int    `mapstructure:"port"`
	Transport  string `mapstructure:"transport"`
	Username   string `mapstructure:"username"`
	Credential string `mapstructure:"credential"`
}

const (
	RelayTCP = "tcp"
	RelayTLS = "tls"
	RelayUDP = "udp"
)

func (r Relay) String() string {
	return net.JoinHostPort(r.Address, strconv.Itoa(r.Port)) + "?transport=" + r.transport()
}

func (r Relay) transport() string {
	if r.Transport == "" {
		return RelayTCP
	}
	return strings.ToLower(r.Transport)
}

// Validate reports relays that could never be dialed.
func (r Relay) Validate() error {
	if r.Address == "" {
		return errors.New("relay address is empty")
	}
	if r.Port < 1 || r.Port > 65535 {
		return fmt.Errorf("relay %s: invalid port %d", r.Address, r.Port)
	}
	switch r.transport() {
	case RelayTCP, RelayTLS, RelayUDP:
	default:
		return fmt.Errorf("relay %s: unknown transport %q", r.Address, r.Transport)
	}
	return nil
}

// ProxyURL returns the proxy address for stream relays. UDP relays cannot
// carry a websocket and have none.
func (r Relay) ProxyURL() (*url.URL, bool) {
	scheme := "http"
	switch r.transport() {
	case RelayTCP:
	case RelayTLS:
		scheme = "https"
	default:
		return nil, false
	}

	u := &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(r.Address, strconv.Itoa(r.Port)),
	}
	if r.Username != "" {
		u.User = url.UserPassword(r.Username, r.Credential)
	}
	return u, true
}

// WebSocketURL turns a shared match link into the websocket endpoint of
// that match.
func WebSocketURL(matchURL string) (string, error) {
	u, err := url.Parse(matchURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnsupportedURL, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrUnsupportedURL)
	}

	u.Path = strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(u.Path, "/ws") {
		u.Path += "/ws"
	}
	u.RawQuery = ""
	u.Fragment = ""

	return u.String(), nil
}

// Dial connects to a match, directly first and then through each relay in
// order. On success the channel is already handed to h.
func Dial(ctx context.Context, matchURL string, relays []Relay, h Handler, opts Options) (*Conn, error) {
	opts = opts.withDefaults()

	target, err := WebSocketURL(matchURL)
	if err != nil {
		return nil, err
	}

	type route struct {
		name  string
		proxy func(*http.Request) (*url.URL, error)
	}

	routes := []route{{name: "direct"}}
	for _, r := range relays {
		u, ok := r.ProxyURL()
		if !ok {
			opts.Logf("PEERS: skipping relay %s, cannot carry a websocket", r)
			continue
		}
		routes = append(routes, route{name: "relay " + r.String(), proxy: http.ProxyURL(u)})
	}

	var errs []error
	for _, rt := range routes {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		dialer := websocket.Dialer{
			Proxy:            rt.proxy,
			HandshakeTimeout: opts.ConnectTimeout,
		}

		ws, resp, err := dialer.DialContext(ctx, target, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			opts.Logf("PEERS: %s to %s failed: %v", rt.name, target, err)
			errs = append(errs, fmt.Errorf("%s: %w", rt.name, err))
			continue
		}

		c := newConn(ws, opts)
		opts.Logf("PEERS: connected to %s via %s as %s", target, rt.name, c.ID())

		c.start(h)
		go c.readPump(h)

		return c, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrNoRoute, errors.Join(errs...))
}
