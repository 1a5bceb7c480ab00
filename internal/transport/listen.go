/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package transport

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// Listener accepts peers on an HTTP endpoint and upgrades them to
// websockets.
type Listener struct {
	upgrader websocket.Upgrader
	handler  Handler
	opts     Options
}

func NewListener(h Handler, opts Options) *Listener {
	return &Listener{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		handler: h,
		opts:    opts.withDefaults(),
	}
}

// ServeHTTP blocks for the lifetime of the accepted connection.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.opts.Logf("PEERS: upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	c := newConn(ws, l.opts)
	l.opts.Logf("PEERS: accepted %s as %s", c.RemoteAddr(), c.ID())

	c.start(l.handler)
	c.readPump(l.handler)
}
