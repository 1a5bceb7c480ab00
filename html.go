/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"embed"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/fadetoe/internal/match"
)

//go:embed assets/*
var assets embed.FS

func serveLiveMatch(cfg *Config, mm *MatchManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		id, ok := mm.live()
		if !ok {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			securityHeaders(cfg, w)
			w.WriteHeader(http.StatusNotFound)

			io.WriteString(w, newPage("No match", "No match is being hosted right now."))

			return
		}

		http.Redirect(w, r, cfg.prefix+"/match/"+id, http.StatusSeeOther)
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveAssets(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		fname := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, cfg.prefix), "/")

		data, err := assets.ReadFile(fname)
		if err != nil {
			http.NotFound(w, r)

			return
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		ext := strings.ToLower(filepath.Ext(fname))
		switch ext {
		case ".css":
			w.Header().Set("Content-Type", "text/css; charset=utf-8")
		case ".js":
			w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		}

		_, err = w.Write(data)
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /match/`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}

// matchPage renders a spectator view; assets/match.js keeps it live over the
// match websocket.
func matchPage(cfg *Config, matchID, link string) string {
	var b strings.Builder

	b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
	b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
	b.WriteString(fmt.Sprintf(`<link rel="stylesheet" href="%s/assets/match.css">`, cfg.prefix))
	b.WriteString(fmt.Sprintf(`<title>fadetoe %s</title></head><body>`, html.EscapeString(matchID)))
	b.WriteString(fmt.Sprintf(`<h1>Match %s</h1>`, html.EscapeString(matchID)))
	b.WriteString(`<div id="board" class="board">`)
	for i := range match.Cells {
		b.WriteString(fmt.Sprintf(`<div class="cell" data-cell="%d"></div>`, i))
	}
	b.WriteString(`</div>`)
	b.WriteString(`<p id="status" class="status">Connecting…</p>`)
	b.WriteString(fmt.Sprintf(`<p>Play: <code>fadetoe join %s</code></p>`, html.EscapeString(link)))
	b.WriteString(fmt.Sprintf(`<img class="qr" alt="QR code for this match" src="%s/match/%s/qr">`, cfg.prefix, html.EscapeString(matchID)))
	b.WriteString(fmt.Sprintf(`<script src="%s/assets/match.js" defer></script>`, cfg.prefix))
	b.WriteString(`</body></html>`)

	return b.String()
}

func serveMatchPage(cfg *Config, mm *MatchManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		matchID := ps.ByName("matchid")
		if _, ok := mm.get(matchID); !ok {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			securityHeaders(cfg, w)
			w.WriteHeader(http.StatusNotFound)

			io.WriteString(w, newPage("Unknown match", "That match does not exist or has ended."))

			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		written, err := io.WriteString(w, matchPage(cfg, matchID, shareURL(cfg, matchID)))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Match page %s (%d B) to %s in %s",
			matchID,
			written,
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

type stateResponse struct {
	MatchID    string      `json:"matchId"`
	Spectators int         `json:"spectators"`
	PeerLost   bool        `json:"peerLost"`
	State      match.State `json:"state"`
}

func serveMatchState(cfg *Config, mm *MatchManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		hm, ok := mm.get(ps.ByName("matchid"))
		if !ok {
			http.Error(w, "unknown match", http.StatusNotFound)

			return
		}

		v, err := hm.session.Snapshot(r.Context())
		if err != nil {
			http.Error(w, "match unavailable", http.StatusServiceUnavailable)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		err = json.NewEncoder(w).Encode(stateResponse{
			MatchID:    v.MatchID,
			Spectators: v.Spectators,
			PeerLost:   v.PeerLost,
			State:      v.State,
		})
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveMatchSocket(cfg *Config, mm *MatchManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		hm, ok := mm.get(ps.ByName("matchid"))
		if !ok {
			http.Error(w, "unknown match", http.StatusNotFound)

			return
		}

		logf(cfg, "PEERS: websocket from %s for match %s", realIP(r), ps.ByName("matchid"))

		hm.listener.ServeHTTP(w, r)
	}
}

func qrHandler(cfg *Config, mm *MatchManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		matchID := ps.ByName("matchid")
		if _, ok := mm.get(matchID); !ok {
			http.Error(w, "unknown match", http.StatusNotFound)

			return
		}

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(shareURL(cfg, matchID), qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

func registerMatches(cfg *Config, path string, mm *MatchManager, mux *httprouter.Router, errs chan<- error) {
	// Root path → redirect to the live match
	mux.GET(cfg.prefix+path, serveLiveMatch(cfg, mm))

	// Per-match spectator view (HTML)
	mux.GET(cfg.prefix+path+"/:matchid", serveMatchPage(cfg, mm, errs))

	// Per-match state (JSON)
	mux.GET(cfg.prefix+path+"/:matchid/state", serveMatchState(cfg, mm, errs))

	// Per-match websocket
	mux.GET(cfg.prefix+path+"/:matchid/ws", serveMatchSocket(cfg, mm))

	// Per-match QR code
	mux.GET(cfg.prefix+path+"/:matchid/qr", qrHandler(cfg, mm))
}
