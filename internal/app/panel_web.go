// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/eink_station/internal/panelsim"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const panelPage = `<!DOCTYPE html>
<html>
<head><title>eink station</title></head>
<body style="background:#ddd">
<img id="panel" src="/panel.png" style="image-rendering:pixelated;width:400px;border:1px solid #888">
<script>
const img = document.getElementById("panel");
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.binaryType = "blob";
ws.onmessage = (ev) => {
  const old = img.src;
  img.src = URL.createObjectURL(ev.data);
  if (old.startsWith("blob:")) URL.revokeObjectURL(old);
};
</script>
</body>
</html>
`

// PanelViewer serves the simulated panel and pushes a PNG to every
// websocket client after each refresh.
type PanelViewer struct {
	panel *panelsim.Panel

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewPanelViewer(p *panelsim.Panel) *PanelViewer {
	v := &PanelViewer{panel: p, clients: make(map[*websocket.Conn]struct{})}
	p.OnRefresh(v.broadcast)
	return v
}

func (v *PanelViewer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(panelPage))
	})
	mux.HandleFunc("/panel.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		if err := v.panel.WritePNG(w); err != nil {
			log.Printf("panel: png encode error: %v", err)
		}
	})
	mux.HandleFunc("/ws", v.handleWS)
	return mux
}

func (v *PanelViewer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("panel: websocket upgrade error: %v", err)
		return
	}
	v.mu.Lock()
	v.clients[conn] = struct{}{}
	v.mu.Unlock()
	log.Printf("panel: viewer connected from %s", r.RemoteAddr)

	// Drain until the peer goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("panel: websocket error: %v", err)
			}
			break
		}
	}
	v.drop(conn)
}

func (v *PanelViewer) drop(conn *websocket.Conn) {
	v.mu.Lock()
	delete(v.clients, conn)
	v.mu.Unlock()
	conn.Close()
}

func (v *PanelViewer) broadcast() {
	var buf bytes.Buffer
	if err := v.panel.WritePNG(&buf); err != nil {
		log.Printf("panel: png encode error: %v", err)
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for conn := range v.clients {
		if err := conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
			log.Printf("panel: dropping viewer: %v", err)
			delete(v.clients, conn)
			conn.Close()
		}
	}
}

// Clients returns the number of connected viewers.
func (v *PanelViewer) Clients() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.clients)
}
