package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/ghg_sampler/internal/config"
	"github.com/relabs-tech/ghg_sampler/internal/mqtt"
)

// sampleFeed caches the latest sample payload and fans it out to
// websocket subscribers.
type sampleFeed struct {
	mu    sync.RWMutex
	last  []byte
	conns map[*websocket.Conn]struct{}

	upgrader websocket.Upgrader
}

func newSampleFeed() *sampleFeed {
	return &sampleFeed{
		conns: make(map[*websocket.Conn]struct{}),
		// The page is served from the device itself, any origin is fine.
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// update stores payload as the latest sample and pushes it to every
// connected websocket. Called from the MQTT receive goroutine.
func (f *sampleFeed) update(payload []byte) {
	buf := make([]byte, len(payload))
	copy(buf, payload)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = buf
	for c := range f.conns {
		if err := c.WriteMessage(websocket.TextMessage, buf); err != nil {
			_ = c.Close()
			delete(f.conns, c)
		}
	}
}

func (f *sampleFeed) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", f.servePage)
	mux.HandleFunc("/api/sample", f.serveSample)
	mux.HandleFunc("/ws", f.serveWS)
	return mux
}

func (f *sampleFeed) servePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, samplePage)
}

func (f *sampleFeed) serveSample(w http.ResponseWriter, r *http.Request) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.last == nil {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(f.last)
}

func (f *sampleFeed) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	// Register and immediately replay the latest sample so the page
	// renders without waiting for the next cycle.
	f.mu.Lock()
	f.conns[conn] = struct{}{}
	if f.last != nil {
		if err := conn.WriteMessage(websocket.TextMessage, f.last); err != nil {
			delete(f.conns, conn)
			f.mu.Unlock()
			_ = conn.Close()
			return
		}
	}
	f.mu.Unlock()

	// Drain incoming frames, the read error tears the subscription down.
	go func() {
		defer func() {
			f.mu.Lock()
			delete(f.conns, conn)
			f.mu.Unlock()
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (f *sampleFeed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.conns {
		_ = c.Close()
	}
	f.conns = make(map[*websocket.Conn]struct{})
}

// RunWeb serves the live dashboard: an HTML page, a JSON endpoint with
// the latest sample and a websocket pushing every new one.
func RunWeb(ctx context.Context, cfg *config.Config) error {
	feed := newSampleFeed()

	client := mqtt.NewClient(cfg, "ghg-web")
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Disconnect()

	if err := client.Subscribe(cfg.MQTTTopic, feed.update); err != nil {
		return err
	}
	slog.Info("subscribed", "topic", cfg.MQTTTopic)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: feed.routes()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("web server listening", "addr", cfg.HTTPAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("web server shutdown", "error", err)
		}
		feed.closeAll()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

const samplePage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>GHG Sampler</title>
<style>
 body { font-family: monospace; background: #111; color: #9e9; margin: 2rem; }
 h1 { font-size: 1.2rem; color: #fff; }
 .big { font-size: 3rem; }
 table { border-collapse: collapse; margin-top: 1rem; }
 td { padding: 0.2rem 1rem 0.2rem 0; }
 #status { color: #777; }
</style>
</head>
<body>
<h1>GHG Sampler</h1>
<div class="big"><span id="co2">----</span> ppm CO2</div>
<table>
<tr><td>Temperature</td><td><span id="temp">-</span> &deg;C</td></tr>
<tr><td>Humidity</td><td><span id="rh">-</span> %</td></tr>
<tr><td>Pressure</td><td><span id="baro">-</span> hPa</td></tr>
<tr><td>Position</td><td><span id="pos">-</span></td></tr>
<tr><td>Updated</td><td><span id="time">-</span></td></tr>
</table>
<p id="status">connecting...</p>
<script>
function connect() {
  var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
  ws.onopen = function () { document.getElementById("status").textContent = "live"; };
  ws.onmessage = function (ev) {
    var s = JSON.parse(ev.data);
    document.getElementById("co2").textContent = s.CO2.toFixed(1);
    document.getElementById("temp").textContent = s.Temperature.toFixed(1);
    document.getElementById("rh").textContent = s.Relative_Humidity.toFixed(1);
    document.getElementById("baro").textContent = s.baro_pressure_hpa.toFixed(1);
    document.getElementById("pos").textContent = s.Latitude + ", " + s.Longitude;
    document.getElementById("time").textContent = s.time;
  };
  ws.onclose = function () {
    document.getElementById("status").textContent = "reconnecting...";
    setTimeout(connect, 2000);
  };
}
connect();
</script>
</body>
</html>
`
