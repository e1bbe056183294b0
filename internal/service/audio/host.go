package audio

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ResourceHost serves resolved audio bytes to the platform player over a
// loopback listener. It replaces the blob URLs a browser client would create:
// registering bytes yields a playable URL, releasing it frees the bytes.
type ResourceHost struct {
	mu        sync.RWMutex
	resources map[string]hostedResource
	srv       *http.Server
	base      string
	log       zerolog.Logger
}

type hostedResource struct {
	data []byte
	mime string
}

// NewResourceHost starts the loopback listener on an ephemeral port.
func NewResourceHost(log zerolog.Logger) (*ResourceHost, error) {
	h := &ResourceHost{
		resources: make(map[string]hostedResource),
		log:       log.With().Str("component", "audiohost").Logger(),
	}

	r := chi.NewRouter()
	r.Get("/audio/{id}", h.serve)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen on loopback: %w", err)
	}
	h.base = "http://" + ln.Addr().String()
	h.srv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := h.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.log.Error().Err(err).Msg("resource host stopped")
		}
	}()

	h.log.Debug().Str("base", h.base).Msg("audio resource host listening")
	return h, nil
}

func (h *ResourceHost) serve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.mu.RLock()
	res, ok := h.resources[id]
	h.mu.RUnlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", res.mime)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.data)
}

// Register hosts the bytes and returns their playable URL.
func (h *ResourceHost) Register(data []byte, mime string) string {
	if mime == "" {
		mime = "application/octet-stream"
	}
	id := uuid.NewString()

	h.mu.Lock()
	h.resources[id] = hostedResource{data: data, mime: mime}
	h.mu.Unlock()

	return h.base + "/audio/" + id
}

// Release frees the resource behind the URL. Unknown URLs are ignored.
func (h *ResourceHost) Release(url string) {
	idx := strings.LastIndex(url, "/")
	if idx < 0 {
		return
	}
	id := url[idx+1:]

	h.mu.Lock()
	delete(h.resources, id)
	h.mu.Unlock()
}

// Len reports how many resources are currently hosted.
func (h *ResourceHost) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.resources)
}

// BaseURL returns the loopback origin, e.g. http://127.0.0.1:49201.
func (h *ResourceHost) BaseURL() string { return h.base }

// Close shuts the listener down and drops every hosted resource.
func (h *ResourceHost) Close(ctx context.Context) error {
	h.mu.Lock()
	h.resources = make(map[string]hostedResource)
	h.mu.Unlock()
	return h.srv.Shutdown(ctx)
}
