package offline

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"
)

// CacheHeader reports the source of a proxied response.
const CacheHeader = "X-Radiowave-Cache"

const maxRequestBody = 8 << 20

// Handler serves requests through the controller against origin.
type Handler struct {
	controller *Controller
	origin     *url.URL
}

// NewHandler creates a proxy handler. origin is the server the shell is fetched from.
func NewHandler(controller *Controller, origin *url.URL) *Handler {
	return &Handler{controller: controller, origin: origin}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := RequestFromHTTP(r, h.origin, maxRequestBody)
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	result, err := h.controller.Fetch(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrNetwork) {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("Offline request failed")
		} else {
			log.Error().Err(err).Str("path", r.URL.Path).Msg("Offline controller error")
		}
		http.Error(w, "offline and not cached", http.StatusBadGateway)
		return
	}

	resp := result.Response
	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set(CacheHeader, string(result.Source))
	if r.Method != http.MethodHead {
		w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		w.Write(resp.Body)
	}
}
