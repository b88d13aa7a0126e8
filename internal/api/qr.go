package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// gameQR serves a PNG QR code encoding the join link for a game, for the
// host to put on screen so others can scan in.
func (h *Handler) gameQR(w http.ResponseWriter, r *http.Request) {
	code := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "code")))

	// Resolve the code first so dead lobbies do not hand out QR codes.
	g, err := h.app.GameByCode(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	joinURL := fmt.Sprintf("%s/join?code=%s", h.publicURL, g.Code)
	png, err := qrcode.Encode(joinURL, qrcode.Medium, qrSize)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("failed to encode QR code")
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		log.Warn().Err(err).Msg("failed to write QR response")
	}
}
