package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	realtimemodel "github.com/zhouzirui/realtime-relay/backend/internal/model/realtime"
	realtimesvc "github.com/zhouzirui/realtime-relay/backend/internal/service/realtime"
	"github.com/zhouzirui/realtime-relay/backend/pkg/utils"
)

// RelayService is the negotiation surface the handler depends on.
type RelayService interface {
	CreateEphemeralSession(ctx context.Context, model, voice string) (*realtimesvc.Payload, error)
	Negotiate(ctx context.Context, model, offerSDP string) (*realtimesvc.Answer, error)
}

// Handler serves credential minting and SDP relay.
type Handler struct {
	relay RelayService
}

// New creates a realtime handler; a nil relay makes every route answer 503.
func New(relay RelayService) *Handler {
	return &Handler{relay: relay}
}

// RegisterRoutes mounts the current route names.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Post("/realtime", h.handleNegotiate)
}

// RegisterLegacyRoutes mounts the route names older clients still call.
func (h *Handler) RegisterLegacyRoutes(r chi.Router) {
	r.Post("/ephemeral_sessions", h.handleCreateSession)
	r.Post("/realtime", h.handleNegotiate)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if h.relay == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "realtime relay unavailable")
		return
	}

	var payload realtimemodel.SessionRequest
	if err := decodeOptional(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.relay.CreateEphemeralSession(r.Context(), payload.Model, payload.Voice)
	if err != nil {
		respondRelayError(w, r, err, "failed to create session")
		return
	}

	contentType := session.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(session.Body)
}

func (h *Handler) handleNegotiate(w http.ResponseWriter, r *http.Request) {
	if h.relay == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "realtime relay unavailable")
		return
	}

	var payload realtimemodel.OfferRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.SDP) == "" {
		utils.RespondError(w, http.StatusBadRequest, "sdp is required")
		return
	}

	answer, err := h.relay.Negotiate(r.Context(), payload.Model, payload.SDP)
	if err != nil {
		respondRelayError(w, r, err, "failed to initialize WebRTC connection")
		return
	}

	utils.RespondJSON(w, http.StatusOK, realtimemodel.AnswerResponse{
		ConversationID: answer.ConversationID,
		SDP: realtimemodel.SessionDescription{
			Type: "answer",
			SDP:  answer.SDP,
		},
		ProviderSDP: answer.ProviderSDP,
	})
}

// decodeOptional accepts an empty body as the zero value.
func decodeOptional(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func respondRelayError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	log := zerolog.Ctx(r.Context())

	var providerErr *realtimesvc.ProviderError
	switch {
	case errors.As(err, &providerErr):
		log.Warn().Err(err).Int("status", providerErr.StatusCode).Msg("provider rejected request")
		utils.RespondUpstreamError(w, providerErr.StatusCode, providerErr.Body)
	case errors.Is(err, realtimesvc.ErrOfferRequired):
		utils.RespondError(w, http.StatusBadRequest, "sdp is required")
	case errors.Is(err, realtimesvc.ErrProviderUnreachable):
		log.Error().Err(err).Msg("provider unreachable")
		utils.RespondError(w, http.StatusBadGateway, "realtime provider unreachable")
	default:
		log.Error().Err(err).Msg(fallback)
		utils.RespondError(w, http.StatusInternalServerError, fallback)
	}
}
