package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/wondr/rembg/internal/apperrors"
	"github.com/wondr/rembg/internal/middleware"
	"github.com/wondr/rembg/internal/models"
	"github.com/wondr/rembg/internal/services"
	"go.uber.org/zap"
)

// BalanceReader looks up a balance without charging
type BalanceReader interface {
	Balance(ctx context.Context, identity string) (int64, error)
}

type RemovalHandler struct {
	service      *services.RemovalService
	balances     BalanceReader
	validator    *services.ValidationHelper
	maxBodyBytes int64
	log          *zap.Logger
}

func NewRemovalHandler(service *services.RemovalService, balances BalanceReader, maxBodyBytes int64, log *zap.Logger) *RemovalHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RemovalHandler{
		service:      service,
		balances:     balances,
		validator:    services.NewValidationHelper(),
		maxBodyBytes: maxBodyBytes,
		log:          log.Named("handlers"),
	}
}

// Root reports that the service is up
// @Summary Service status
// @Tags Removal
// @Produce json
// @Success 200 {object} object{status=string}
// @Router / [get]
func (h *RemovalHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "background removal service running"})
}

// RemoveBackground charges one credit and returns the image with its background removed
// @Summary Remove image background
// @Description Verifies the bearer token, charges one credit, removes the background and returns a PNG data URL. The credit is refunded if processing fails.
// @Tags Removal
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.RemovalRequest true "Base64 image"
// @Success 200 {object} models.RemovalResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 413 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /api/v1/remove-background [post]
func (h *RemovalHandler) RemoveBackground(w http.ResponseWriter, r *http.Request) {
	requestID := chimw.GetReqID(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}

	var req models.RemovalRequest

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			services.SendAppError(w, apperrors.Newf(apperrors.ImageTooLarge, "Request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		h.log.Debug("[REMOVAL] decode error", zap.String("request_id", requestID), zap.Error(err))
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.service.Process(r.Context(), requestID, r.Header.Get("Authorization"), req.DataSent)
	if err != nil {
		services.SendAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Credits returns the caller's balance without charging
// @Summary Get remaining credits
// @Tags Removal
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.CreditsResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /api/v1/credits [get]
func (h *RemovalHandler) Credits(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		services.SendAppError(w, apperrors.New(apperrors.MissingOrMalformed, "Unauthorized", nil))
		return
	}

	balance, err := h.balances.Balance(r.Context(), identity.Key)
	if err != nil {
		services.SendAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.CreditsResponse{RemainingCredits: balance})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
