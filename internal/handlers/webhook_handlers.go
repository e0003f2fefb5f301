package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"subledger/internal/services"

	"github.com/labstack/echo/v4"
)

// PayloadVerifier authenticates a legacy payload, consuming its
// signature field.
type PayloadVerifier interface {
	Verify(payload map[string]interface{}) bool
}

// WebhookHandlers handles HTTP requests for billing provider webhooks
type WebhookHandlers struct {
	reconciler services.ReconciliationService
	verifier   PayloadVerifier
}

// NewWebhookHandlers creates a new webhook handlers instance
func NewWebhookHandlers(reconciler services.ReconciliationService, verifier PayloadVerifier) *WebhookHandlers {
	return &WebhookHandlers{
		reconciler: reconciler,
		verifier:   verifier,
	}
}

// LegacyWebhook handles POST /webhooks/legacy. The signature check runs
// before anything can touch persistence.
func (h *WebhookHandlers) LegacyWebhook(c echo.Context) error {
	payload, err := h.legacyPayload(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read request body")
	}

	if !h.verifier.Verify(payload) {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid webhook signature")
	}

	alert := services.LegacyAlertFromPayload(payload)
	if !services.KnownLegacyAlert(alert.AlertName) {
		// Unknown alert types are acknowledged so the provider stops
		// retrying them; the provider's schema grows over time.
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ignored",
			"alert":  alert.AlertName,
		})
	}

	if err := h.reconciler.HandleLegacyAlert(c.Request().Context(), alert); err != nil {
		if errors.Is(err, services.ErrWorkspaceRequired) {
			return echo.NewHTTPError(http.StatusBadRequest, "Missing workspace reference")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process webhook")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"alert":  alert.AlertName,
	})
}

// legacyPayload reads the flat legacy body, which arrives either
// form-encoded or as a single-level JSON object.
func (h *WebhookHandlers) legacyPayload(c echo.Context) (map[string]interface{}, error) {
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(contentType, echo.MIMEApplicationJSON) {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return nil, err
		}
		payload := map[string]interface{}{}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	}

	form, err := c.FormParams()
	if err != nil {
		return nil, err
	}
	payload := make(map[string]interface{}, len(form))
	for key, values := range form {
		if len(values) > 0 {
			payload[key] = values[0]
		}
	}
	return payload, nil
}

// ModernWebhook handles POST /webhooks/modern. Authentication of this
// endpoint is delegated to the transport layer; once the envelope
// parses, the response is 200 even for no-op branches.
func (h *WebhookHandlers) ModernWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read request body")
	}

	event := &services.ModernEvent{}
	if err := json.Unmarshal(body, event); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Malformed event envelope")
	}

	if !services.KnownModernEventType(event.EventType) {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ignored",
			"event":  event.EventType,
		})
	}

	if err := h.reconciler.HandleModernEvent(c.Request().Context(), event, body); err != nil {
		if errors.Is(err, services.ErrWorkspaceRequired) {
			return echo.NewHTTPError(http.StatusBadRequest, "Missing workspace reference")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process webhook")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"event":  event.EventType,
	})
}
