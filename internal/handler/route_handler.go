package handler

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tsubaki-chat/backend/internal/model"
	"github.com/tsubaki-chat/backend/internal/repository"
	"github.com/tsubaki-chat/backend/internal/routepolicy"
)

// RouteHandler evaluates a device's alert routing and appends the decision to
// the trace ledger. The policy itself is pure; this endpoint exists so every
// client decision lands in the same ledger the server-side dispatcher writes.
type RouteHandler struct {
	traces repository.DeliveryTraceRepository
}

func NewRouteHandler(traces repository.DeliveryTraceRepository) *RouteHandler {
	return &RouteHandler{traces: traces}
}

type RouteDecisionRequest struct {
	Signals     routepolicy.Signals `json:"signals"`
	EventID     *uint64             `json:"eventId,omitempty"`
	RecipientID *uint64             `json:"recipientId,omitempty"`
	// Simulated marks developer-simulation runs so they are
	// distinguishable in parity queries.
	Simulated bool `json:"simulated"`
}

func (h *RouteHandler) Decide(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	var in RouteDecisionRequest
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}

	decision := routepolicy.Evaluate(in.Signals)

	transport := model.TransportRoutePolicy
	if in.Simulated {
		transport = model.TransportSimulatedPush
	}
	details, _ := json.Marshal(map[string]any{
		"signals":     in.Signals,
		"routeMode":   decision.RouteMode,
		"reasonCodes": decision.ReasonCodes,
		"userUid":     uid,
	})
	trace := &model.DeliveryTraceRecord{
		NotificationRecipientID: in.RecipientID,
		EventID:                 in.EventID,
		Transport:               transport,
		Stage:                   model.StageClientRoute,
		Decision:                decision.AlertDecision(),
		ReasonCode:              decision.ReasonCodes[0],
		Details:                 string(details),
	}
	if err := h.traces.Record(c.Request().Context(), trace); err != nil {
		// The decision is still valid; losing the trace row must not
		// block the client's alert path.
		c.Logger().Errorf("recording route trace: %v", err)
	}

	return c.JSON(http.StatusOK, decision)
}
