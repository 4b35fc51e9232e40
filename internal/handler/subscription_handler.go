package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tsubaki-chat/backend/internal/repository"
	"github.com/tsubaki-chat/backend/internal/service"
)

type SubscriptionHandler struct {
	svc            service.SubscriptionService
	vapidPublicKey string
}

func NewSubscriptionHandler(svc service.SubscriptionService, vapidPublicKey string) *SubscriptionHandler {
	return &SubscriptionHandler{svc: svc, vapidPublicKey: vapidPublicKey}
}

// PublicKey hands the client the VAPID application server key it needs to
// call PushManager.subscribe.
func (h *SubscriptionHandler) PublicKey(c echo.Context) error {
	if h.vapidPublicKey == "" {
		return c.JSON(http.StatusServiceUnavailable, NewErrorResponse("push_unconfigured", "web push is not configured"))
	}
	return c.JSON(http.StatusOK, map[string]string{"publicKey": h.vapidPublicKey})
}

func (h *SubscriptionHandler) Subscribe(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	var in service.SubscribeInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	sub, err := h.svc.Subscribe(c.Request().Context(), uid, in)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", err.Error()))
	}
	return c.JSON(http.StatusCreated, sub)
}

type UnsubscribePayload struct {
	Endpoint string `json:"endpoint"`
}

func (h *SubscriptionHandler) Unsubscribe(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	var in UnsubscribePayload
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	if err := h.svc.Unsubscribe(c.Request().Context(), uid, in.Endpoint); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "subscription not found"))
		}
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", err.Error()))
	}
	return c.NoContent(http.StatusNoContent)
}
