package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tsubaki-chat/backend/internal/model"
	"github.com/tsubaki-chat/backend/internal/repository"
	"github.com/tsubaki-chat/backend/internal/service"
)

type NotificationHandler struct {
	svc   service.NotificationService
	prefs repository.PreferenceRepository
}

func NewNotificationHandler(svc service.NotificationService, prefs repository.PreferenceRepository) *NotificationHandler {
	return &NotificationHandler{svc: svc, prefs: prefs}
}

type NotificationResponse struct {
	ID           uint64 `json:"id"`
	EventID      uint64 `json:"eventId"`
	DeliverInApp bool   `json:"deliverInApp"`
	DeliverSound bool   `json:"deliverSound"`
	Read         bool   `json:"read"`
	CreatedAt    string `json:"createdAt"`
}

func toNotificationResponse(n model.NotificationRecipient) NotificationResponse {
	return NotificationResponse{
		ID:           n.ID,
		EventID:      n.EventID,
		DeliverInApp: n.DeliverInApp,
		DeliverSound: n.DeliverSound,
		Read:         n.ReadAt != nil,
		CreatedAt:    n.CreatedAt.Format(time.RFC3339),
	}
}

// CreateEvent is the intake for backend triggers (friend request, DM,
// mention). It must succeed even when dispatch is completely down.
func (h *NotificationHandler) CreateEvent(c echo.Context) error {
	var in service.CreateEventInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	event, err := h.svc.CreateEvent(c.Request().Context(), in)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", err.Error()))
	}
	return c.JSON(http.StatusCreated, event)
}

func (h *NotificationHandler) List(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	unreadOnly := c.QueryParam("unread_only") == "true"
	limit := 20
	if lStr := c.QueryParam("limit"); lStr != "" {
		if lParsed, err := strconv.Atoi(lStr); err == nil && lParsed > 0 {
			limit = lParsed
		}
	}
	list, unreadCount, err := h.svc.List(c.Request().Context(), uid, unreadOnly, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to fetch notifications"))
	}
	resp := make([]NotificationResponse, 0, len(list))
	for _, n := range list {
		resp = append(resp, toNotificationResponse(n))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"notifications": resp,
		"unreadCount":   unreadCount,
	})
}

func (h *NotificationHandler) MarkRead(c echo.Context) error {
	return h.touch(c, h.svc.MarkRead)
}

func (h *NotificationHandler) Dismiss(c echo.Context) error {
	return h.touch(c, h.svc.Dismiss)
}

func (h *NotificationHandler) touch(c echo.Context, fn func(ctx context.Context, userUID string, recipientID uint64) error) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid notification id"))
	}
	if err := fn(c.Request().Context(), uid, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "notification not found"))
		}
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to update notification"))
	}
	return c.NoContent(http.StatusNoContent)
}

type PreferencesPayload struct {
	InAppEnabled bool `json:"inAppEnabled"`
	SoundEnabled bool `json:"soundEnabled"`
}

func (h *NotificationHandler) GetPreferences(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	pref, err := h.prefs.GetOrDefault(c.Request().Context(), uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to fetch preferences"))
	}
	return c.JSON(http.StatusOK, PreferencesPayload{
		InAppEnabled: pref.InAppEnabled,
		SoundEnabled: pref.SoundEnabled,
	})
}

func (h *NotificationHandler) PutPreferences(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	var in PreferencesPayload
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	err := h.prefs.Upsert(c.Request().Context(), &model.NotificationPreference{
		UserUID:      uid,
		InAppEnabled: in.InAppEnabled,
		SoundEnabled: in.SoundEnabled,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to save preferences"))
	}
	return c.JSON(http.StatusOK, in)
}
