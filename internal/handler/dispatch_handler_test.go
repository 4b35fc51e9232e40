package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tsubaki-chat/backend/internal/model"
	"github.com/tsubaki-chat/backend/internal/repository"
)

type stubTraces struct {
	list []model.DeliveryTraceRecord
}

func (s *stubTraces) Record(ctx context.Context, rec *model.DeliveryTraceRecord) error { return nil }

func (s *stubTraces) List(ctx context.Context, filter repository.TraceFilter, limit int) ([]model.DeliveryTraceRecord, error) {
	return s.list, nil
}

func (s *stubTraces) CountByWakeSourceAndReason(ctx context.Context, since time.Time) ([]repository.ParityCount, error) {
	return nil, nil
}

func TestListTracesWrapsItemsWithCount(t *testing.T) {
	traces := &stubTraces{list: []model.DeliveryTraceRecord{
		{ID: 2, Stage: model.StageServerDispatch, Transport: model.TransportWebPush},
		{ID: 1, Stage: model.StageClientRoute, Transport: model.TransportRoutePolicy},
	}}
	h := NewDispatchHandler(nil, nil, nil, traces)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/dispatch/traces", nil)
	rec := httptest.NewRecorder()

	if err := h.ListTraces(e.NewContext(req, rec)); err != nil {
		t.Fatalf("list traces: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}

	var body struct {
		Items []model.DeliveryTraceRecord `json:"items"`
		Count int                         `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Count != 2 || len(body.Items) != 2 {
		t.Fatalf("count=%d items=%d", body.Count, len(body.Items))
	}
	if body.Items[0].ID != 2 {
		t.Fatalf("items=%+v", body.Items)
	}
}
