package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"binance-market-sentry/internal/hub"
	"binance-market-sentry/pkg/types"
)

type fakeAlertReader struct {
	alerts []types.AlertEvent
	err    error
	limit  int
}

func (r *fakeAlertReader) FetchRecentAlerts(_ context.Context, limit int) ([]types.AlertEvent, error) {
	r.limit = limit
	return r.alerts, r.err
}

func TestHandleRecentAlerts(t *testing.T) {
	reader := &fakeAlertReader{alerts: []types.AlertEvent{
		{Type: "alert", Symbol: "BTCUSDT", AlertType: types.AlertRapidDrop, Magnitude: 0.01, Ts: 1700000359999},
	}}
	srv := New(types.ServerConfig{ListenAddr: "127.0.0.1:0"}, hub.New(nil), reader, 50)

	recorder := httptest.NewRecorder()
	srv.handleRecentAlerts(recorder, httptest.NewRequest(http.MethodGet, "/alerts/recent", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("状态码应为200，实际 %d", recorder.Code)
	}
	if reader.limit != 50 {
		t.Fatalf("查询条数应取自配置，实际 %d", reader.limit)
	}

	var body struct {
		Alerts []types.AlertEvent `json:"alerts"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Alerts) != 1 || body.Alerts[0].Symbol != "BTCUSDT" {
		t.Fatalf("响应内容错误: %+v", body)
	}
}

func TestHandleRecentAlertsEmpty(t *testing.T) {
	srv := New(types.ServerConfig{}, hub.New(nil), &fakeAlertReader{}, 50)

	recorder := httptest.NewRecorder()
	srv.handleRecentAlerts(recorder, httptest.NewRequest(http.MethodGet, "/alerts/recent", nil))

	var body map[string]json.RawMessage
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	// 没有预警时必须是空数组而不是null
	if string(body["alerts"]) != "[]" {
		t.Fatalf("alerts 应为空数组，实际 %s", body["alerts"])
	}
}

func TestHandleRecentAlertsStoreFailure(t *testing.T) {
	reader := &fakeAlertReader{err: errors.New("数据库不可用")}
	srv := New(types.ServerConfig{}, hub.New(nil), reader, 50)

	recorder := httptest.NewRecorder()
	srv.handleRecentAlerts(recorder, httptest.NewRequest(http.MethodGet, "/alerts/recent", nil))

	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("持久层不可用应返回500，实际 %d", recorder.Code)
	}
	var body struct {
		Alerts []types.AlertEvent `json:"alerts"`
		Error  string             `json:"error"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error == "" || len(body.Alerts) != 0 {
		t.Fatalf("错误响应内容错误: %+v", body)
	}
}
