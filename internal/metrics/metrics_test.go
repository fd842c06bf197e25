package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は名前とラベル値に一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string)
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordLogin_CountsByResult はログイン結果別にカウントされることを検証する。
func TestRecordLogin_CountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin("success")
	c.RecordLogin("success")
	c.RecordLogin("invalid_state")

	if v := findMetric(t, reg, "voyage_logins_total", map[string]string{"result": "success"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("logins{success} = %v, want 2", v)
	}
	if v := findMetric(t, reg, "voyage_logins_total", map[string]string{"result": "invalid_state"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("logins{invalid_state} = %v, want 1", v)
	}
}

// TestRecordStateConsume_CountsByResult はstate消費結果がカウントされることを検証する。
func TestRecordStateConsume_CountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordStateConsume("expired")

	if v := findMetric(t, reg, "voyage_state_consume_total", map[string]string{"result": "expired"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("state_consume{expired} = %v, want 1", v)
	}
}

// TestRecordTokenRefresh_TracksRotation はリフレッシュ結果とローテーションを記録することを検証する。
func TestRecordTokenRefresh_TracksRotation(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTokenRefresh(true, true)
	c.RecordTokenRefresh(true, false)
	c.RecordTokenRefresh(false, false)

	if v := findMetric(t, reg, "voyage_token_refresh_total", map[string]string{"result": "success"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("token_refresh{success} = %v, want 2", v)
	}
	if v := findMetric(t, reg, "voyage_token_refresh_total", map[string]string{"result": "failure"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("token_refresh{failure} = %v, want 1", v)
	}
	if v := findMetric(t, reg, "voyage_token_rotation_total", nil).GetCounter().GetValue(); v != 1 {
		t.Errorf("token_rotation = %v, want 1", v)
	}
}

// TestRecordStatesSwept_AddsCount はスイープ件数が加算されることを検証する。
func TestRecordStatesSwept_AddsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordStatesSwept(3)
	c.RecordStatesSwept(4)

	if v := findMetric(t, reg, "voyage_states_swept_total", nil).GetCounter().GetValue(); v != 7 {
		t.Errorf("states_swept = %v, want 7", v)
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はステータスコード別カウンタを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(400)

	if v := findMetric(t, reg, "voyage_http_status_total", map[string]string{"status_code": "200"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("http_status{200} = %v, want 2", v)
	}
	if v := findMetric(t, reg, "voyage_http_status_total", map[string]string{"status_code": "400"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("http_status{400} = %v, want 1", v)
	}
}

// TestRecordProviderLatency_ObservesHistogram はレイテンシのヒストグラムを検証する。
func TestRecordProviderLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordProviderLatency("exchange", 150*time.Millisecond)
	c.RecordProviderLatency("exchange", 2*time.Second)

	h := findMetric(t, reg, "voyage_provider_latency_seconds", map[string]string{"operation": "exchange"}).GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample count = %d, want 2", h.GetSampleCount())
	}
	if h.GetSampleSum() < 2.1 || h.GetSampleSum() > 2.2 {
		t.Errorf("sample sum = %v, want ~2.15", h.GetSampleSum())
	}
}
