package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric はレジストリから指定名のメトリクスファミリーを取得する。
func findMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// labeledCounter はラベル値が一致するカウンタの値を返す。
func labeledCounter(mf *dto.MetricFamily, label, value string) float64 {
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordLogin_CountsByResult はログイン結果がラベル別に集計されることを検証する。
func TestRecordLogin_CountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin(LoginSuccess)
	c.RecordLogin(LoginInvalidCredentials)
	c.RecordLogin(LoginInvalidCredentials)

	mf := findMetric(t, reg, "linkpulse_login_attempts_total")
	if got := labeledCounter(mf, "result", LoginSuccess); got != 1 {
		t.Errorf("success = %v, want 1", got)
	}
	if got := labeledCounter(mf, "result", LoginInvalidCredentials); got != 2 {
		t.Errorf("invalid_credentials = %v, want 2", got)
	}
}

// TestRecordLoginLatency_ObservesHistogram はレイテンシがヒストグラムに記録されることを検証する。
func TestRecordLoginLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLoginLatency(150 * time.Millisecond)

	mf := findMetric(t, reg, "linkpulse_login_duration_seconds")
	h := mf.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", h.GetSampleCount())
	}
	if h.GetSampleSum() < 0.1 || h.GetSampleSum() > 0.2 {
		t.Errorf("sample sum = %v, want ~0.15", h.GetSampleSum())
	}
}

// TestRecordLogout_CountsScopeAndSessions はログアウトのスコープと削除件数を検証する。
func TestRecordLogout_CountsScopeAndSessions(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogout(false, 1)
	c.RecordLogout(true, 3)

	mf := findMetric(t, reg, "linkpulse_logouts_total")
	if got := labeledCounter(mf, "scope", "current"); got != 1 {
		t.Errorf("current = %v, want 1", got)
	}
	if got := labeledCounter(mf, "scope", "all"); got != 1 {
		t.Errorf("all = %v, want 1", got)
	}

	deleted := findMetric(t, reg, "linkpulse_logout_sessions_deleted_total")
	if got := deleted.GetMetric()[0].GetCounter().GetValue(); got != 4 {
		t.Errorf("sessions deleted = %v, want 4", got)
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はステータスコード別の集計を検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(429)

	mf := findMetric(t, reg, "linkpulse_http_status_total")
	if got := labeledCounter(mf, "status_code", "200"); got != 2 {
		t.Errorf("200 = %v, want 2", got)
	}
	if got := labeledCounter(mf, "status_code", "429"); got != 1 {
		t.Errorf("429 = %v, want 1", got)
	}
}

// TestRecordMisc はその他のカウンタが増加することを検証する。
func TestRecordMisc(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSessionValidation("expired")
	c.RecordRateLimited("login")
	c.RecordPasswordRehash(true)
	c.RecordPasswordRehash(false)
	c.RecordSessionsSwept(5)

	if got := labeledCounter(findMetric(t, reg, "linkpulse_session_validations_total"), "state", "expired"); got != 1 {
		t.Errorf("expired validations = %v, want 1", got)
	}
	if got := labeledCounter(findMetric(t, reg, "linkpulse_rate_limited_total"), "scope", "login"); got != 1 {
		t.Errorf("login rate limited = %v, want 1", got)
	}
	rehash := findMetric(t, reg, "linkpulse_password_rehash_total")
	if labeledCounter(rehash, "result", "success") != 1 || labeledCounter(rehash, "result", "failure") != 1 {
		t.Error("password rehash counters mismatch")
	}
	swept := findMetric(t, reg, "linkpulse_sessions_swept_total")
	if got := swept.GetMetric()[0].GetCounter().GetValue(); got != 5 {
		t.Errorf("swept = %v, want 5", got)
	}
}

// TestRegisterGaugeFunc はゲージが呼び出し時の値を返すことを検証する。
func TestRegisterGaugeFunc(t *testing.T) {
	reg := prometheus.NewRegistry()
	value := 3.0
	RegisterGaugeFunc(reg, "linkpulse_test_gauge", "test", func() float64 { return value })

	mf := findMetric(t, reg, "linkpulse_test_gauge")
	if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 3 {
		t.Errorf("gauge = %v, want 3", got)
	}

	value = 7
	mf = findMetric(t, reg, "linkpulse_test_gauge")
	if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 7 {
		t.Errorf("gauge = %v, want 7", got)
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat はハンドラーがテキスト形式で出力することを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordLogin(LoginSuccess)
	c.RecordHTTPStatus(200)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	body, _ := io.ReadAll(w.Result().Body)
	for _, name := range []string{
		"linkpulse_login_attempts_total",
		"linkpulse_http_status_total",
		"linkpulse_login_duration_seconds",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("response should contain %s", name)
		}
	}
}

// TestCollector_ImplementsMetricsCollectorInterface はインターフェース実装を検証する。
func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	var _ MetricsCollector = (*Collector)(nil)
	var _ MetricsCollector = NopCollector{}
}

// TestMultipleCollectors_IndependentRegistries は独立したレジストリに登録できることを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()

	c1 := NewCollector(reg1)
	NewCollector(reg2)
	c1.RecordLogin(LoginSuccess)

	mf1 := findMetric(t, reg1, "linkpulse_login_attempts_total")
	if got := labeledCounter(mf1, "result", LoginSuccess); got != 1 {
		t.Errorf("reg1 success = %v, want 1", got)
	}

	families, _ := reg2.Gather()
	for _, mf := range families {
		if mf.GetName() == "linkpulse_login_attempts_total" && len(mf.GetMetric()) != 0 {
			t.Error("reg2 must not see reg1 observations")
		}
	}
}
