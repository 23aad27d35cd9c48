package trader

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yourusername/quantcapital-engine/pkg/config"
	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Backtest.StartDate = "2024-01-01"
	cfg.Backtest.EndDate = "2024-01-31"
	cfg.Backtest.Universe = []string{"000001.SZ"}
	cfg.Strategy.Items = []config.StrategyItemConfig{{
		ID: "ma1", Type: "ma_cross", Enabled: true,
		Universe:   []string{"000001.SZ"},
		Parameters: map[string]interface{}{"fast_period": 2, "slow_period": 4},
	}}
	return cfg
}

func initializedTrader(t *testing.T) *Trader {
	t.Helper()
	tr, err := NewTrader(testConfig())
	if err != nil {
		t.Fatalf("NewTrader: %v", err)
	}
	if err := tr.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return tr
}

func TestTraderRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Account.InitialCapital = -1
	if _, err := NewTrader(cfg); err == nil {
		t.Error("negative capital accepted")
	}
	if _, err := NewTrader(nil); err == nil {
		t.Error("nil config accepted")
	}
}

func TestTraderLifecycle(t *testing.T) {
	tr := initializedTrader(t)

	if tr.IsRunning() {
		t.Fatal("running before Start")
	}
	if err := tr.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !tr.IsRunning() {
		t.Fatal("not running after Start")
	}
	if err := tr.Start(); err == nil {
		t.Error("double start succeeded")
	}

	// Bars entering through the live path get annotated and dispatched.
	bar := &entity.Bar{
		Symbol: "000001.SZ", Timestamp: time.Now(), Frequency: entity.FreqDaily,
		Open: 10, High: 11, Low: 9.5, Close: 10.5, Volume: 1000,
	}
	tr.onLiveBar(bar)
	if bar.Indicators == nil {
		t.Error("live bar not annotated with indicators")
	}

	if err := tr.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if tr.IsRunning() {
		t.Error("still running after Stop")
	}
	if err := tr.Stop(); err == nil {
		t.Error("double stop succeeded")
	}
}

func TestTraderStatus(t *testing.T) {
	tr := initializedTrader(t)

	status := tr.Status()
	if status["mode"] != "backtest" || status["running"] != false {
		t.Errorf("status = %v", status)
	}
	if status["cash"] != 1_000_000.0 {
		t.Errorf("cash = %v, want initial capital", status["cash"])
	}
}

func TestAPIEndpoints(t *testing.T) {
	tr := initializedTrader(t)
	api := NewAPIServer(tr, "127.0.0.1:0")
	srv := httptest.NewServer(api.mux)
	defer srv.Close()

	get := func(path string) *APIResponse {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		var body APIResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
		return &body
	}

	if body := get("/api/health"); !body.Success {
		t.Error("health not successful")
	}
	if body := get("/api/status"); !body.Success || body.Data == nil {
		t.Error("status missing data")
	}
	if body := get("/api/account"); !body.Success {
		t.Error("account not successful")
	}
	if body := get("/api/strategies"); !body.Success {
		t.Error("strategies not successful")
	}

	tr.RecordSnapshot()
	if body := get("/api/history"); !body.Success || body.Data == nil {
		t.Error("history missing data")
	}
	if equity := tr.History().Series("equity", 0); equity.Len() != 1 {
		t.Errorf("equity history len = %d, want 1", equity.Len())
	}

	// Strategy control wants POST with an id.
	resp, _ := http.Post(srv.URL+"/api/strategies/start?id=ma1", "application/json", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("start strategy status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, _ = http.Post(srv.URL+"/api/strategies/start?id=no-such", "application/json", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown strategy status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, _ = http.Get(srv.URL + "/api/strategies/start?id=ma1")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET on control endpoint status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Session control: start once, second start rejected, stop accepted.
	resp, _ = http.Post(srv.URL+"/api/start", "application/json", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("start status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, _ = http.Post(srv.URL+"/api/start", "application/json", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("double start status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, _ = http.Post(srv.URL+"/api/stop", "application/json", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("stop status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	waitFor(t, time.Second, func() bool { return !tr.IsRunning() })
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
