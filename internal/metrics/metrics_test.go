package metrics

import (
	"testing"
)

func gatherValue(t *testing.T, reg *Registry, name string) (float64, bool) {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			}
		}
		return total, true
	}
	return 0, false
}

func TestNewRegistry_RegistersRuntimeMetrics(t *testing.T) {
	reg := NewRegistry()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "go_goroutines" {
			found = true
		}
	}
	if !found {
		t.Error("expected go runtime metrics to be registered")
	}
}

func TestRecordBacktest(t *testing.T) {
	reg := NewRegistry()

	reg.RecordBacktest("completed", 12.5)
	reg.RecordBacktest("completed", 3.0)
	reg.RecordBacktest("failed", 0.5)

	total, ok := gatherValue(t, reg, "backtestd_backtests_total")
	if !ok {
		t.Fatal("backtestd_backtests_total not found")
	}
	if total != 3 {
		t.Errorf("backtests total = %v, want 3", total)
	}
}

func TestRecordBacktest_StatusLabels(t *testing.T) {
	reg := NewRegistry()
	reg.RecordBacktest("completed", 1)
	reg.RecordBacktest("cancelled", 1)

	mfs, _ := reg.Gather()
	labels := make(map[string]bool)
	for _, mf := range mfs {
		if mf.GetName() != "backtestd_backtests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "status" {
					labels[l.GetValue()] = true
				}
			}
		}
	}
	if !labels["completed"] || !labels["cancelled"] {
		t.Errorf("status labels = %v", labels)
	}
}

func TestSetRunsActive(t *testing.T) {
	reg := NewRegistry()

	reg.SetRunsActive(3)
	if v, _ := gatherValue(t, reg, "backtestd_runs_active"); v != 3 {
		t.Errorf("runs active = %v, want 3", v)
	}

	reg.SetRunsActive(0)
	if v, _ := gatherValue(t, reg, "backtestd_runs_active"); v != 0 {
		t.Errorf("runs active = %v, want 0", v)
	}
}

func TestRecordSignalAndTrade(t *testing.T) {
	reg := NewRegistry()

	reg.RecordSignal("momentum", "BUY")
	reg.RecordSignal("momentum", "SELL")
	reg.RecordTrade("BUY")

	if v, _ := gatherValue(t, reg, "backtestd_signals_generated_total"); v != 2 {
		t.Errorf("signals = %v, want 2", v)
	}
	if v, _ := gatherValue(t, reg, "backtestd_trades_executed_total"); v != 1 {
		t.Errorf("trades = %v, want 1", v)
	}
}

func TestRecordBarsFetched(t *testing.T) {
	reg := NewRegistry()

	reg.RecordBarsFetched("yahoo", 250)
	reg.RecordBarsFetched("yahoo", 250)

	if v, _ := gatherValue(t, reg, "backtestd_bars_fetched_total"); v != 500 {
		t.Errorf("bars fetched = %v, want 500", v)
	}
}

func TestStatusToString(t *testing.T) {
	cases := map[int]string{
		100: "1xx",
		200: "2xx",
		301: "3xx",
		404: "4xx",
		500: "5xx",
	}
	for status, want := range cases {
		if got := statusToString(status); got != want {
			t.Errorf("statusToString(%d) = %s, want %s", status, got, want)
		}
	}
}
