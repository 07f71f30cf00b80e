package observability

import "testing"

func TestNilMetricsRecordsNothing(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.RecordResolve("ethereum", "hit")
	m.RecordProviderCall("dexscreener", "token-price", "ok", 0.1)
	m.RecordBreakerOpen("dexscreener:price")
	m.RecordCacheFlush("live", "ok")
	m.RecordSweep("ok", 1.5, 3, 1700000000)
	m.RecordCheckpoint("24h")
	m.RecordSignal("winner")
	m.RecordMention("reddit")
}

func TestNewMetricsRegistersOnce(t *testing.T) {
	m := NewMetrics("mintwatch_test")
	if m.ResolveRequests == nil || m.SweepDuration == nil {
		t.Fatal("expected metrics wired")
	}
	m.RecordResolve("ethereum", "resolved")
	m.RecordProviderCall("birdeye", "candles", "transient", 0.2)
	m.RecordSweep("ok", 0.5, 1, 1700000000)
}
