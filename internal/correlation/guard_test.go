package correlation

import "testing"

func TestCheck_AllowsBelowLimit(t *testing.T) {
	g := New(map[string]string{"DOGEUSDT": "meme", "SHIBUSDT": "meme", "PEPEUSDT": "meme"})
	open := []OpenPosition{
		{Symbol: "DOGEUSDT", Direction: "long"},
		{Symbol: "SHIBUSDT", Direction: "long"},
	}
	ok, reason := g.Check(open, "PEPEUSDT", "long")
	if !ok || reason != "" {
		t.Fatalf("expected admission below the limit, got ok=%v reason=%q", ok, reason)
	}
}

func TestCheck_RejectsOnClusterLimit(t *testing.T) {
	g := New(map[string]string{"DOGEUSDT": "meme", "SHIBUSDT": "meme", "PEPEUSDT": "meme", "WIFUSDT": "meme"})
	open := []OpenPosition{
		{Symbol: "DOGEUSDT", Direction: "long"},
		{Symbol: "SHIBUSDT", Direction: "long"},
		{Symbol: "PEPEUSDT", Direction: "long"},
	}
	ok, reason := g.Check(open, "WIFUSDT", "long")
	if ok {
		t.Fatalf("expected rejection once the cluster already holds 3 same-direction positions")
	}
	if reason == "" {
		t.Fatalf("expected a non-empty rejection reason")
	}
}

func TestCheck_RejectsOnFlatSameDirectionLimit(t *testing.T) {
	g := New(nil) // no cluster map: each symbol is its own singleton cluster
	open := []OpenPosition{
		{Symbol: "BTCUSDT", Direction: "long"},
		{Symbol: "ETHUSDT", Direction: "long"},
		{Symbol: "SOLUSDT", Direction: "long"},
	}
	ok, _ := g.Check(open, "ADAUSDT", "long")
	if ok {
		t.Fatalf("expected rejection once the bot already holds 3 same-direction positions overall")
	}
}

func TestCheck_OppositeDirectionDoesNotCount(t *testing.T) {
	g := New(nil)
	open := []OpenPosition{
		{Symbol: "BTCUSDT", Direction: "short"},
		{Symbol: "ETHUSDT", Direction: "short"},
		{Symbol: "SOLUSDT", Direction: "short"},
	}
	ok, _ := g.Check(open, "ADAUSDT", "long")
	if !ok {
		t.Fatalf("opposite-direction positions should not count toward the same-direction cap")
	}
}

func TestCluster_DefaultsToSymbolWhenUnmapped(t *testing.T) {
	g := New(map[string]string{"DOGEUSDT": "meme"})
	if g.Cluster("BTCUSDT") != "BTCUSDT" {
		t.Fatalf("expected unmapped symbol to default to its own singleton cluster")
	}
}
