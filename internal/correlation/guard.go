// Package correlation implements the V4 Correlation Guard: it blocks the Paper Trader from piling
// up same-direction exposure across symbols that move together, on top of
// the flat same-direction cap the Paper Trader already enforces.
//
// It holds a static symbol -> category map, generalized from sector-labeling
// purpose to a risk-clustering one.
package correlation

// OpenPosition is the minimal shape the guard needs from an existing
// position to evaluate a new admission.
type OpenPosition struct {
	Symbol    string
	Direction string
}

// maxSameDirection is the hard cap on same-direction exposure, both flat
// (across all symbols) and per-cluster.
const maxSameDirection = 3

// Guard holds the static symbol → cluster mapping.
type Guard struct {
	clusters map[string]string
}

// New builds a Guard from a symbol → cluster tag map. Symbols absent from
// the map are treated as singleton clusters (their own symbol name), so
// an incomplete mapping degrades to "no clustering" rather than panicking.
func New(clusters map[string]string) *Guard {
	if clusters == nil {
		clusters = make(map[string]string)
	}
	return &Guard{clusters: clusters}
}

// Cluster returns the cluster tag for a symbol, defaulting to the symbol
// itself when unmapped.
func (g *Guard) Cluster(symbol string) string {
	if c, ok := g.clusters[symbol]; ok {
		return c
	}
	return symbol
}

// Check runs a two-part anti-correlation test: reject if the bot already
// holds >= 3 same-direction positions overall,
// or if the candidate symbol's cluster already holds >= 3 same-direction
// positions. Returns (true, "") when the candidate is admissible.
func (g *Guard) Check(open []OpenPosition, symbol, direction string) (bool, string) {
	sameDirection := 0
	cluster := g.Cluster(symbol)
	sameCluster := 0

	for _, p := range open {
		if p.Direction != direction {
			continue
		}
		sameDirection++
		if g.Cluster(p.Symbol) == cluster {
			sameCluster++
		}
	}

	if sameDirection >= maxSameDirection {
		return false, "correlation limit 3: already at max same-direction positions"
	}
	if sameCluster >= maxSameDirection {
		return false, "correlation limit 3: cluster " + cluster + " already has max same-direction positions"
	}
	return true, ""
}
