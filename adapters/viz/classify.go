// Package viz implements the heuristic log-text classification and
// Kafka-backed fan-out behind SubscribeVizEvents: a pure function from
// log message to a coarse component tag, feeding a small event bus.
// Classification is a policy, not a contract — it only ever informs
// observability, never a routing or safety decision.
package viz

import "strings"

// Component is one of the fixed set of heuristic source tags a viz
// consumer groups log lines by.
type Component string

const (
	ComponentHeliusWs   Component = "helius-ws"
	ComponentSolanaRpc  Component = "solana-rpc"
	ComponentPumpfun    Component = "pumpfun"
	ComponentRaydium    Component = "raydium"
	ComponentJupiter    Component = "jupiter"
	ComponentJito       Component = "jito"
	ComponentPumpPortal Component = "pumpportal"
	ComponentTxBuilder  Component = "tx-builder"
	ComponentBackendApi Component = "backend-api"
	ComponentOther      Component = "other"
)

// classifiers is ordered most-specific-first; the first substring
// match wins. Kept as a slice rather than a map so the match order is
// stable and easy to extend without worrying about map iteration
// order.
var classifiers = []struct {
	substr    string
	component Component
}{
	{"helius", ComponentHeliusWs},
	{"logssubscribe", ComponentHeliusWs},
	{"getaccountinfo", ComponentSolanaRpc},
	{"gettransaction", ComponentSolanaRpc},
	{"getsignaturesforaddress", ComponentSolanaRpc},
	{"pumpportal", ComponentPumpPortal},
	{"pump.fun", ComponentPumpfun},
	{"pumpfun", ComponentPumpfun},
	{"bonding curve", ComponentPumpfun},
	{"raydium", ComponentRaydium},
	{"amm", ComponentRaydium},
	{"jupiter", ComponentJupiter},
	{"jup.ag", ComponentJupiter},
	{"jito", ComponentJito},
	{"bundle", ComponentJito},
	{"tip account", ComponentJito},
	{"unsigned tx", ComponentTxBuilder},
	{"materializ", ComponentTxBuilder},
	{"/api/", ComponentBackendApi},
	{"session", ComponentBackendApi},
}

// Classify maps a free-form log line to its best-guess component,
// falling back to ComponentOther when nothing matches.
func Classify(line string) Component {
	lower := strings.ToLower(line)
	for _, c := range classifiers {
		if strings.Contains(lower, c.substr) {
			return c.component
		}
	}
	return ComponentOther
}
