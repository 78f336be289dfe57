// auth/environment.go
package auth

import "fmt"

// Environment selects a GRVT deployment. The numeric value is the EVM
// chain ID used in the EIP-712 signing domain.
type Environment int64

const (
	Mainnet Environment = 325
	Testnet Environment = 326
	Dev     Environment = 327
)

// ChainID returns the EVM chain ID for the EIP-712 domain separator.
func (e Environment) ChainID() int64 {
	return int64(e)
}

func (e Environment) String() string {
	switch e {
	case Mainnet:
		return "mainnet"
	case Testnet:
		return "testnet"
	case Dev:
		return "dev"
	default:
		return fmt.Sprintf("Environment(%d)", int64(e))
	}
}

// ParseEnvironment maps a label like "testnet" to its Environment.
func ParseEnvironment(s string) (Environment, error) {
	switch s {
	case "mainnet":
		return Mainnet, nil
	case "testnet":
		return Testnet, nil
	case "dev":
		return Dev, nil
	default:
		return 0, fmt.Errorf("unknown environment %q", s)
	}
}

type endpointSet struct {
	rest     string
	market   string
	wsTrades string
	wsMarket string
}

var endpointTable = map[Environment]endpointSet{
	Testnet: {
		rest:     "https://trades.testnet.grvt.io",
		market:   "https://market-data.testnet.grvt.io",
		wsTrades: "wss://trades.testnet.grvt.io/ws",
		wsMarket: "wss://market-data.testnet.grvt.io/ws",
	},
	Mainnet: {
		rest:     "https://trades.grvt.io",
		market:   "https://market-data.grvt.io",
		wsTrades: "wss://trades.grvt.io/ws",
		wsMarket: "wss://market-data.grvt.io/ws",
	},
	Dev: {
		rest:     "https://trades.dev.grvt.io",
		market:   "https://market-data.dev.grvt.io",
		wsTrades: "wss://trades.dev.grvt.io/ws",
		wsMarket: "wss://market-data.dev.grvt.io/ws",
	},
}

func (e Environment) endpoints() endpointSet {
	if ep, ok := endpointTable[e]; ok {
		return ep
	}
	return endpointTable[Testnet]
}
