package registry

import (
	"fmt"
	"strings"
)

// USDCDecimals is fixed for the bridge stablecoin on every supported chain.
const USDCDecimals = 6

// NativeDecimals is the gas asset precision on every supported chain.
const NativeDecimals = 18

// Descriptor holds everything either transfer protocol needs to know about a
// chain. Domain is the attestation bridge's own numbering (distinct from the
// chain id); NetworkEnum is the swap protocol's network id. A zero-value
// field marked "unset" below means the chain does not support that protocol.
type Descriptor struct {
	Name               string
	ChainID            int64
	USDCAddress        string
	TokenMessenger     string // unset: ""
	MessageTransmitter string // unset: ""
	Domain             int32  // unset: -1
	NetworkEnum        int64  // unset: 0
	RPCList            []string
}

// chain ids
const (
	Ethereum    = 1
	Polygon     = 137
	Base        = 8453
	Arbitrum    = 42161
	Avalanche   = 43114
	Linea       = 59144
	EthSepolia  = 11155111
	AvaxFuji    = 43113
	BaseSepolia = 84532
)

var chains = map[int64]Descriptor{
	Ethereum: {
		Name:               "ethereum",
		ChainID:            Ethereum,
		USDCAddress:        "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		TokenMessenger:     "0x28b5a0e9C621a5BadaA536219b3a228C8168cf5d",
		MessageTransmitter: "0x81D40F21F12A8F0E3252Bccb954D722d4c464B64",
		Domain:             0,
		NetworkEnum:        1,
		RPCList:            []string{"https://eth.drpc.org", "https://eth.llamarpc.com"},
	},
	Avalanche: {
		Name:               "avax",
		ChainID:            Avalanche,
		USDCAddress:        "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E",
		TokenMessenger:     "0x28b5a0e9C621a5BadaA536219b3a228C8168cf5d",
		MessageTransmitter: "0x81D40F21F12A8F0E3252Bccb954D722d4c464B64",
		Domain:             1,
		NetworkEnum:        43114,
		RPCList:            []string{"https://rpc.ankr.com/avalanche", "https://avalanche.drpc.org"},
	},
	Base: {
		Name:               "base",
		ChainID:            Base,
		USDCAddress:        "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		TokenMessenger:     "0x28b5a0e9C621a5BadaA536219b3a228C8168cf5d",
		MessageTransmitter: "0x81D40F21F12A8F0E3252Bccb954D722d4c464B64",
		Domain:             6,
		NetworkEnum:        8453,
		RPCList:            []string{"https://mainnet.base.org", "https://base.drpc.org"},
	},
	Linea: {
		Name:               "linea",
		ChainID:            Linea,
		USDCAddress:        "0x176211869cA2b568f2A7D4EE941E073a821EE1ff",
		TokenMessenger:     "0x28b5a0e9C621a5BadaA536219b3a228C8168cf5d",
		MessageTransmitter: "0x81D40F21F12A8F0E3252Bccb954D722d4c464B64",
		Domain:             7,
		NetworkEnum:        59144,
		RPCList:            []string{"https://rpc.linea.build", "https://linea.drpc.org"},
	},
	// no bridge support on Polygon and Arbitrum, swap only
	Polygon: {
		Name:        "polygon",
		ChainID:     Polygon,
		USDCAddress: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
		Domain:      -1,
		NetworkEnum: 137,
		RPCList:     []string{"https://polygon-rpc.com", "https://polygon.drpc.org"},
	},
	Arbitrum: {
		Name:        "arbitrum",
		ChainID:     Arbitrum,
		USDCAddress: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
		Domain:      -1,
		NetworkEnum: 42161,
		RPCList:     []string{"https://rpc.ankr.com/arbitrum", "https://arbitrum.drpc.org"},
	},
	// testnets, bridge only
	EthSepolia: {
		Name:               "sepolia",
		ChainID:            EthSepolia,
		USDCAddress:        "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
		TokenMessenger:     "0x8fe6b999dc680ccfdd5bf7eb0974218be2542daa",
		MessageTransmitter: "0xe737e5cebeeba77efe34d4aa090756590b1ce275",
		Domain:             0,
		RPCList:            []string{"https://rpc.sepolia.org"},
	},
	AvaxFuji: {
		Name:               "fuji",
		ChainID:            AvaxFuji,
		USDCAddress:        "0x5425890298aed601595a70AB815c96711a31Bc65",
		TokenMessenger:     "0x8fe6b999dc680ccfdd5bf7eb0974218be2542daa",
		MessageTransmitter: "0xe737e5cebeeba77efe34d4aa090756590b1ce275",
		Domain:             1,
		RPCList:            []string{"https://api.avax-test.network/ext/bc/C/rpc"},
	},
	BaseSepolia: {
		Name:               "base-sepolia",
		ChainID:            BaseSepolia,
		USDCAddress:        "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		TokenMessenger:     "0x8fe6b999dc680ccfdd5bf7eb0974218be2542daa",
		MessageTransmitter: "0xe737e5cebeeba77efe34d4aa090756590b1ce275",
		Domain:             6,
		RPCList:            []string{"https://sepolia.base.org"},
	},
}

// ByChainID returns the descriptor for a numeric chain id.
func ByChainID(chainID int64) (Descriptor, bool) {
	d, ok := chains[chainID]
	return d, ok
}

// ByName resolves a logical chain name ("ethereum", "base", ...).
func ByName(name string) (Descriptor, bool) {
	for _, d := range chains {
		if d.Name == strings.ToLower(name) {
			return d, true
		}
	}
	return Descriptor{}, false
}

// BridgeSupported reports whether the attestation bridge can operate on the
// chain: it needs the messenger and transmitter contracts plus a domain code.
func BridgeSupported(chainID int64) bool {
	d, ok := chains[chainID]
	if !ok {
		return false
	}
	return d.TokenMessenger != "" && d.MessageTransmitter != "" && d.Domain >= 0
}

// IsBridgeStablecoin reports whether asset is the bridge's designated
// stablecoin on the given chain.
func IsBridgeStablecoin(chainID int64, asset string) bool {
	d, ok := chains[chainID]
	if !ok {
		return false
	}
	return strings.EqualFold(d.USDCAddress, asset)
}

// NetworkEnumFor maps a chain id to the swap protocol's network enumeration.
func NetworkEnumFor(chainID int64) (int64, error) {
	d, ok := chains[chainID]
	if !ok || d.NetworkEnum == 0 {
		return 0, fmt.Errorf("chain %d is not supported by the swap protocol", chainID)
	}
	return d.NetworkEnum, nil
}

// All returns every registered descriptor, for iteration by workers.
func All() []Descriptor {
	out := make([]Descriptor, 0, len(chains))
	for _, d := range chains {
		out = append(out, d)
	}
	return out
}
