package chain

import (
	"strings"

	"paydesk/internal/models"
)

// Supported chains.
const (
	Arbitrum = "arbitrum"
	Base     = "base"
	Polygon  = "polygon"
)

// Confirmation thresholds per chain. Polygon's threshold is higher because
// its finality is probabilistic for much longer than the L2 rollups.
var requiredConfirmations = map[string]int64{
	Arbitrum: 12,
	Base:     12,
	Polygon:  128,
}

// Both supported stablecoins carry 6 decimals on every supported chain.
const AssetDecimals = 6

// ERC-20 contract addresses for the supported stablecoins, lowercased.
var tokenContracts = map[string]map[string]string{
	Arbitrum: {
		"USDC": "0xaf88d065e77c8cc2239327c5edb3a432268e5831",
		"USDT": "0xfd086bc7cd5c481dcc9c85ebe478a1c0b69fcbb9",
	},
	Base: {
		"USDC": "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
		"USDT": "0xfde4c96c8593536e31f229ea8f37b2ada2699bb2",
	},
	Polygon: {
		"USDC": "0x3c499c542cef5e3811e1192ce70d8cc03d5c3359",
		"USDT": "0xc2132d05d31c914a87c6611c10748aeb04b58e8f",
	},
}

// KnownChain reports whether the chain identifier is supported.
func KnownChain(chain string) bool {
	_, ok := requiredConfirmations[strings.ToLower(chain)]
	return ok
}

// RequiredConfirmations returns the finality threshold for a chain.
func RequiredConfirmations(chain string) (int64, error) {
	n, ok := requiredConfirmations[strings.ToLower(chain)]
	if !ok {
		return 0, models.ErrUnknownChain
	}
	return n, nil
}

// ContractFor returns the token contract address for an asset on a chain.
func ContractFor(chain, asset string) (string, error) {
	contracts, ok := tokenContracts[strings.ToLower(chain)]
	if !ok {
		return "", models.ErrUnknownChain
	}
	addr, ok := contracts[strings.ToUpper(asset)]
	if !ok {
		return "", models.ErrUnknownAsset
	}
	return addr, nil
}

// AssetForContract resolves a contract address seen in a log back to the
// asset symbol, or "" when the contract is not a known stablecoin.
func AssetForContract(chain, contract string) string {
	contracts, ok := tokenContracts[strings.ToLower(chain)]
	if !ok {
		return ""
	}
	contract = strings.ToLower(contract)
	for asset, addr := range contracts {
		if addr == contract {
			return asset
		}
	}
	return ""
}
