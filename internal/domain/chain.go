package domain

// Chain identifies the network a token contract lives on.
type Chain string

const (
	ChainSolana   Chain = "solana"
	ChainEthereum Chain = "ethereum"
	ChainSepolia  Chain = "sepolia"
	ChainGoerli   Chain = "goerli"
	ChainBSC      Chain = "bsc"
	ChainBase     Chain = "base"
	ChainArbitrum Chain = "arbitrum"
)

// IsEVM reports whether the chain uses EVM-style 0x addresses.
func (c Chain) IsEVM() bool {
	switch c {
	case ChainEthereum, ChainSepolia, ChainGoerli, ChainBSC, ChainBase, ChainArbitrum:
		return true
	}
	return false
}

// Valid reports whether c is one of the supported chains.
func (c Chain) Valid() bool {
	return c == ChainSolana || c.IsEVM()
}

// EVMChainID returns the numeric chain id used for transaction signing
// and the 1inch API path, or 0 for non-EVM chains.
func (c Chain) EVMChainID() int64 {
	switch c {
	case ChainEthereum:
		return 1
	case ChainSepolia:
		return 11155111
	case ChainGoerli:
		return 5
	case ChainBSC:
		return 56
	case ChainBase:
		return 8453
	case ChainArbitrum:
		return 42161
	}
	return 0
}

// NativeSymbol returns the chain's gas-token symbol.
func (c Chain) NativeSymbol() string {
	switch c {
	case ChainSolana:
		return "SOL"
	case ChainBSC:
		return "BNB"
	default:
		return "ETH"
	}
}

// quoteTokens maps chain → quote symbol → contract address. These are the
// canonical USD-stable mints/contracts the bot trades against.
var quoteTokens = map[Chain]map[string]string{
	ChainSolana: {
		"USDT": "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB",
		"USDC": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	},
	ChainEthereum: {
		"USDT": "0xdAC17F958D2ee523a2206206994597C13D831ec7",
		"USDC": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
	},
	ChainSepolia: {
		"USDT": "0x7169D38820dfd117C3FA1f22a697dBA58d90BA06",
		"USDC": "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
	},
	ChainGoerli: {
		"USDT": "0xC2C527C0CACF457746Bd31B2a698Fe89de2b6d49",
		"USDC": "0x07865c6E87B9F70255377e024ace6630C1Eaa37F",
	},
	ChainBSC: {
		"USDT": "0x55d398326f99059fF775485246999027B3197955",
		"USDC": "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d",
	},
	ChainBase: {
		"USDT": "0xfde4C96c8593536E31F229EA8f37b2ADa2699bb2",
		"USDC": "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	},
	ChainArbitrum: {
		"USDT": "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9",
		"USDC": "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
	},
}

// QuoteTokenAddress resolves a quote symbol (e.g. "USDT") to its contract
// address on the given chain. The second return is false when the chain
// or symbol is unknown.
func QuoteTokenAddress(chain Chain, symbol string) (string, bool) {
	tokens, ok := quoteTokens[chain]
	if !ok {
		return "", false
	}
	addr, ok := tokens[symbol]
	return addr, ok
}

// IsQuoteToken reports whether the address is one of the chain's
// registered quote tokens. Backends use this to pick stablecoin decimals
// when scaling amounts.
func IsQuoteToken(chain Chain, address string) bool {
	for _, addr := range quoteTokens[chain] {
		if addr == address {
			return true
		}
	}
	return false
}
