package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Chain identifies one of the supported networks whose reference token is tracked.
type Chain string

const (
	Ethereum Chain = "ethereum"
	Polygon  Chain = "polygon"
)

// ErrUnsupported is returned for any chain outside the supported set.
var ErrUnsupported = errors.New("unsupported chain")

// Info maps a chain onto provider-specific identifiers.
type Info struct {
	Chain Chain
	// Symbol of the reference token.
	Symbol string
	// TokenAddress is the ERC-20 contract priced by the market-data API.
	TokenAddress common.Address
	// MoralisChainID is the hex chain id the token lives on.
	MoralisChainID string
	// FeedAddress is the Chainlink <symbol>/USD aggregator on Ethereum mainnet.
	FeedAddress common.Address
}

var registry = map[Chain]Info{
	Ethereum: {
		Chain:          Ethereum,
		Symbol:         "WETH",
		TokenAddress:   common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		MoralisChainID: "0x1",
		FeedAddress:    common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"),
	},
	Polygon: {
		Chain:          Polygon,
		Symbol:         "MATIC",
		TokenAddress:   common.HexToAddress("0x7D1AfA7B718fb893dB30A3aBc0Cfc608AaCfeBB0"),
		MoralisChainID: "0x1",
		FeedAddress:    common.HexToAddress("0x7bAC85A8a13A4BcD8abb3eB7d6b4d632c5a57676"),
	},
}

// Supported returns the fixed set of chains in a stable order.
func Supported() []Chain {
	return []Chain{Ethereum, Polygon}
}

// Parse converts user input into a Chain, rejecting anything outside the supported set.
func Parse(s string) (Chain, error) {
	c := Chain(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := registry[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, s)
	}
	return c, nil
}

// Lookup returns provider identifiers for c.
func Lookup(c Chain) (Info, error) {
	info, ok := registry[c]
	if !ok {
		return Info{}, fmt.Errorf("%w: %q", ErrUnsupported, string(c))
	}
	return info, nil
}

// Valid reports whether c is in the supported set.
func (c Chain) Valid() bool {
	_, ok := registry[c]
	return ok
}

func (c Chain) String() string {
	return string(c)
}
