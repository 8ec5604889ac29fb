package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"chain-price-alerts/internal/chain"
)

const (
	chainlinkProvider = "chainlink"

	aggregatorABIJSON = `[
{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}
]`
)

var aggregatorABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
	aggregatorABI = parsed
}

type contractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ChainlinkOptions parameterise the on-chain oracle fetcher.
type ChainlinkOptions struct {
	RPCURL       string
	Timeout      time.Duration
	MaxStaleness time.Duration
}

// Chainlink reads USD prices from Chainlink aggregators via Ethereum RPC.
type Chainlink struct {
	opts      ChainlinkOptions
	logger    zerolog.Logger
	now       func() time.Time
	caller    contractCaller
	clientMux sync.Mutex

	decimalsMux sync.Mutex
	decimals    map[common.Address]uint8
}

// NewChainlink builds a new oracle fetcher.
func NewChainlink(opts ChainlinkOptions, logger zerolog.Logger) *Chainlink {
	return &Chainlink{
		opts:     opts,
		logger:   logger.With().Str("component", "chainlink_fetcher").Logger(),
		now:      time.Now,
		decimals: make(map[common.Address]uint8),
	}
}

// FetchPrice retrieves the latest oracle answer for the chain's reference token.
func (o *Chainlink) FetchPrice(ctx context.Context, c chain.Chain) (decimal.Decimal, error) {
	info, err := chain.Lookup(c)
	if err != nil {
		return decimal.Decimal{}, upstream(chainlinkProvider, c, err)
	}
	if o.opts.RPCURL == "" && o.caller == nil {
		return decimal.Decimal{}, upstream(chainlinkProvider, c, errors.New("ethereum rpc url not configured"))
	}

	timeout := o.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	caller, err := o.getCaller(ctx)
	if err != nil {
		return decimal.Decimal{}, upstream(chainlinkProvider, c, err)
	}

	places, err := o.feedDecimals(ctx, caller, info.FeedAddress)
	if err != nil {
		return decimal.Decimal{}, upstream(chainlinkProvider, c, err)
	}

	outputs, err := call(ctx, caller, info.FeedAddress, "latestRoundData")
	if err != nil {
		return decimal.Decimal{}, upstream(chainlinkProvider, c, err)
	}
	if len(outputs) != 5 {
		return decimal.Decimal{}, upstream(chainlinkProvider, c, errors.New("unexpected latestRoundData response"))
	}

	answer, ok := outputs[1].(*big.Int)
	if !ok {
		return decimal.Decimal{}, upstream(chainlinkProvider, c, errors.New("failed to decode answer"))
	}
	updatedAt, ok := outputs[3].(*big.Int)
	if !ok {
		return decimal.Decimal{}, upstream(chainlinkProvider, c, errors.New("failed to decode updatedAt"))
	}

	if answer.Sign() < 0 {
		return decimal.Decimal{}, upstream(chainlinkProvider, c, fmt.Errorf("negative answer %s", answer.String()))
	}
	if o.opts.MaxStaleness > 0 {
		age := o.now().Sub(time.Unix(updatedAt.Int64(), 0))
		if age > o.opts.MaxStaleness {
			return decimal.Decimal{}, upstream(chainlinkProvider, c, fmt.Errorf("stale answer: updated %s ago", age.Round(time.Second)))
		}
	}

	price := decimal.NewFromBigInt(answer, -int32(places))
	o.logger.Debug().Str("chain", c.String()).Str("price", price.String()).Msg("fetched oracle price")
	return price, nil
}

func (o *Chainlink) feedDecimals(ctx context.Context, caller contractCaller, feed common.Address) (uint8, error) {
	o.decimalsMux.Lock()
	cached, ok := o.decimals[feed]
	o.decimalsMux.Unlock()
	if ok {
		return cached, nil
	}

	outputs, err := call(ctx, caller, feed, "decimals")
	if err != nil {
		return 0, err
	}
	if len(outputs) != 1 {
		return 0, errors.New("unexpected decimals response")
	}
	places, ok := outputs[0].(uint8)
	if !ok {
		return 0, errors.New("failed to decode decimals output")
	}

	o.decimalsMux.Lock()
	o.decimals[feed] = places
	o.decimalsMux.Unlock()
	return places, nil
}

func call(ctx context.Context, caller contractCaller, to common.Address, method string) ([]interface{}, error) {
	payload, err := aggregatorABI.Pack(method)
	if err != nil {
		return nil, err
	}
	res, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return aggregatorABI.Unpack(method, res)
}

func (o *Chainlink) getCaller(ctx context.Context) (contractCaller, error) {
	o.clientMux.Lock()
	defer o.clientMux.Unlock()

	if o.caller != nil {
		return o.caller, nil
	}

	client, err := ethclient.DialContext(ctx, o.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	o.caller = client
	return client, nil
}

var _ PriceSource = (*Chainlink)(nil)
