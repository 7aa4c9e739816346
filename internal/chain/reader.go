package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lp-pool-watcher/internal/config"
)

// ReadError wraps any failure while reading one pool's reserves.
type ReadError struct {
	Pool string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read reserves for pool %s: %v", e.Pool, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// TokenReserve is one side of a pool with decimals already applied.
type TokenReserve struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
	Amount   decimal.Decimal
}

// PoolReserves carries both sides of a pool in token0/token1 order, the
// ordering the pool contract itself reports. V2 and V3 layout differences
// are resolved here and never visible to callers.
type PoolReserves struct {
	Token0 TokenReserve
	Token1 TokenReserve
}

// ReserveReader reads current reserves for a configured pool.
type ReserveReader interface {
	ReadReserves(ctx context.Context, pool config.Pool) (PoolReserves, error)
}

type tokenMeta struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

type poolMeta struct {
	Token0 tokenMeta
	Token1 tokenMeta
}

// Reader resolves pool token metadata once per pool and reads reserves on
// demand. Safe for concurrent use across pools.
type Reader struct {
	client *Client
	logger zerolog.Logger

	mu   sync.RWMutex
	meta map[string]poolMeta
}

// NewReader constructs a Reader on top of a chain client.
func NewReader(client *Client, logger zerolog.Logger) *Reader {
	return &Reader{
		client: client,
		logger: logger.With().Str("component", "chain_reader").Logger(),
		meta:   make(map[string]poolMeta),
	}
}

// ReadReserves returns the current reserves for the pool, normalized to
// human-readable decimal amounts.
func (r *Reader) ReadReserves(ctx context.Context, pool config.Pool) (PoolReserves, error) {
	ctx, cancel := context.WithTimeout(ctx, r.client.Timeout())
	defer cancel()

	addr := common.HexToAddress(pool.Address)

	meta, err := r.poolMeta(ctx, addr)
	if err != nil {
		return PoolReserves{}, &ReadError{Pool: pool.Address, Err: err}
	}

	var raw0, raw1 *big.Int
	switch pool.Type {
	case "v2":
		raw0, raw1, err = r.readV2Reserves(ctx, addr)
	case "v3":
		raw0, raw1, err = r.readV3Reserves(ctx, addr, meta)
	default:
		err = fmt.Errorf("unsupported pool type %q", pool.Type)
	}
	if err != nil {
		return PoolReserves{}, &ReadError{Pool: pool.Address, Err: err}
	}

	return PoolReserves{
		Token0: TokenReserve{
			Symbol:   meta.Token0.Symbol,
			Address:  meta.Token0.Address,
			Decimals: meta.Token0.Decimals,
			Amount:   decimal.NewFromBigInt(raw0, -int32(meta.Token0.Decimals)),
		},
		Token1: TokenReserve{
			Symbol:   meta.Token1.Symbol,
			Address:  meta.Token1.Address,
			Decimals: meta.Token1.Decimals,
			Amount:   decimal.NewFromBigInt(raw1, -int32(meta.Token1.Decimals)),
		},
	}, nil
}

// poolMeta returns cached token metadata for the pool, fetching it once.
// Token addresses, symbols, and decimals are immutable for a pool.
func (r *Reader) poolMeta(ctx context.Context, pool common.Address) (poolMeta, error) {
	key := strings.ToLower(pool.Hex())

	r.mu.RLock()
	meta, ok := r.meta[key]
	r.mu.RUnlock()
	if ok {
		return meta, nil
	}

	pABI, err := poolABI()
	if err != nil {
		return poolMeta{}, fmt.Errorf("parse pool abi: %w", err)
	}

	token0Addr, err := r.callAddress(ctx, pool, pABI, "token0")
	if err != nil {
		return poolMeta{}, fmt.Errorf("token0: %w", err)
	}
	token1Addr, err := r.callAddress(ctx, pool, pABI, "token1")
	if err != nil {
		return poolMeta{}, fmt.Errorf("token1: %w", err)
	}

	token0, err := r.tokenMeta(ctx, token0Addr)
	if err != nil {
		return poolMeta{}, err
	}
	token1, err := r.tokenMeta(ctx, token1Addr)
	if err != nil {
		return poolMeta{}, err
	}

	meta = poolMeta{Token0: token0, Token1: token1}

	r.mu.Lock()
	r.meta[key] = meta
	r.mu.Unlock()

	r.logger.Debug().
		Str("pool", pool.Hex()).
		Str("token0", token0.Symbol).
		Str("token1", token1.Symbol).
		Msg("pool metadata cached")

	return meta, nil
}

func (r *Reader) tokenMeta(ctx context.Context, token common.Address) (tokenMeta, error) {
	eABI, err := erc20ABI()
	if err != nil {
		return tokenMeta{}, fmt.Errorf("parse erc20 abi: %w", err)
	}

	values, err := r.call(ctx, token, eABI, "symbol")
	if err != nil {
		return tokenMeta{}, fmt.Errorf("symbol of %s: %w", token.Hex(), err)
	}
	symbol, ok := values[0].(string)
	if !ok {
		return tokenMeta{}, fmt.Errorf("symbol of %s: unexpected output type", token.Hex())
	}

	values, err = r.call(ctx, token, eABI, "decimals")
	if err != nil {
		return tokenMeta{}, fmt.Errorf("decimals of %s: %w", token.Hex(), err)
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return tokenMeta{}, fmt.Errorf("decimals of %s: unexpected output type", token.Hex())
	}

	return tokenMeta{Address: token, Symbol: symbol, Decimals: decimals}, nil
}

// readV2Reserves uses the pair contract's getReserves.
func (r *Reader) readV2Reserves(ctx context.Context, pool common.Address) (*big.Int, *big.Int, error) {
	pABI, err := poolABI()
	if err != nil {
		return nil, nil, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := r.call(ctx, pool, pABI, "getReserves")
	if err != nil {
		return nil, nil, fmt.Errorf("getReserves: %w", err)
	}
	if len(values) < 2 {
		return nil, nil, fmt.Errorf("getReserves: expected 2 reserves, got %d outputs", len(values))
	}

	reserve0, ok0 := values[0].(*big.Int)
	reserve1, ok1 := values[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, fmt.Errorf("getReserves: unexpected output types")
	}
	return reserve0, reserve1, nil
}

// readV3Reserves uses ERC-20 balances held by the pool; V3 concentrated
// liquidity keeps no getReserves equivalent.
func (r *Reader) readV3Reserves(ctx context.Context, pool common.Address, meta poolMeta) (*big.Int, *big.Int, error) {
	eABI, err := erc20ABI()
	if err != nil {
		return nil, nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	balance0, err := r.callBalance(ctx, meta.Token0.Address, eABI, pool)
	if err != nil {
		return nil, nil, fmt.Errorf("balance of %s: %w", meta.Token0.Symbol, err)
	}
	balance1, err := r.callBalance(ctx, meta.Token1.Address, eABI, pool)
	if err != nil {
		return nil, nil, fmt.Errorf("balance of %s: %w", meta.Token1.Symbol, err)
	}
	return balance0, balance1, nil
}

func (r *Reader) callBalance(ctx context.Context, token common.Address, eABI abi.ABI, holder common.Address) (*big.Int, error) {
	values, err := r.call(ctx, token, eABI, "balanceOf", holder)
	if err != nil {
		return nil, err
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf: unexpected output type")
	}
	return balance, nil
}

func (r *Reader) callAddress(ctx context.Context, contract common.Address, cABI abi.ABI, method string) (common.Address, error) {
	values, err := r.call(ctx, contract, cABI, method)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected output type", method)
	}
	return addr, nil
}

func (r *Reader) call(ctx context.Context, contract common.Address, cABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	payload, err := cABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}

	res, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: payload})
	if err != nil {
		return nil, err
	}

	values, err := cABI.Unpack(method, res)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s: empty response", method)
	}
	return values, nil
}

var _ ReserveReader = (*Reader)(nil)
