package explorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"

	"github.com/vultisig/vultiwallet/internal/types"
)

const (
	DefaultTimeout           = 60 * time.Second
	DefaultRequestsPerSecond = 50
	defaultAPIPrefix         = "/api"

	maxFailingRequests = 10
	failingRatio       = 0.6
)

type Config struct {
	Hosts             []string
	APIPrefix         string
	Network           string
	Timeout           time.Duration
	RequestsPerSecond int
}

// Insight talks to one or more Insight-compatible servers. Hosts are tried
// in order; each has its own circuit breaker.
type Insight struct {
	hosts     []string
	apiPrefix string
	network   string
	client    *http.Client
	breakers  map[string]*gobreaker.CircuitBreaker
	limiter   ratelimit.Limiter
	logger    *logrus.Logger
}

func newCircuitBreaker(host string, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: host,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return int(counts.Requests) > maxFailingRequests && ratio >= failingRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"host": name,
				"from": from.String(),
				"to":   to.String(),
			}).Warn("explorer circuit breaker changed state")
		},
	})
}

func NewInsight(cfg Config, logger *logrus.Logger) (*Insight, error) {
	if len(cfg.Hosts) == 0 {
		return nil, fmt.Errorf("explorer needs at least one host")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = defaultAPIPrefix
	}
	breakers := make(map[string]*gobreaker.CircuitBreaker, len(cfg.Hosts))
	for _, h := range cfg.Hosts {
		breakers[h] = newCircuitBreaker(h, logger)
	}
	return &Insight{
		hosts:     cfg.Hosts,
		apiPrefix: strings.TrimSuffix(cfg.APIPrefix, "/"),
		network:   cfg.Network,
		client:    &http.Client{Timeout: cfg.Timeout},
		breakers:  breakers,
		limiter:   ratelimit.New(cfg.RequestsPerSecond),
		logger:    logger,
	}, nil
}

type response struct {
	status int
	body   []byte
}

var errServer = errors.New("explorer server error")

func (i *Insight) do(ctx context.Context, method, target string, payload any) (*response, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("fail to marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("fail to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fail to read response: %w", err)
	}
	return &response{status: resp.StatusCode, body: data}, nil
}

// requestList sends the request to each host until one answers with a
// status below 500. The last failure is returned when every host fails.
func (i *Insight) requestList(ctx context.Context, method, path string, payload any) (*response, error) {
	var lastErr error
	for _, host := range i.hosts {
		i.limiter.Take()
		target := host + i.apiPrefix + path
		out, err := i.breakers[host].Execute(func() (interface{}, error) {
			resp, err := i.do(ctx, method, target, payload)
			if err != nil {
				return nil, err
			}
			if resp.status >= http.StatusInternalServerError {
				return resp, fmt.Errorf("%w: status %d", errServer, resp.status)
			}
			return resp, nil
		})
		if err == nil {
			return out.(*response), nil
		}
		i.logger.WithFields(logrus.Fields{
			"url": target,
		}).WithError(err).Warn("explorer request failed")
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("fail to query explorer: %w", lastErr)
}

func (i *Insight) requestJSON(ctx context.Context, method, path string, payload, out any) error {
	resp, err := i.requestList(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK {
		return fmt.Errorf("explorer returned status %d: %s", resp.status, strings.TrimSpace(string(resp.body)))
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("fail to decode explorer response: %w", err)
	}
	return nil
}

type insightUtxo struct {
	Address       string          `json:"address"`
	TxID          string          `json:"txid"`
	Vout          uint32          `json:"vout"`
	ScriptPubKey  string          `json:"scriptPubKey"`
	Amount        decimal.Decimal `json:"amount"`
	Confirmations int64           `json:"confirmations"`
}

func (i *Insight) GetUtxos(ctx context.Context, addresses []string) ([]types.Utxo, error) {
	if len(addresses) == 0 {
		return []types.Utxo{}, nil
	}
	var raw []insightUtxo
	payload := map[string]string{"addrs": strings.Join(addresses, ",")}
	if err := i.requestJSON(ctx, http.MethodPost, "/addrs/utxo", payload, &raw); err != nil {
		return nil, err
	}
	utxos := make([]types.Utxo, 0, len(raw))
	for _, u := range raw {
		utxos = append(utxos, types.Utxo{
			TxID:          u.TxID,
			Vout:          u.Vout,
			Address:       u.Address,
			ScriptPubKey:  u.ScriptPubKey,
			Satoshis:      ToSatoshis(u.Amount),
			Confirmations: u.Confirmations,
		})
	}
	return utxos, nil
}

func (i *Insight) GetAddressActivity(ctx context.Context, address string) (bool, error) {
	var out struct {
		TxApperances int64 `json:"txApperances"`
	}
	if err := i.requestJSON(ctx, http.MethodGet, "/addr/"+url.PathEscape(address)+"?noTxList=1", nil, &out); err != nil {
		return false, err
	}
	return out.TxApperances > 0, nil
}

type insightTx struct {
	TxID          string          `json:"txid"`
	Confirmations int64           `json:"confirmations"`
	BlockHeight   int64           `json:"blockheight"`
	Fees          decimal.Decimal `json:"fees"`
	Size          int64           `json:"size"`
	Time          int64           `json:"time"`
	Vin           []struct {
		Addr  string          `json:"addr"`
		Value decimal.Decimal `json:"value"`
	} `json:"vin"`
	Vout []struct {
		Value        decimal.Decimal `json:"value"`
		ScriptPubKey struct {
			Addresses []string `json:"addresses"`
		} `json:"scriptPubKey"`
	} `json:"vout"`
}

func (t insightTx) toChainTx() types.ChainTx {
	tx := types.ChainTx{
		TxID:          t.TxID,
		Confirmations: t.Confirmations,
		BlockHeight:   t.BlockHeight,
		Fees:          ToSatoshis(t.Fees),
		Size:          t.Size,
		Time:          t.Time,
		Inputs:        make([]types.TxItem, 0, len(t.Vin)),
		Outputs:       make([]types.TxItem, 0, len(t.Vout)),
	}
	for _, in := range t.Vin {
		tx.Inputs = append(tx.Inputs, types.TxItem{Address: in.Addr, Amount: ToSatoshis(in.Value)})
	}
	for _, out := range t.Vout {
		var addr string
		if len(out.ScriptPubKey.Addresses) > 0 {
			addr = out.ScriptPubKey.Addresses[0]
		}
		tx.Outputs = append(tx.Outputs, types.TxItem{Address: addr, Amount: ToSatoshis(out.Value)})
	}
	return tx
}

func (i *Insight) GetTransaction(ctx context.Context, txid string) (*types.ChainTx, error) {
	resp, err := i.requestList(ctx, http.MethodGet, "/tx/"+url.PathEscape(txid), nil)
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusNotFound {
		return nil, nil
	}
	if resp.status != http.StatusOK {
		return nil, fmt.Errorf("explorer returned status %d: %s", resp.status, strings.TrimSpace(string(resp.body)))
	}
	var raw insightTx
	if err := json.Unmarshal(resp.body, &raw); err != nil {
		return nil, fmt.Errorf("fail to decode explorer response: %w", err)
	}
	tx := raw.toChainTx()
	return &tx, nil
}

func (i *Insight) GetTransactions(ctx context.Context, addresses []string, from, to int) ([]types.ChainTx, int64, error) {
	if len(addresses) == 0 {
		return []types.ChainTx{}, 0, nil
	}
	var out struct {
		TotalItems int64       `json:"totalItems"`
		Items      []insightTx `json:"items"`
	}
	payload := map[string]any{
		"addrs": strings.Join(addresses, ","),
		"from":  from,
		"to":    to,
	}
	if err := i.requestJSON(ctx, http.MethodPost, "/addrs/txs", payload, &out); err != nil {
		return nil, 0, err
	}
	txs := make([]types.ChainTx, 0, len(out.Items))
	for _, item := range out.Items {
		txs = append(txs, item.toChainTx())
	}
	return txs, out.TotalItems, nil
}

func (i *Insight) EstimateFee(ctx context.Context, nbBlocks []int) (map[int]int64, error) {
	targets := append([]int(nil), nbBlocks...)
	sort.Ints(targets)
	parts := make([]string, 0, len(targets))
	for _, n := range targets {
		parts = append(parts, strconv.Itoa(n))
	}
	var raw map[string]decimal.Decimal
	if err := i.requestJSON(ctx, http.MethodGet, "/utils/estimatefee?nbBlocks="+strings.Join(parts, ","), nil, &raw); err != nil {
		return nil, err
	}
	out := make(map[int]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		out[n] = ToSatoshis(v)
	}
	return out, nil
}

func (i *Insight) GetBlockchainHeight(ctx context.Context) (int64, error) {
	var out struct {
		Info struct {
			Blocks int64 `json:"blocks"`
		} `json:"info"`
	}
	if err := i.requestJSON(ctx, http.MethodGet, "/status?q=getInfo", nil, &out); err != nil {
		return 0, err
	}
	return out.Info.Blocks, nil
}

func (i *Insight) Broadcast(ctx context.Context, rawTx string) (string, error) {
	var out struct {
		TxID string `json:"txid"`
	}
	if err := i.requestJSON(ctx, http.MethodPost, "/tx/send", map[string]string{"rawtx": rawTx}, &out); err != nil {
		return "", err
	}
	return out.TxID, nil
}
