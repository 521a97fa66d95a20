package feed

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-arb/internal/orderbook"
	"github.com/mselser95/polymarket-arb/pkg/clock"
	"github.com/mselser95/polymarket-arb/pkg/types"
	"go.uber.org/zap"
)

// PollConfig configures a PollSource.
type PollConfig struct {
	BaseURL      string
	HTTPClient   *http.Client
	Store        *orderbook.Store
	Notifier     *Notifier
	Clock        clock.Clock
	Logger       *zap.Logger
	ScanInterval time.Duration
	Concurrency  int // bounded concurrent fetches per scan, default 8
}

// PollSource is the REST fallback Source: on a fixed interval it fetches
// every watched token's book over a bounded-concurrency worker pool. Used
// when push transport is disabled or has been deliberately degraded.
type PollSource struct {
	baseURL      string
	httpClient   *http.Client
	store        *orderbook.Store
	notifier     *Notifier
	clk          clock.Clock
	logger       *zap.Logger
	scanInterval time.Duration
	concurrency  int

	mu     sync.RWMutex
	tokens map[string]TokenRef

	seqMu sync.Mutex
	seqs  map[string]int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPollSource builds a PollSource.
func NewPollSource(cfg PollConfig) *PollSource {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &PollSource{
		baseURL:      cfg.BaseURL,
		httpClient:   httpClient,
		store:        cfg.Store,
		notifier:     cfg.Notifier,
		clk:          cfg.Clock,
		logger:       cfg.Logger,
		scanInterval: cfg.ScanInterval,
		concurrency:  concurrency,
		tokens:       make(map[string]TokenRef),
		seqs:         make(map[string]int64),
	}
}

// SetTokens replaces the watched token set.
func (p *PollSource) SetTokens(tokens []TokenRef) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := make(map[string]TokenRef, len(tokens))
	for _, t := range tokens {
		m[t.TokenID] = t
	}
	p.tokens = m
}

// Start launches the scan loop.
func (p *PollSource) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.loop(ctx)
	return nil
}

func (p *PollSource) loop(ctx context.Context) {
	defer p.wg.Done()
	ticker := p.clk.NewTicker(p.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			p.scanOnce(ctx)
		}
	}
}

func (p *PollSource) scanOnce(ctx context.Context) {
	p.mu.RLock()
	refs := make([]TokenRef, 0, len(p.tokens))
	for _, r := range p.tokens {
		refs = append(refs, r)
	}
	p.mu.RUnlock()

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, ref := range refs {
		ref := ref
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			p.fetchOne(ctx, ref)
		}()
	}
	wg.Wait()
}

func (p *PollSource) fetchOne(ctx context.Context, ref TokenRef) {
	start := time.Now()
	url := fmt.Sprintf("%s/book?token_id=%s", p.baseURL, ref.TokenID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		PollFetchesTotal.WithLabelValues("error").Inc()
		return
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		PollFetchesTotal.WithLabelValues("error").Inc()
		p.store.MarkStale(ref.TokenID)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		PollFetchesTotal.WithLabelValues("error").Inc()
		p.store.MarkStale(ref.TokenID)
		return
	}

	var data struct {
		Bids []types.PriceLevel `json:"bids"`
		Asks []types.PriceLevel `json:"asks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		PollFetchesTotal.WithLabelValues("error").Inc()
		return
	}

	PollFetchesTotal.WithLabelValues("ok").Inc()
	PollFetchDuration.Observe(time.Since(start).Seconds())

	u := orderbook.Update{
		TokenID:  ref.TokenID,
		MarketID: ref.MarketID,
		Outcome:  ref.Outcome,
		Seq:      p.nextSeq(ref.TokenID),
	}
	if bp, bs, ok := bestBid(data.Bids); ok {
		u.HasBid, u.BidPrice, u.BidSize = true, bp, bs
	}
	if ap, as, ok := bestAsk(data.Asks); ok {
		u.HasAsk, u.AskPrice, u.AskSize = true, ap, as
	}
	if !u.HasBid && !u.HasAsk {
		return
	}

	if p.store.Apply(u) {
		p.notifier.Notify(ref.MarketID)
	}
}

// nextSeq hands out a strictly increasing per-token sequence number. REST
// snapshots carry no venue sequence, so the poll source mints its own —
// every scan attempt advances it, whether or not the book content changed,
// so the store's strictly-monotonic check never rejects a fresh poll.
func (p *PollSource) nextSeq(tokenID string) int64 {
	p.seqMu.Lock()
	defer p.seqMu.Unlock()
	p.seqs[tokenID]++
	return p.seqs[tokenID]
}

// MarkStale marks a single token's book stale.
func (p *PollSource) MarkStale(tokenID string) {
	p.store.MarkStale(tokenID)
}

// Stop halts the scan loop.
func (p *PollSource) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}
