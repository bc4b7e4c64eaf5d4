// Package sentiment implements the Sentiment Provider: a cached
// aggregate of external sentiment indicators exposed as
// {score∈[-100,+100], bias}, blending Fear&Greed and CryptoPanic news
// sources on a background refresh loop, rescaled from a native [-1,+1]
// overall score to [-100,+100].
package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"cryptosignals/engine/internal/cache"
	"cryptosignals/engine/internal/logging"
)

// Bias is the trading-direction lean the Signal Engine's sentiment step
// multiplies direction_score by.
type Bias string

const (
	BiasBullish Bias = "bullish"
	BiasBearish Bias = "bearish"
	BiasNeutral Bias = "neutral"
)

// Score is the provider's output: a [-100,+100] aggregate plus the
// derived bias.
type Score struct {
	Value     float64
	Bias      Bias
	UpdatedAt time.Time
}

// Config holds the fields this provider needs.
type Config struct {
	Enabled           bool
	FearGreedEnabled  bool
	NewsEnabled       bool
	CryptoPanicAPIKey string
	UpdateInterval    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		FearGreedEnabled: true,
		NewsEnabled:      true,
		UpdateInterval:   15 * time.Minute,
	}
}

// Provider polls Fear&Greed + CryptoPanic on a background timer and
// serves the cached result, with a Redis-backed cache layer in front for
// sharing across bot instances.
type Provider struct {
	cfg        Config
	httpClient *http.Client
	cacheSvc   *cache.Service
	log        *logging.Logger

	mu        sync.RWMutex
	lastScore Score
	stopCh    chan struct{}
}

func NewProvider(cfg Config, cacheSvc *cache.Service, log *logging.Logger) *Provider {
	return &Provider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cacheSvc:   cacheSvc,
		log:        log,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the background refresh loop on a ticker.
func (p *Provider) Start(ctx context.Context) {
	if !p.cfg.Enabled {
		return
	}
	p.refresh(ctx)

	go func() {
		ticker := time.NewTicker(p.cfg.UpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.refresh(ctx)
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (p *Provider) Stop() {
	close(p.stopCh)
}

// Current returns the last computed score, falling back to the Redis
// cache when this process has not refreshed yet.
func (p *Provider) Current(ctx context.Context) Score {
	p.mu.RLock()
	local := p.lastScore
	p.mu.RUnlock()

	if !local.UpdatedAt.IsZero() {
		return local
	}

	if p.cacheSvc != nil {
		var cached Score
		if found, err := p.cacheSvc.GetJSON(ctx, cache.SentimentKey(), &cached); err == nil && found {
			return cached
		}
	}
	return Score{Value: 0, Bias: BiasNeutral}
}

// SentimentMultiplier scales direction_score by 1.3 when sentiment
// agrees with the candidate direction,
// 0.6 when it disagrees, and 1.0 when sentiment is neutral or the
// provider has no data.
func SentimentMultiplier(score Score, direction string) float64 {
	if score.Bias == BiasNeutral {
		return 1.0
	}
	agrees := (direction == "long" && score.Bias == BiasBullish) ||
		(direction == "short" && score.Bias == BiasBearish)
	if agrees {
		return 1.3
	}
	return 0.6
}

func (p *Provider) refresh(ctx context.Context) {
	var fgIndex int
	var fgErr error
	if p.cfg.FearGreedEnabled {
		fgIndex, fgErr = p.fetchFearGreedIndex()
		if fgErr != nil {
			p.log.Warn("sentiment: fear/greed fetch failed", "error", fgErr)
			fgIndex = 50
		}
	} else {
		fgIndex = 50
	}

	var newsScore float64
	if p.cfg.NewsEnabled && p.cfg.CryptoPanicAPIKey != "" {
		var err error
		newsScore, err = p.fetchNewsScore()
		if err != nil {
			p.log.Warn("sentiment: news fetch failed", "error", err)
		}
	}

	overall := calculateOverall(fgIndex, newsScore)
	score := Score{
		Value:     overall,
		Bias:      biasFromValue(overall),
		UpdatedAt: time.Now(),
	}

	p.mu.Lock()
	p.lastScore = score
	p.mu.Unlock()

	if p.cacheSvc != nil {
		if err := p.cacheSvc.Set(ctx, cache.SentimentKey(), score, cache.SentimentTTL); err != nil {
			p.log.Warn("sentiment: cache write failed", "error", err)
		}
	}
}

// calculateOverall rescales a [-1,+1] weighted blend (70% fear/greed,
// 30% news) to [-100,+100]. A news score of exactly 0 counts as no news,
// and fear/greed alone is used.
func calculateOverall(fearGreedIndex int, newsScore float64) float64 {
	fgNormalized := (float64(fearGreedIndex) - 50) / 50
	blended := fgNormalized
	if newsScore != 0 {
		blended = fgNormalized*0.7 + newsScore*0.3
	}
	return blended * 100
}

func biasFromValue(v float64) Bias {
	switch {
	case v > 30:
		return BiasBullish
	case v < -30:
		return BiasBearish
	default:
		return BiasNeutral
	}
}

type fearGreedResponse struct {
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
	} `json:"data"`
}

func (p *Provider) fetchFearGreedIndex() (int, error) {
	resp, err := p.httpClient.Get("https://api.alternative.me/fng/?limit=1")
	if err != nil {
		return 50, fmt.Errorf("fear/greed request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 50, fmt.Errorf("fear/greed read: %w", err)
	}

	var parsed fearGreedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 50, fmt.Errorf("fear/greed parse: %w", err)
	}
	if len(parsed.Data) == 0 {
		return 50, fmt.Errorf("fear/greed: empty response")
	}

	var value int
	fmt.Sscanf(parsed.Data[0].Value, "%d", &value)
	return value, nil
}

type cryptoPanicResponse struct {
	Results []struct {
		Votes struct {
			Positive int `json:"positive"`
			Negative int `json:"negative"`
		} `json:"votes"`
	} `json:"results"`
}

func (p *Provider) fetchNewsScore() (float64, error) {
	url := fmt.Sprintf("https://cryptopanic.com/api/v1/posts/?auth_token=%s&currencies=BTC,ETH&filter=hot", p.cfg.CryptoPanicAPIKey)
	resp, err := p.httpClient.Get(url)
	if err != nil {
		return 0, fmt.Errorf("news request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("news read: %w", err)
	}

	var parsed cryptoPanicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("news parse: %w", err)
	}
	if len(parsed.Results) == 0 {
		return 0, nil
	}

	pos, neg := 0, 0
	for _, r := range parsed.Results {
		pos += r.Votes.Positive
		neg += r.Votes.Negative
	}
	total := pos + neg
	if total == 0 {
		return 0, nil
	}
	return (float64(pos) - float64(neg)) / float64(total), nil
}
