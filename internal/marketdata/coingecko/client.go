// Package coingecko fetches historical prices and fundamentals from the
// CoinGecko public REST API.
package coingecko

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/marketdata"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
)

// DefaultBaseURL is the public v3 endpoint.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// Config holds client settings.
type Config struct {
	BaseURL string
	CoinID  string // e.g. "ripple"

	// RequestsPerMinute caps outgoing calls (0 = unlimited).
	RequestsPerMinute int
	Timeout           time.Duration
}

// Client implements marketdata.HistoryFetcher and marketdata.FundamentalsFetcher.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a CoinGecko client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.CoinID == "" {
		cfg.CoinID = "ripple"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

// FetchSeries loads the market chart for the last days. Ranges longer than a
// day are requested hourly, a single day minutely.
func (c *Client) FetchSeries(ctx context.Context, days int, vsCurrency string) (model.Series, error) {
	if days <= 0 {
		days = 1
	}
	interval := "minutely"
	if days > 1 {
		interval = "hourly"
	}

	q := url.Values{}
	q.Set("vs_currency", strings.ToLower(vsCurrency))
	q.Set("days", fmt.Sprint(days))
	q.Set("interval", interval)
	endpoint := fmt.Sprintf("%s/coins/%s/market_chart?%s", c.cfg.BaseURL, url.PathEscape(c.cfg.CoinID), q.Encode())

	body, err := c.get(ctx, "market", endpoint)
	if err != nil {
		return nil, err
	}

	prices := gjson.GetBytes(body, "prices")
	if !prices.IsArray() {
		return nil, &marketdata.FetchError{Source: "market", Err: fmt.Errorf("response has no prices array")}
	}

	var s model.Series
	prices.ForEach(func(_, pair gjson.Result) bool {
		ts := pair.Get("0")
		px := pair.Get("1")
		if !ts.Exists() || px.Type != gjson.Number {
			return true
		}
		s = append(s, model.PricePoint{
			Time:  time.UnixMilli(ts.Int()).UTC(),
			Close: px.Float(),
		})
		return true
	})

	clean := s.Sanitize()
	if dropped := len(s) - len(clean); dropped > 0 {
		log.Printf("[coingecko] dropped %d non-finite points", dropped)
	}
	return clean, nil
}

// FetchFundamentals loads the coin overview with market data in vsCurrency.
func (c *Client) FetchFundamentals(ctx context.Context, vsCurrency string) (marketdata.Fundamentals, error) {
	q := url.Values{}
	q.Set("localization", "false")
	q.Set("tickers", "false")
	q.Set("market_data", "true")
	q.Set("community_data", "false")
	q.Set("developer_data", "false")
	q.Set("sparkline", "false")
	endpoint := fmt.Sprintf("%s/coins/%s?%s", c.cfg.BaseURL, url.PathEscape(c.cfg.CoinID), q.Encode())

	body, err := c.get(ctx, "fundamentals", endpoint)
	if err != nil {
		return marketdata.Fundamentals{}, err
	}

	vs := strings.ToLower(vsCurrency)
	j := gjson.ParseBytes(body)
	md := j.Get("market_data")
	return marketdata.Fundamentals{
		Name:           j.Get("name").String(),
		Symbol:         strings.ToUpper(j.Get("symbol").String()),
		Currency:       vs,
		Price:          md.Get("current_price." + vs).Float(),
		MarketCap:      md.Get("market_cap." + vs).Float(),
		Volume24h:      md.Get("total_volume." + vs).Float(),
		PriceChange24h: md.Get("price_change_percentage_24h").Float(),
		Circulating:    md.Get("circulating_supply").Float(),
		TotalSupply:    md.Get("total_supply").Float(),
	}, nil
}

func (c *Client) get(ctx context.Context, source, endpoint string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &marketdata.FetchError{Source: source, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &marketdata.FetchError{Source: source, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &marketdata.FetchError{Source: source, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &marketdata.FetchError{Source: source, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &marketdata.FetchError{Source: source, Err: err}
	}
	if !gjson.ValidBytes(body) {
		return nil, &marketdata.FetchError{Source: source, Err: fmt.Errorf("invalid JSON body")}
	}
	return body, nil
}
