// Package portal implements the zakupki.gov.ru client: parameterized RSS
// search queries and tender-card enrichment. The portal's RSS result set is
// non-exhaustive (a found item may not contain the searched keyword in its
// title), so downstream stages re-verify keyword presence themselves.
package portal

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/semaphore"

	"github.com/procurewatch/tender-monitor/internal/config"
	"github.com/procurewatch/tender-monitor/internal/domain"
	"github.com/procurewatch/tender-monitor/internal/pkg/httpretry"
)

const (
	rssPath    = "/epz/order/extendedsearch/rss.html"
	userAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptLang = "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7"
)

// placingWayCodes maps purchase-method labels to the portal's placingWayList codes.
var placingWayCodes = map[string]string{
	"auction":   "EA44",
	"tender":    "OK44",
	"quotation": "ZK44",
	"request":   "ZP44",
}

// SearchQuery is one RSS query: a filter projected onto a single keyword
// variant. At most one tender type is sent to the portal per call.
type SearchQuery struct {
	Keyword        string
	PriceMin       *float64
	PriceMax       *float64
	Regions        []string
	MaxResults     int
	TenderType     domain.TenderType
	LawType        domain.LawType
	Stage          domain.PurchaseStage
	PurchaseMethod string
	DateFrom       time.Time
	DateTo         time.Time
}

// Client talks to zakupki.gov.ru. It serializes request pacing (the portal
// bans callers that exceed roughly one request per two seconds) and caps
// in-flight requests across all goroutines.
type Client struct {
	baseURL string
	http    httpretry.HTTPDoer
	ping    *http.Client
	parser  *gofeed.Parser
	sem     *semaphore.Weighted

	mu          sync.Mutex
	lastRequest time.Time
	minGap      time.Duration
}

// NewClient builds a portal client from config. The proxy URL, when set,
// is applied to the underlying transport; TLS verification can be disabled
// for proxies that re-terminate TLS.
func NewClient(cfg config.PortalConfig) (*Client, error) {
	transport := &http.Transport{
		MaxIdleConnsPerHost: cfg.MaxConcurrent,
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpretry.NewRetryClient(httpClient, 3).WithBaseDelay(2 * time.Second),
		ping:    httpClient,
		parser:  gofeed.NewParser(),
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		minGap:  time.Duration(cfg.MinRequestGapMS) * time.Millisecond,
	}, nil
}

// Ping checks portal reachability for health probes. It skips the retry
// wrapper and the pacing gap so probes stay cheap; any HTTP answer counts
// as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.ping.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// SearchRSS issues one RSS query and returns parsed tenders, newest first as
// the portal orders them. Goods-type filtering happens client-side because
// the portal misclassifies goods; the call over-fetches to compensate.
func (c *Client) SearchRSS(ctx context.Context, q SearchQuery) ([]domain.Tender, error) {
	maxResults := q.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}

	body, err := c.fetch(ctx, c.baseURL+rssPath+"?"+c.buildQuery(q).Encode())
	if err != nil {
		return nil, err
	}

	feed, err := c.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	// Over-fetch budget for client-side type filtering.
	limit := maxResults
	switch q.TenderType {
	case domain.TenderGoods:
		limit = maxResults * 5
	case domain.TenderServices, domain.TenderWorks:
		limit = maxResults * 3
	}
	if limit > len(feed.Items) {
		limit = len(feed.Items)
	}

	tenders := make([]domain.Tender, 0, maxResults)
	for _, item := range feed.Items[:limit] {
		tender, ok := parseItem(item)
		if !ok {
			continue
		}
		if q.TenderType != "" && !matchesType(&tender, q.TenderType) {
			continue
		}
		tenders = append(tenders, tender)
		if len(tenders) >= maxResults {
			break
		}
	}
	return tenders, nil
}

func (c *Client) buildQuery(q SearchQuery) url.Values {
	params := url.Values{}
	params.Set("morphology", "on")
	params.Set("search-filter", "Дате размещения")
	params.Set("sortDirection", "false")
	params.Set("sortBy", "UPDATE_DATE")
	params.Set("currencyIdGeneral", "-1")

	switch q.LawType {
	case domain.Law44FZ:
		params.Set("fz44", "on")
	case domain.Law223FZ:
		params.Set("fz223", "on")
	default:
		params.Set("fz44", "on")
		params.Set("fz223", "on")
	}

	switch q.Stage {
	case domain.StageSubmission:
		params.Set("af", "on")
		params.Set("ca", "on")
	case domain.StageArchive:
		params.Set("af", "on")
		params.Set("pc", "on")
		params.Set("fz44Completed", "on")
		params.Set("fz223Completed", "on")
	default:
		params.Set("af", "on")
	}

	if code, ok := placingWayCodes[q.PurchaseMethod]; ok {
		params.Set("placingWayList", code)
	}
	if !q.DateFrom.IsZero() {
		params.Set("publishDateFrom", q.DateFrom.Format("2006-01-02"))
	}
	if !q.DateTo.IsZero() {
		params.Set("publishDateTo", q.DateTo.Format("2006-01-02"))
	}
	if q.Keyword != "" {
		params.Set("searchString", q.Keyword)
	}
	if codes := ResolveRegionCodes(q.Regions); len(codes) > 0 {
		params.Set("selectedSubjectsIdNameHidden", strings.Join(codes, ","))
	}
	// Filters may carry OKPD2 codes, but they are deliberately not sent as
	// okpd2IdsCodes: the portal's code filter silently drops notices whose
	// classification is missing or coarse, so code-based narrowing stays on
	// the client side.
	if q.PriceMin != nil {
		params.Set("priceFromGeneral", strconv.FormatFloat(*q.PriceMin, 'f', 0, 64))
	}
	if q.PriceMax != nil {
		params.Set("priceToGeneral", strconv.FormatFloat(*q.PriceMax, 'f', 0, 64))
	}

	// The portal-side type filter is reliable only for works and services.
	// Goods are frequently misclassified, so goods filtering is client-side.
	switch q.TenderType {
	case domain.TenderWorks:
		params.Set("purchaseObjectTypeCode", "2")
	case domain.TenderServices:
		params.Set("purchaseObjectTypeCode", "3")
	}

	return params
}

// fetch performs a paced, concurrency-capped GET and returns the body.
func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer c.sem.Release(1)

	if err := c.waitForGap(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", acceptLang)

	resp, err := c.http.Do(req)
	if err != nil {
		if isConnReset(err) {
			return nil, fmt.Errorf("%w: %v", ErrQuota, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", ErrQuota, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrNetwork, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return body, nil
}

// waitForGap enforces the minimum delay between portal requests globally.
func (c *Client) waitForGap(ctx context.Context) error {
	c.mu.Lock()
	now := time.Now()
	wait := c.minGap - now.Sub(c.lastRequest)
	if wait < 0 {
		wait = 0
	}
	c.lastRequest = now.Add(wait)
	c.mu.Unlock()

	if wait == 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isConnReset(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe")
}

// matchesType applies the client-side tender-type gate. The portal's own
// classification is unreliable, so the gate is heuristic over titles.
func matchesType(t *domain.Tender, want domain.TenderType) bool {
	nameLower := strings.ToLower(t.Name)
	fullText := nameLower + " " + strings.ToLower(t.Description)

	switch want {
	case domain.TenderGoods:
		// A goods-style opening wins even when the body mentions works.
		for _, ind := range goodsStartIndicators {
			if strings.HasPrefix(nameLower, ind) {
				return true
			}
		}
		for _, ind := range serviceWorkIndicators {
			if strings.Contains(nameLower, ind) {
				log.Printf("[Portal] filtered non-goods tender %s (%q)", t.Number, ind)
				return false
			}
		}
		return true
	case domain.TenderServices:
		for _, ind := range append(goodsIndicators, workIndicators...) {
			if strings.Contains(fullText, ind) {
				return false
			}
		}
		return true
	case domain.TenderWorks:
		for _, ind := range append(goodsIndicators, serviceIndicators...) {
			if strings.Contains(fullText, ind) {
				return false
			}
		}
		return true
	}
	return true
}

var goodsStartIndicators = []string{
	"поставка", "закупка", "приобретение", "купля", "покупка", "снабжение",
}

var serviceWorkIndicators = []string{
	"оказание услуг", "выполнение работ", "проведение работ",
	"оказание услуги", "выполнение услуг",
	"услуги по", "работы по",
	"медицинские услуги", "медицинская помощь",
	"консультирование", "проектирование",
	"техническое обслуживание", "техобслуживание",
	"сервисное обслуживание",
}

var goodsIndicators = []string{
	"поставка товар", "закупка товар", "приобретение товар",
	"поставка оборудования", "закупка оборудования",
	"поставка материал", "закупка материал",
}

var workIndicators = []string{
	"выполнение работ", "строительные работы", "ремонт",
	"строительство", "реконструкция",
}

var serviceIndicators = []string{
	"оказание услуг", "медицинские услуги", "консультирование",
	"услуги по", "сопровождение",
}
