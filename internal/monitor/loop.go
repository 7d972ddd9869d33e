// Package monitor runs the periodic polling loop: every interval it fans all
// active filters out to a bounded worker pool, runs the search pipeline per
// filter and delivers matches subject to quotas and idempotency.
package monitor

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/procurewatch/tender-monitor/internal/ai"
	"github.com/procurewatch/tender-monitor/internal/config"
	"github.com/procurewatch/tender-monitor/internal/domain"
	"github.com/procurewatch/tender-monitor/internal/notify"
	"github.com/procurewatch/tender-monitor/internal/pkg/distlock"
	"github.com/procurewatch/tender-monitor/internal/repository/postgres"
	"github.com/procurewatch/tender-monitor/internal/search"
)

const (
	// Matches below this score are not worth a push notification.
	minNotifyScore = 60
	// Per-filter result cap during monitoring; instant search uses its own.
	monitorMaxTenders = 5
	// Consecutive transient delivery failures before the user's processing
	// pauses until the next cycle.
	maxConsecutiveTransient = 3

	defaultPollInterval = 5 * time.Minute
	defaultWorkers      = 4
)

// FilterSource lists the filters the loop processes.
type FilterSource interface {
	ListActiveForMonitoring(ctx context.Context) ([]postgres.ActiveFilter, error)
}

// UserStore is the quota and monitoring-flag side of the user repository.
type UserStore interface {
	HasQuota(ctx context.Context, userID int64, dailyLimit int) (bool, error)
	SetMonitoringEnabled(ctx context.Context, userID int64, enabled bool) error
}

// NotificationStore enforces idempotency and records deliveries.
type NotificationStore interface {
	IsAlreadyNotified(ctx context.Context, userID int64, tenderNumber string) (bool, error)
	RecordDelivered(ctx context.Context, n *domain.Notification) (bool, error)
}

// TenderCacheStore keeps per-tender match statistics. The cache's snapshot
// side (skipping repeat card fetches) is wired into the search pipeline;
// the loop only counts matches. Optional; nil disables tracking.
type TenderCacheStore interface {
	IncrementMatched(ctx context.Context, tenderNumber string) error
}

// Searcher runs the shared search pipeline.
type Searcher interface {
	Run(ctx context.Context, f *domain.Filter, opts search.Options) ([]search.Match, error)
}

// Sender delivers notifications to the chat channel.
type Sender interface {
	DeliverTender(ctx context.Context, chatID int64, n *domain.Notification, sentToday, dailyLimit int, aiResult *notify.AIVerdict) notify.Delivery
	DeliverQuotaNotice(ctx context.Context, chatID int64, tier domain.Tier, dailyLimit int) notify.Delivery
}

// Exporter appends delivered tenders to the spreadsheet. Optional.
type Exporter interface {
	Enabled() bool
	ExportTender(ctx context.Context, n *domain.Notification, redFlags []string, extraction *ai.DocumentExtraction, includeAI bool) error
}

// Enricher produces the structured extraction attached to premium spreadsheet
// rows. Optional.
type Enricher interface {
	Enrich(ctx context.Context, text string, t *domain.Tender, tier domain.Tier) *ai.DocumentExtraction
}

// IntentSource generates the ai_intent description for filters that were
// created before the expander ran, or whose expansion failed. Optional.
type IntentSource interface {
	GenerateIntent(ctx context.Context, filterName string, keywords, excludeKeywords []string) string
}

// IntentStore persists the backfilled intent.
type IntentStore interface {
	SetAIIntent(ctx context.Context, filterID int64, intent string) error
}

// Loop is the monitoring scheduler.
type Loop struct {
	filters  FilterSource
	users    UserStore
	notes    NotificationStore
	tenders  TenderCacheStore
	searcher Searcher
	sender   Sender
	sheets   Exporter
	enricher Enricher

	intents     IntentSource
	intentStore IntentStore

	pollInterval time.Duration
	workers      int
	now          func() time.Time
	lock         distlock.DistLock

	// quotaNotified remembers when the quota-exceeded notice was last sent
	// per user, so the notice goes out once per quota window.
	qmu           sync.Mutex
	quotaNotified map[int64]time.Time

	// pausedUsers holds users skipped for the rest of the current cycle
	// after repeated transient delivery failures.
	pmu         sync.Mutex
	pausedUsers map[int64]struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// New builds the loop. sheets may be nil.
func New(cfg config.PollingConfig, filters FilterSource, users UserStore, notes NotificationStore, tenders TenderCacheStore, searcher Searcher, sender Sender, sheets Exporter) *Loop {
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = defaultPollInterval
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Loop{
		filters:       filters,
		users:         users,
		notes:         notes,
		tenders:       tenders,
		searcher:      searcher,
		sender:        sender,
		sheets:        sheets,
		pollInterval:  interval,
		workers:       workers,
		now:           time.Now,
		quotaNotified: make(map[int64]time.Time),
	}
}

// SetLock installs a distributed lock so only one instance polls the portal
// at a time. Must be called before Start.
func (l *Loop) SetLock(lk distlock.DistLock) {
	l.lock = lk
}

// SetEnricher installs the premium extraction pass used for spreadsheet rows.
// Must be called before Start.
func (l *Loop) SetEnricher(e Enricher) {
	l.enricher = e
}

// SetIntentBackfill installs lazy ai_intent generation for filters missing it.
// Must be called before Start.
func (l *Loop) SetIntentBackfill(gen IntentSource, store IntentStore) {
	l.intents = gen
	l.intentStore = store
}

// Start launches the polling goroutine.
func (l *Loop) Start() error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return errors.New("monitoring loop already running")
	}
	l.running = true
	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.mu.Unlock()

	log.Printf("[Monitor] starting, poll interval %v, %d workers", l.pollInterval, l.workers)
	l.wg.Add(1)
	go l.run()
	return nil
}

// Stop cancels the loop and waits for the in-flight cycle.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.mu.Unlock()

	log.Printf("[Monitor] stopping")
	l.cancel()
	l.wg.Wait()
	log.Printf("[Monitor] stopped")
}

func (l *Loop) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.RunCycle(l.ctx)
		}
	}
}

// RunCycle processes every active filter once. Exported so the serve command
// can trigger an immediate cycle on startup.
func (l *Loop) RunCycle(ctx context.Context) {
	start := l.now()

	if l.lock != nil {
		ok, err := l.lock.Acquire(ctx)
		if err != nil {
			log.Printf("[Monitor] acquire poll lock: %v", err)
			return
		}
		if !ok {
			log.Printf("[Monitor] another instance holds the poll lock, skipping cycle")
			return
		}
		defer func() {
			if err := l.lock.Release(ctx); err != nil {
				log.Printf("[Monitor] release poll lock: %v", err)
			}
		}()
	}

	active, err := l.filters.ListActiveForMonitoring(ctx)
	if err != nil {
		log.Printf("[Monitor] list active filters: %v", err)
		return
	}
	if len(active) == 0 {
		return
	}

	l.pmu.Lock()
	l.pausedUsers = make(map[int64]struct{})
	l.pmu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for _, af := range active {
		af := af
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[Monitor] panic in filter %d: %v", af.Filter.ID, r)
				}
			}()
			l.processFilter(gctx, af)
			return nil
		})
	}
	g.Wait()

	log.Printf("[Monitor] cycle done: %d filters in %v", len(active), l.now().Sub(start))
}

func (l *Loop) processFilter(ctx context.Context, af postgres.ActiveFilter) {
	user := af.User
	if !user.MonitoringEnabled || l.isPaused(user.ID) {
		return
	}

	useAI := ai.TierHasAIFeatures(user.Tier)
	if useAI && af.Filter.AIIntent == "" && l.intents != nil {
		l.backfillIntent(ctx, &af.Filter)
	}
	matches, err := l.searcher.Run(ctx, &af.Filter, search.Options{
		MaxTenders: monitorMaxTenders,
		UseAI:      useAI,
		UserID:     user.ID,
		Tier:       user.Tier,
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmptyKeywords) {
			log.Printf("[Monitor] CONTRACT VIOLATION: filter %d (user %d) has no keywords, skipping", af.Filter.ID, user.ID)
			return
		}
		log.Printf("[Monitor] search for filter %d: %v", af.Filter.ID, err)
		return
	}

	limits := domain.LimitsFor(user.Tier)
	now := l.now()
	sentSoFar := user.EffectiveSentToday(now)
	consecutiveTransient := 0

	// Matches arrive score-descending; quota exhaustion mid-list still
	// delivered the best items first.
	for _, m := range matches {
		if m.Result.Score < minNotifyScore {
			continue
		}
		l.trackTender(ctx, &m.Tender)

		already, err := l.notes.IsAlreadyNotified(ctx, user.ID, m.Tender.Number)
		if err != nil {
			log.Printf("[Monitor] dedupe check for tender %s: %v", m.Tender.Number, err)
			continue
		}
		if already {
			continue
		}

		ok, err := l.users.HasQuota(ctx, user.ID, limits.DailyNotifications)
		if err != nil {
			log.Printf("[Monitor] quota check for user %d: %v", user.ID, err)
			return
		}
		if !ok {
			l.notifyQuotaExceeded(ctx, &user, limits.DailyNotifications)
			return
		}

		n := buildNotification(&af.Filter, &m)
		delivery := l.sender.DeliverTender(ctx, user.ExternalID, n, sentSoFar+1, limits.DailyNotifications, aiVerdictFor(&m))

		switch delivery.Result {
		case notify.ResultOK:
			consecutiveTransient = 0
			n.ExternalMessageID = delivery.MessageID
			inserted, err := l.notes.RecordDelivered(ctx, n)
			if err != nil {
				log.Printf("[Monitor] record delivery of %s: %v", m.Tender.Number, err)
				continue
			}
			if !inserted {
				// A concurrent cycle won the race; the counter stays put.
				continue
			}
			sentSoFar++
			l.exportDelivered(ctx, n, &m, user.Tier, useAI)

		case notify.ResultUserBlocked:
			log.Printf("[Monitor] user %d blocked the bot, disabling monitoring", user.ID)
			if err := l.users.SetMonitoringEnabled(ctx, user.ID, false); err != nil {
				log.Printf("[Monitor] disable monitoring for user %d: %v", user.ID, err)
			}
			return

		case notify.ResultBadRecipient:
			log.Printf("[Monitor] bad recipient for user %d (chat %d): %v", user.ID, user.ExternalID, delivery.Err)
			return

		case notify.ResultTransient, notify.ResultRateLimited:
			consecutiveTransient++
			log.Printf("[Monitor] delivery of %s to user %d failed (%s, %d consecutive): %v",
				m.Tender.Number, user.ID, delivery.Result, consecutiveTransient, delivery.Err)
			if consecutiveTransient >= maxConsecutiveTransient {
				l.pauseUser(user.ID)
				return
			}
		}
	}
}

// backfillIntent generates and persists ai_intent for filters that predate
// the query expander. Best effort.
func (l *Loop) backfillIntent(ctx context.Context, f *domain.Filter) {
	intent := l.intents.GenerateIntent(ctx, f.Name, f.Keywords, f.ExcludeKeywords)
	if intent == "" {
		return
	}
	f.AIIntent = intent
	if l.intentStore == nil {
		return
	}
	if err := l.intentStore.SetAIIntent(ctx, f.ID, intent); err != nil {
		log.Printf("[Monitor] persist intent for filter %d: %v", f.ID, err)
	}
}

// trackTender bumps the per-tender match counter. Best effort; the snapshot
// itself was cached by the search pipeline during enrichment.
func (l *Loop) trackTender(ctx context.Context, t *domain.Tender) {
	if l.tenders == nil {
		return
	}
	if err := l.tenders.IncrementMatched(ctx, t.Number); err != nil {
		log.Printf("[Monitor] tender cache increment %s: %v", t.Number, err)
	}
}

// notifyQuotaExceeded sends the quota notice at most once per quota window.
func (l *Loop) notifyQuotaExceeded(ctx context.Context, user *domain.User, dailyLimit int) {
	l.qmu.Lock()
	last, seen := l.quotaNotified[user.ID]
	now := l.now()
	if seen && now.Sub(last) < 24*time.Hour {
		l.qmu.Unlock()
		return
	}
	l.quotaNotified[user.ID] = now
	l.qmu.Unlock()

	log.Printf("[Monitor] user %d hit the daily notification quota (%d)", user.ID, dailyLimit)
	d := l.sender.DeliverQuotaNotice(ctx, user.ExternalID, user.Tier, dailyLimit)
	if d.Result != notify.ResultOK {
		log.Printf("[Monitor] quota notice for user %d: %s: %v", user.ID, d.Result, d.Err)
	}
}

func (l *Loop) exportDelivered(ctx context.Context, n *domain.Notification, m *search.Match, tier domain.Tier, includeAI bool) {
	if l.sheets == nil || !l.sheets.Enabled() {
		return
	}

	redFlags := m.Result.RedFlags
	var extraction *ai.DocumentExtraction
	if includeAI && l.enricher != nil {
		text := m.Tender.Name + "\n" + m.Tender.Description
		extraction = l.enricher.Enrich(ctx, text, &m.Tender, tier)
		redFlags = append(append([]string(nil), redFlags...), extraction.RedFlags...)
	}

	if err := l.sheets.ExportTender(ctx, n, redFlags, extraction, includeAI); err != nil {
		log.Printf("[Monitor] sheet export of %s: %v", n.TenderNumber, err)
	}
}

func (l *Loop) isPaused(userID int64) bool {
	l.pmu.Lock()
	defer l.pmu.Unlock()
	_, paused := l.pausedUsers[userID]
	return paused
}

func (l *Loop) pauseUser(userID int64) {
	l.pmu.Lock()
	defer l.pmu.Unlock()
	if l.pausedUsers == nil {
		l.pausedUsers = make(map[int64]struct{})
	}
	l.pausedUsers[userID] = struct{}{}
	log.Printf("[Monitor] pausing user %d until the next cycle", userID)
}

func buildNotification(f *domain.Filter, m *search.Match) *domain.Notification {
	t := m.Tender
	return &domain.Notification{
		UserID:             f.UserID,
		FilterID:           f.ID,
		FilterName:         f.Name,
		TenderNumber:       t.Number,
		TenderName:         t.Name,
		TenderPrice:        t.Price,
		TenderURL:          t.URL,
		TenderRegion:       t.CustomerRegion,
		TenderCustomer:     t.CustomerName,
		Score:              m.Result.Score,
		MatchedKeywords:    m.Result.MatchedKeywords,
		RedFlags:           m.Result.RedFlags,
		PublishedDate:      t.PublishedDate,
		SubmissionDeadline: t.SubmissionDeadline,
		Source:             domain.SourceAutoMonitoring,
	}
}

func aiVerdictFor(m *search.Match) *notify.AIVerdict {
	if m.AI == nil || m.AI.Source != ai.SourceAI && m.AI.Source != ai.SourceCache {
		return nil
	}
	return &notify.AIVerdict{Confidence: m.AI.Confidence, Reason: m.AI.Reason}
}

// Status is a snapshot for the health endpoint.
type Status struct {
	Running      bool          `json:"running"`
	PollInterval time.Duration `json:"poll_interval"`
	Workers      int           `json:"workers"`
}

func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{Running: l.running, PollInterval: l.pollInterval, Workers: l.workers}
}
