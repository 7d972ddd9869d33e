package search

import (
	"context"
	"fmt"

	"github.com/procurewatch/tender-monitor/internal/ai"
	"github.com/procurewatch/tender-monitor/internal/domain"
	"github.com/procurewatch/tender-monitor/internal/notify"
	"github.com/procurewatch/tender-monitor/internal/pkg/logger"
)

// ReportGenerator renders the standalone HTML artifact for a finished search.
type ReportGenerator interface {
	Generate(f *domain.Filter, matches []Match) ([]byte, error)
	Filename(f *domain.Filter) string
}

// ReportSender delivers the report document to the user's chat.
type ReportSender interface {
	DeliverReport(ctx context.Context, chatID int64, filename string, data []byte, caption string) notify.Delivery
}

// ActionLog records the search in the audit trail. Optional.
type ActionLog interface {
	Record(ctx context.Context, userID int64, action string, details map[string]any) error
}

// Service is the user-initiated search entry point: it runs the shared
// pipeline synchronously, renders the HTML report and delivers it to the
// user's chat. Instant searches do not touch the notification history or the
// daily push counter.
type Service struct {
	searcher *Searcher
	reports  ReportGenerator
	sender   ReportSender
	actions  ActionLog
}

// NewService builds the instant-search service. actions may be nil.
func NewService(searcher *Searcher, reports ReportGenerator, sender ReportSender, actions ActionLog) *Service {
	return &Service{searcher: searcher, reports: reports, sender: sender, actions: actions}
}

// RunAndDeliver executes the pipeline for the filter and sends the ranked
// report to the user's chat. Returns the match count. On error no partial
// report is delivered.
func (s *Service) RunAndDeliver(ctx context.Context, user *domain.User, f *domain.Filter) (int, error) {
	matches, err := s.searcher.Run(ctx, f, Options{
		UseAI:  ai.TierHasAIFeatures(user.Tier),
		UserID: user.ID,
		Tier:   user.Tier,
	})
	if err != nil {
		return 0, fmt.Errorf("search failed: %w", err)
	}

	data, err := s.reports.Generate(f, matches)
	if err != nil {
		return 0, fmt.Errorf("build report: %w", err)
	}

	caption := fmt.Sprintf("🔍 Фильтр «%s»: найдено тендеров: %d", f.Name, len(matches))
	d := s.sender.DeliverReport(ctx, user.ExternalID, s.reports.Filename(f), data, caption)
	if d.Result != notify.ResultOK {
		return 0, fmt.Errorf("report delivery (%s): %w", d.Result, d.Err)
	}

	if s.actions != nil {
		details := map[string]any{"filter_id": f.ID, "matches": len(matches)}
		if err := s.actions.Record(ctx, user.ID, "instant_search", details); err != nil {
			logger.Warn("instant search audit record failed",
				"user_id", user.ID, "filter_id", f.ID, "error", err.Error())
		}
	}

	logger.Info("instant search delivered",
		"user_id", user.ID, "filter_id", f.ID, "matches", len(matches))
	return len(matches), nil
}
