package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/worldsim/chronicle/pkg/logger"
)

const defaultTickCron = "0 1 * * *"

// TickSource produces the tick payload for a given day. ok=false means
// the source has nothing for that day and the tick is skipped.
type TickSource interface {
	BuildTick(ctx context.Context, date string) (req TickRequest, ok bool, err error)
}

// TickOutcome reports one scheduled or manual tick.
type TickOutcome struct {
	Date          string     `json:"date"`
	CorrelationID string     `json:"correlation_id"`
	Skipped       bool       `json:"skipped"`
	Result        TickResult `json:"result"`
}

// JobManager runs the daily tick on a cron schedule and supports manual
// triggering. One tick runs at a time.
type JobManager struct {
	pipeline *TickPipeline
	source   TickSource
	cronExpr string

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewJobManager(pipeline *TickPipeline, source TickSource, cronExpr string) (*JobManager, error) {
	if cronExpr == "" {
		cronExpr = defaultTickCron
	}
	if !gronx.New().IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid tick cron %q", cronExpr)
	}
	return &JobManager{
		pipeline: pipeline,
		source:   source,
		cronExpr: cronExpr,
	}, nil
}

// Start launches the scheduler goroutine. Calling Start on a running
// manager is a no-op.
func (m *JobManager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	go m.loop(runCtx)
	logger.InfoCF("jobs", "tick scheduler started", map[string]any{"cron": m.cronExpr})
}

// Stop cancels the scheduler and waits for the loop to exit.
func (m *JobManager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.running = false
	m.mu.Unlock()

	cancel()
	<-done
	logger.InfoCF("jobs", "tick scheduler stopped", nil)
}

func (m *JobManager) loop(ctx context.Context) {
	defer close(m.done)
	for {
		next, err := gronx.NextTickAfter(m.cronExpr, time.Now(), false)
		if err != nil {
			logger.Errorf("tick schedule %q: %v", m.cronExpr, err)
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case now := <-timer.C:
			// The overnight tick records the day that just ended.
			date := now.UTC().AddDate(0, 0, -1).Format("2006-01-02")
			outcome, err := m.TriggerTick(ctx, date)
			if err != nil {
				logger.ErrorCF("jobs", "scheduled tick failed", map[string]any{
					"date":  date,
					"error": err.Error(),
				})
				continue
			}
			logger.InfoCF("jobs", "scheduled tick complete", map[string]any{
				"date":           outcome.Date,
				"correlation_id": outcome.CorrelationID,
				"skipped":        outcome.Skipped,
				"events":         outcome.Result.Events,
				"chunks":         outcome.Result.Chunks,
			})
		}
	}
}

// TriggerTick builds and runs the tick for one day. A source with no
// payload for the day yields a skipped outcome, not an error.
func (m *JobManager) TriggerTick(ctx context.Context, date string) (TickOutcome, error) {
	correlationID := "tick-" + time.Now().UTC().Format("20060102150405")
	req, ok, err := m.source.BuildTick(ctx, date)
	if err != nil {
		return TickOutcome{}, fmt.Errorf("build tick %s: %w", date, err)
	}
	if !ok {
		logger.InfoCF("jobs", "tick skipped, no payload", map[string]any{"date": date})
		return TickOutcome{Date: date, CorrelationID: correlationID, Skipped: true}, nil
	}
	if req.CorrelationID == "" {
		req.CorrelationID = correlationID
	}
	result, err := m.pipeline.Run(ctx, req)
	if err != nil {
		return TickOutcome{}, err
	}
	return TickOutcome{
		Date:          date,
		CorrelationID: req.CorrelationID,
		Result:        result,
	}, nil
}
