package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	catalogapp "github.com/teuchmannluca/storefront-scanner/business/catalog/app"
	catalogdomain "github.com/teuchmannluca/storefront-scanner/business/catalog/domain"
	pricingapp "github.com/teuchmannluca/storefront-scanner/business/pricing/app"
	pricingdomain "github.com/teuchmannluca/storefront-scanner/business/pricing/domain"
	"github.com/teuchmannluca/storefront-scanner/business/scan/domain"
	"github.com/teuchmannluca/storefront-scanner/internal/apperror"
	"github.com/teuchmannluca/storefront-scanner/internal/logger"
	"github.com/teuchmannluca/storefront-scanner/internal/metrics"
	"github.com/teuchmannluca/storefront-scanner/internal/ratelimit"
)

// OrchestratorConfig bounds the batch pipeline.
type OrchestratorConfig struct {
	// BatchSize is the pricing endpoint's items-per-call limit.
	BatchSize int
	// ForeignMarketplaces fixes the call order after the home
	// marketplace.
	ForeignMarketplaces []string
	// EventBuffer sizes each scan's progress channel.
	EventBuffer int
}

// Orchestrator drives scan sessions through the batch pipeline:
// catalog load, deduplication, sequential per-marketplace pricing,
// per-unit fee estimation, profit evaluation, and persist-then-emit of
// every opportunity. One goroutine drives one scan.
type Orchestrator struct {
	catalog  CatalogStore
	store    ResultStore
	pricing  pricingapp.PricingProvider
	fees     pricingapp.FeeProvider
	caller   *pricingapp.Caller
	gate     *ratelimit.Gate
	dedup    *catalogapp.Deduplicator
	calc     *Calculator
	homeCode string
	config   OrchestratorConfig
	logger   logger.LoggerInterface

	mu     sync.Mutex
	active map[string]*runningScan

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

type runningScan struct {
	session *domain.Session
	emitter *Emitter
	cancel  context.CancelFunc
}

// NewOrchestrator wires the scan pipeline.
func NewOrchestrator(
	catalog CatalogStore,
	store ResultStore,
	pricing pricingapp.PricingProvider,
	fees pricingapp.FeeProvider,
	caller *pricingapp.Caller,
	gate *ratelimit.Gate,
	dedup *catalogapp.Deduplicator,
	calc *Calculator,
	homeCode string,
	cfg OrchestratorConfig,
	log logger.LoggerInterface,
) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	return &Orchestrator{
		catalog:  catalog,
		store:    store,
		pricing:  pricing,
		fees:     fees,
		caller:   caller,
		gate:     gate,
		dedup:    dedup,
		calc:     calc,
		homeCode: homeCode,
		config:   cfg,
		logger:   log,
		active:   make(map[string]*runningScan),
		sleep:    sleepScan,
	}
}

func sleepScan(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StartScan creates a session owned by the verified user, persists it,
// and launches the pipeline in its own goroutine. The returned emitter
// is the scan's event stream. The scan outlives the caller's request
// context; it stops on Cancel or on its own terminal state.
func (o *Orchestrator) StartScan(ctx context.Context, owner string, scope Scope) (string, *Emitter, error) {
	scanID := uuid.NewString()
	session := domain.NewSession(scanID, owner, scope.String())

	if err := o.store.CreateSession(ctx, session.Snapshot()); err != nil {
		return "", nil, apperror.Persistence("create session", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	emitter := NewEmitter(scanID, o.config.EventBuffer, o.logger)
	rs := &runningScan{session: session, emitter: emitter, cancel: cancel}

	o.mu.Lock()
	o.active[scanID] = rs
	o.mu.Unlock()

	metrics.ScansStarted.Inc()
	go o.run(runCtx, rs, scope)

	return scanID, emitter, nil
}

// Cancel requests a stop for a running scan. In-flight provider calls
// finish; no further calls are issued.
func (o *Orchestrator) Cancel(scanID string) error {
	o.mu.Lock()
	rs, ok := o.active[scanID]
	o.mu.Unlock()
	if !ok {
		return apperror.NotFound(apperror.CodeScanNotFound, scanID)
	}
	rs.cancel()
	return nil
}

// Stream attaches a new consumer to a running scan's event stream.
// Finished or unknown scans have no live stream; consumers reconnecting
// after the end use the snapshot instead.
func (o *Orchestrator) Stream(scanID string) (<-chan ProgressEvent, error) {
	o.mu.Lock()
	rs, ok := o.active[scanID]
	o.mu.Unlock()
	if !ok {
		return nil, apperror.NotFound(apperror.CodeScanNotFound, scanID)
	}
	return rs.emitter.Attach(o.config.EventBuffer), nil
}

// Status returns the current session snapshot, live or persisted.
func (o *Orchestrator) Status(ctx context.Context, scanID string) (*domain.SessionSnapshot, error) {
	o.mu.Lock()
	rs, ok := o.active[scanID]
	o.mu.Unlock()
	if ok {
		snap := rs.session.Snapshot()
		return &snap, nil
	}
	snap, err := o.store.GetSession(ctx, scanID)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Opportunities returns the opportunities persisted so far for a scan.
func (o *Orchestrator) Opportunities(ctx context.Context, scanID string) ([]*domain.Opportunity, error) {
	return o.store.ListOpportunities(ctx, scanID)
}

// run drives one scan from loading to a terminal state.
func (o *Orchestrator) run(ctx context.Context, rs *runningScan, scope Scope) {
	started := time.Now()
	session, emitter := rs.session, rs.emitter
	defer func() {
		o.mu.Lock()
		delete(o.active, session.ID)
		o.mu.Unlock()
		rs.cancel()
	}()

	emitter.Emit(ctx, ProgressEvent{
		Type:    EventStarted,
		Message: "loading catalog",
	})

	rows, err := o.catalog.LoadRows(ctx, session.Owner, scope)
	if err != nil {
		o.finishFailed(ctx, rs, apperror.Wrap(err, apperror.CodeCatalogLoadFailed, scope.String()))
		return
	}
	units := o.dedup.Dedupe(ctx, rows)
	if len(units) == 0 {
		o.finishFailed(ctx, rs, apperror.New(apperror.CodeNoViableInput,
			apperror.WithContext(scope.String())))
		return
	}

	session.SetTotalUnits(len(units))
	if err := o.store.UpdateSession(ctx, session.Snapshot()); err != nil {
		o.finishFailed(ctx, rs, apperror.Persistence("record unit count", err))
		return
	}

	o.logger.Info(ctx, "scan started",
		"scan_id", session.ID,
		"owner", session.Owner,
		"scope", scope.String(),
		"rows", len(rows),
		"units", len(units))

	total := len(units)
	batches := (total + o.config.BatchSize - 1) / o.config.BatchSize
	for start := 0; start < total; start += o.config.BatchSize {
		if ctx.Err() != nil {
			o.finishCancelled(rs)
			return
		}
		end := start + o.config.BatchSize
		if end > total {
			end = total
		}
		batch := units[start:end]

		emitter.Emit(ctx, ProgressEvent{
			Type:      EventProgress,
			Percent:   Percent(start, total),
			Processed: start,
			Total:     total,
			Message:   fmt.Sprintf("batch %d of %d", start/o.config.BatchSize+1, batches),
		})

		fatal, cancelled := o.runBatch(ctx, rs, batch, total)
		if cancelled {
			o.finishCancelled(rs)
			return
		}
		if fatal != nil {
			o.finishFailed(ctx, rs, fatal)
			return
		}
	}

	if err := session.Complete(); err != nil {
		o.logger.Error(ctx, "completing already-terminal session", "scan_id", session.ID, "error", err)
	}
	if err := o.store.UpdateSession(context.WithoutCancel(ctx), session.Snapshot()); err != nil {
		o.logger.Error(ctx, "persisting completed session", "scan_id", session.ID, "error", err)
	}
	snap := session.Snapshot()
	emitter.Emit(ctx, ProgressEvent{
		Type:      EventFinished,
		Status:    domain.StatusCompleted,
		Percent:   100,
		Processed: snap.ProcessedUnits,
		Total:     snap.TotalUnits,
		Message: fmt.Sprintf("scan complete: %d units, %d opportunities",
			snap.ProcessedUnits, snap.Opportunities),
	})
	metrics.ScansFinished.WithLabelValues(string(domain.StatusCompleted)).Inc()
	metrics.ScanDuration.Observe(time.Since(started).Seconds())
	o.logger.Info(ctx, "scan complete",
		"scan_id", session.ID,
		"processed", snap.ProcessedUnits,
		"opportunities", snap.Opportunities,
		"duration", time.Since(started).String())
}

// runBatch processes one batch: sequential pricing calls per
// marketplace, then fee and profit per unit. It returns a fatal error
// for scan-scoped failures and a flag when cancellation was observed.
func (o *Orchestrator) runBatch(ctx context.Context, rs *runningScan, batch []*catalogdomain.ProductUnit, total int) (fatal error, cancelled bool) {
	session, emitter := rs.session, rs.emitter
	batchStart := time.Now()

	asins := make([]string, len(batch))
	for i, u := range batch {
		asins[i] = u.ASIN
	}

	// Marketplace calls are strictly sequential, home first. The
	// pricing quota tolerates no burst, so fan-out is forbidden even
	// though the gate would space same-class calls.
	pricingCalls := 0
	responses := make(map[string][]pricingdomain.PriceObservation)
	for _, code := range o.marketplaceOrder() {
		if ctx.Err() != nil {
			return nil, true
		}
		var obs []pricingdomain.PriceObservation
		err := o.caller.Call(ctx, ratelimit.ClassPricing, func(ctx context.Context) error {
			var callErr error
			obs, callErr = o.pricing.GetCompetitivePricing(ctx, asins, code)
			return callErr
		})
		pricingCalls++
		if err != nil {
			if ctx.Err() != nil {
				return nil, true
			}
			// One marketplace's outage degrades to "no data" for the
			// batch; the others proceed.
			responses[code] = nil
			o.logger.Warn(ctx, "marketplace degraded for batch",
				"scan_id", session.ID, "marketplace", code, "error", err)
			emitter.Emit(ctx, ProgressEvent{
				Type:        EventDegraded,
				Marketplace: code,
				Message:     "no pricing data for this batch",
			})
			continue
		}
		responses[code] = obs
	}

	priceMaps := pricingapp.Aggregate(asins, responses)

	feeCalls := 0
	for _, unit := range batch {
		if ctx.Err() != nil {
			return nil, true
		}

		opp, skip, err := o.evaluateUnit(ctx, session.ID, unit, priceMaps[unit.ASIN], &feeCalls)
		if err != nil {
			return err, false
		}
		if skip != "" {
			emitter.Emit(ctx, ProgressEvent{
				Type:    EventUnitSkipped,
				ASIN:    unit.ASIN,
				Message: skip,
			})
		}

		if opp != nil {
			if err := session.AddOpportunity(); err != nil {
				return err, false
			}
			if err := o.store.SaveOpportunity(ctx, opp); err != nil {
				return apperror.Persistence("save opportunity", err), false
			}
			metrics.OpportunitiesFound.Inc()
			emitter.Emit(ctx, ProgressEvent{
				Type:        EventOpportunity,
				Opportunity: opp,
				ASIN:        unit.ASIN,
			})
		}

		processed := session.MarkProcessed()
		emitter.Emit(ctx, ProgressEvent{
			Type:      EventProgress,
			Percent:   Percent(processed, total),
			Processed: processed,
			Total:     total,
		})
	}

	o.paceBatch(ctx, time.Since(batchStart), pricingCalls, feeCalls)
	return nil, false
}

// evaluateUnit runs the fee and profit step for one unit. A unit-level
// provider or evaluation failure is reported as a skip reason, never as
// a fatal error; only persistence problems escalate.
func (o *Orchestrator) evaluateUnit(ctx context.Context, scanID string, unit *catalogdomain.ProductUnit, prices pricingdomain.MarketplacePriceMap, feeCalls *int) (*domain.Opportunity, string, error) {
	if prices == nil {
		prices = pricingdomain.MarketplacePriceMap{}
	}
	homeObs, hasHome := prices[o.homeCode]
	if !hasHome || !homeObs.Amount.IsPositive() {
		// No home sale price means nothing to evaluate; not a failure.
		return nil, "", nil
	}

	var estimate *pricingdomain.FeeEstimate
	err := o.caller.Call(ctx, ratelimit.ClassFees, func(ctx context.Context) error {
		var callErr error
		estimate, callErr = o.fees.GetFeeEstimate(ctx, unit.ASIN, homeObs.Amount, o.homeCode)
		return callErr
	})
	*feeCalls++
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", nil
		}
		o.logger.Warn(ctx, "fee estimate failed, skipping unit",
			"scan_id", scanID, "asin", unit.ASIN, "error", err)
		return nil, "fee estimate failed", nil
	}

	opp, err := o.calc.Evaluate(scanID, unit, prices, estimate)
	if err != nil {
		o.logger.Warn(ctx, "profit evaluation failed, skipping unit",
			"scan_id", scanID, "asin", unit.ASIN, "error", err)
		return nil, "profit evaluation failed", nil
	}
	return opp, "", nil
}

// paceBatch sleeps out the remainder of the quota-implied minimum
// duration for the batch's call volume. The per-call gate spaces
// individual calls; this guards the batch envelope against scheduling
// jitter.
func (o *Orchestrator) paceBatch(ctx context.Context, elapsed time.Duration, pricingCalls, feeCalls int) {
	minDuration := time.Duration(pricingCalls)*o.gate.MinInterval(ratelimit.ClassPricing) +
		time.Duration(feeCalls)*o.gate.MinInterval(ratelimit.ClassFees)
	if elapsed >= minDuration {
		return
	}
	pause := minDuration - elapsed
	metrics.BatchPacingSleep.Observe(pause.Seconds())
	o.logger.Debug(ctx, "pacing before next batch", "sleep", pause.String())
	_ = o.sleep(ctx, pause)
}

func (o *Orchestrator) marketplaceOrder() []string {
	order := make([]string, 0, len(o.config.ForeignMarketplaces)+1)
	order = append(order, o.homeCode)
	return append(order, o.config.ForeignMarketplaces...)
}

func (o *Orchestrator) finishCancelled(rs *runningScan) {
	session, emitter := rs.session, rs.emitter
	ctx := context.WithoutCancel(context.Background())
	if err := session.Cancel(); err != nil {
		return
	}
	if err := o.store.UpdateSession(ctx, session.Snapshot()); err != nil {
		o.logger.Error(ctx, "persisting cancelled session", "scan_id", session.ID, "error", err)
	}
	snap := session.Snapshot()
	emitter.Emit(ctx, ProgressEvent{
		Type:      EventFinished,
		Status:    domain.StatusCancelled,
		Processed: snap.ProcessedUnits,
		Total:     snap.TotalUnits,
		Message:   "scan cancelled",
	})
	metrics.ScansFinished.WithLabelValues(string(domain.StatusCancelled)).Inc()
	o.logger.Info(ctx, "scan cancelled", "scan_id", session.ID, "processed", snap.ProcessedUnits)
}

func (o *Orchestrator) finishFailed(ctx context.Context, rs *runningScan, cause error) {
	session, emitter := rs.session, rs.emitter
	ctx = context.WithoutCancel(ctx)
	if err := session.Fail(cause.Error()); err != nil {
		return
	}
	if err := o.store.UpdateSession(ctx, session.Snapshot()); err != nil {
		o.logger.Error(ctx, "persisting failed session", "scan_id", session.ID, "error", err)
	}
	snap := session.Snapshot()
	emitter.Emit(ctx, ProgressEvent{
		Type:      EventFinished,
		Status:    domain.StatusFailed,
		Processed: snap.ProcessedUnits,
		Total:     snap.TotalUnits,
		Message:   cause.Error(),
	})
	metrics.ScansFinished.WithLabelValues(string(domain.StatusFailed)).Inc()
	o.logger.Error(ctx, "scan failed", "scan_id", session.ID, "error", cause)
}
