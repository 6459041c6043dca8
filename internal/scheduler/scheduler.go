// Package scheduler manages the three background goroutines of the lending
// engine:
//  1. liquidationScanLoop – sweeps at-risk snapshots and confirms eligibility.
//  2. staleRefreshLoop    – recomputes snapshots left stale by failed refreshes.
//  3. priceBroadcastLoop  – pushes oracle index prices to WS clients.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/lumenfi/lending/internal/config"
	"github.com/lumenfi/lending/internal/repository"
	"github.com/lumenfi/lending/internal/service"
	"github.com/lumenfi/lending/internal/ws"
	"golang.org/x/time/rate"
)

// ──────────────────────────────────────────────────────────────────────────────
// WsHub interface — minimally required from the Hub
// ──────────────────────────────────────────────────────────────────────────────

// WsHub defines the broadcast operations the Scheduler needs from the WebSocket
// hub.  Declared here so the scheduler package does not depend on the ws/hub.go
// implementation directly.
type WsHub interface {
	BroadcastIndexPrices(prices []ws.IndexPriceEntry)
	BroadcastPlatformRisk(collateralUsd, debtUsd string, atRisk int)
}

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler
// ──────────────────────────────────────────────────────────────────────────────

// Scheduler wires together the services and runs the three background
// goroutines.  Call Start(ctx) once from main(); cancel the context to shut it
// down gracefully.
type Scheduler struct {
	liquidationSvc *service.LiquidationService
	healthSvc      *service.HealthService
	priceSvc       *service.PriceService
	riskRepo       *repository.RiskRepository
	reserveRepo    *repository.ReserveRepository
	hub            WsHub
	cfg            *config.Config
	logger         *slog.Logger

	// recomputeLimiter throttles per-candidate eligibility confirmations so a
	// large at-risk set cannot saturate the database.
	recomputeLimiter *rate.Limiter
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	liquidationSvc *service.LiquidationService,
	healthSvc *service.HealthService,
	priceSvc *service.PriceService,
	riskRepo *repository.RiskRepository,
	reserveRepo *repository.ReserveRepository,
	hub WsHub,
	cfg *config.Config,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		liquidationSvc:   liquidationSvc,
		healthSvc:        healthSvc,
		priceSvc:         priceSvc,
		riskRepo:         riskRepo,
		reserveRepo:      reserveRepo,
		hub:              hub,
		cfg:              cfg,
		logger:           logger,
		recomputeLimiter: rate.NewLimiter(rate.Limit(cfg.Scanner.RecomputesPerSec), 1),
	}
}

// Start launches the three background goroutines.  It returns immediately;
// all loops run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.liquidationScanLoop(ctx)
	go s.staleRefreshLoop(ctx)
	go s.priceBroadcastLoop(ctx)
	s.logger.Info("scheduler started",
		"scan_interval", s.cfg.Scanner.ScanInterval,
		"refresh_interval", s.cfg.Scanner.RefreshInterval)
}

// ──────────────────────────────────────────────────────────────────────────────
// liquidationScanLoop
// ──────────────────────────────────────────────────────────────────────────────

// liquidationScanLoop sweeps the cached at-risk snapshots every ScanInterval
// and confirms each candidate against fresh position data.  Confirmations are
// rate limited to RecomputesPerSec.
func (s *Scheduler) liquidationScanLoop(ctx context.Context) {
	defer s.recoverAndLog("liquidationScanLoop")

	ticker := time.NewTicker(s.cfg.Scanner.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("liquidationScanLoop: shutting down")
			return
		case <-ticker.C:
			s.scanOnce(ctx)
		}
	}
}

// scanOnce is the inner body of liquidationScanLoop, extracted so that the
// defer/recover in the loop catches panics correctly.
func (s *Scheduler) scanOnce(ctx context.Context) {
	start := time.Now()

	candidates, err := s.riskRepo.ListAtRisk(ctx, s.cfg.Scanner.ScanBatchSize)
	if err != nil {
		s.logger.Error("liquidationScanLoop: candidate query failed", "err", err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	confirmed := 0
	for _, c := range candidates {
		if err := s.recomputeLimiter.Wait(ctx); err != nil {
			return // ctx cancelled mid-scan
		}
		opp, err := s.liquidationSvc.CheckEligibility(ctx, c.UserID, c.Chain)
		if err != nil {
			// ErrNotLiquidatable: the fresh recompute cleared the cutoff and
			// already repaired the cache; nothing to do for this candidate.
			continue
		}
		confirmed++
		s.logger.Warn("liquidatable position",
			"user_id", opp.TargetUserID,
			"chain", opp.Chain,
			"health_factor", opp.HealthFactor,
			"total_debt_usd", opp.TotalDebtUsd,
			"max_liquidation_usd", opp.MaxLiquidationUsd,
			"potential_profit", opp.PotentialProfit)
	}

	s.logger.Info("liquidation scan completed",
		"candidates", len(candidates),
		"confirmed", confirmed,
		"took", time.Since(start).Round(time.Millisecond))
}

// ──────────────────────────────────────────────────────────────────────────────
// staleRefreshLoop
// ──────────────────────────────────────────────────────────────────────────────

// staleRefreshLoop recomputes snapshots whose last_calculated_at fell behind
// SnapshotStaleAge.  These are caches left behind when a post-commit refresh
// failed; the loop converges them back to the live position rows.
func (s *Scheduler) staleRefreshLoop(ctx context.Context) {
	defer s.recoverAndLog("staleRefreshLoop")

	ticker := time.NewTicker(s.cfg.Scanner.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("staleRefreshLoop: shutting down")
			return
		case <-ticker.C:
			s.refreshStale(ctx)
		}
	}
}

// refreshStale repairs one batch of stale snapshots.
func (s *Scheduler) refreshStale(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.cfg.Risk.SnapshotStaleAge)
	stale, err := s.riskRepo.ListStale(ctx, cutoff, s.cfg.Scanner.RefreshBatchSize)
	if err != nil {
		s.logger.Error("staleRefreshLoop: stale query failed", "err", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	repaired := 0
	for _, snap := range stale {
		if err := s.recomputeLimiter.Wait(ctx); err != nil {
			return
		}
		if _, err := s.healthSvc.Recompute(ctx, snap.UserID, snap.Chain); err != nil {
			s.logger.Error("staleRefreshLoop: recompute failed",
				"user_id", snap.UserID, "chain", snap.Chain, "err", err)
			continue
		}
		repaired++
	}
	s.logger.Info("stale snapshots refreshed", "stale", len(stale), "repaired", repaired)
}

// ──────────────────────────────────────────────────────────────────────────────
// priceBroadcastLoop
// ──────────────────────────────────────────────────────────────────────────────

// priceBroadcastLoop fetches the USD index price for every active reserve
// asset and broadcasts the set, plus platform exposure totals, to all
// connected WS clients.  Runs on the oracle cache TTL so each tick is at most
// one fetch round per asset.
func (s *Scheduler) priceBroadcastLoop(ctx context.Context) {
	defer s.recoverAndLog("priceBroadcastLoop")

	ticker := time.NewTicker(s.cfg.Oracle.CacheTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("priceBroadcastLoop: shutting down")
			return
		case <-ticker.C:
			s.broadcastPrices(ctx)
		}
	}
}

// broadcastPrices is the inner body of priceBroadcastLoop.
func (s *Scheduler) broadcastPrices(ctx context.Context) {
	reserves, err := s.reserveRepo.List(ctx, "")
	if err != nil {
		s.logger.Warn("priceBroadcastLoop: reserve list failed", "err", err)
		return
	}

	seen := make(map[string]bool, len(reserves))
	entries := make([]ws.IndexPriceEntry, 0, len(reserves))
	for _, res := range reserves {
		if !res.IsActive || seen[res.Asset] {
			continue
		}
		seen[res.Asset] = true

		idx, err := s.priceSvc.GetIndexPrice(ctx, res.Asset)
		if err != nil {
			s.logger.Warn("priceBroadcastLoop: index fetch failed", "asset", res.Asset, "err", err)
			continue
		}
		entries = append(entries, ws.IndexPriceEntry{Asset: idx.Asset, PriceUsd: idx.PriceUsd})
	}

	if s.hub == nil {
		return
	}
	if len(entries) > 0 {
		s.hub.BroadcastIndexPrices(entries)
	}

	collateral, debt, err := s.riskRepo.PlatformTotals(ctx)
	if err != nil {
		s.logger.Warn("priceBroadcastLoop: platform totals failed", "err", err)
		return
	}
	atRisk, err := s.riskRepo.CountAtRisk(ctx)
	if err != nil {
		s.logger.Warn("priceBroadcastLoop: at-risk count failed", "err", err)
		return
	}
	s.hub.BroadcastPlatformRisk(collateral, debt, atRisk)
}

// ──────────────────────────────────────────────────────────────────────────────
// Panic recovery
// ──────────────────────────────────────────────────────────────────────────────

// recoverAndLog is deferred inside each goroutine to catch unexpected panics,
// log them, and allow the scheduler to continue running.
func (s *Scheduler) recoverAndLog(loop string) {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in scheduler loop",
			"loop", loop, "panic", r)
	}
}
