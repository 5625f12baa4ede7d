package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/internal/logger"
)

// MaintenanceService runs the periodic housekeeping jobs: sweeping stale
// conversations and compacting the vector store.
type MaintenanceService struct {
	cfg       *config.Config
	sessions  *SessionStore
	index     *VectorIndex
	scheduler *gocron.Scheduler
}

func NewMaintenanceService(cfg *config.Config, sessions *SessionStore, index *VectorIndex) *MaintenanceService {
	return &MaintenanceService{
		cfg:       cfg,
		sessions:  sessions,
		index:     index,
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// Start schedules the jobs and runs them in the background.
func (m *MaintenanceService) Start() error {
	interval := m.cfg.MaintenanceHours
	if interval <= 0 {
		interval = 6
	}

	if _, err := m.scheduler.Every(interval).Hours().Do(m.sweepSessions); err != nil {
		return err
	}
	if _, err := m.scheduler.Every(1).Day().At("03:00").Do(m.optimizeIndex); err != nil {
		return err
	}

	m.scheduler.StartAsync()
	logger.Info("maintenance scheduler started", "interval_hours", interval)
	return nil
}

func (m *MaintenanceService) Stop() {
	m.scheduler.Stop()
}

func (m *MaintenanceService) sweepSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -m.cfg.SessionRetentionDays)
	removed, err := m.sessions.SweepOlderThan(ctx, cutoff)
	if err != nil {
		logger.Error("session sweep failed", "error", err)
		return
	}
	if removed > 0 {
		logger.Info("stale sessions removed", "count", removed)
	}
}

func (m *MaintenanceService) optimizeIndex() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := m.index.Optimize(ctx); err != nil {
		logger.Error("index optimization failed", "error", err)
		return
	}
	logger.Info("index optimized")
}
