package syncdata

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/jivehq/jive/internal/logger"
)

// cronParser accepts standard 5-field expressions (minute hour dom month dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// BackupScheduler runs BackupAll on a cron schedule.
type BackupScheduler struct {
	cron *cron.Cron
	spec string
}

// NewBackupScheduler validates spec and prepares the schedule. Nothing runs
// until Start.
func NewBackupScheduler(spec string, backups *Backups) (*BackupScheduler, error) {
	c := cron.New(cron.WithParser(cronParser))
	_, err := c.AddFunc(spec, func() {
		if err := backups.BackupAll(); err != nil {
			logger.Error("scheduled backup failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid backup schedule %q: %w", spec, err)
	}
	return &BackupScheduler{cron: c, spec: spec}, nil
}

// Start begins the schedule.
func (s *BackupScheduler) Start() {
	s.cron.Start()
	logger.Info("📦 Backup schedule started (%s)", s.spec)
}

// Stop halts the schedule and waits for a running backup to finish.
func (s *BackupScheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("📦 Backup schedule stopped")
}
