// Package cleanup provides background housekeeping for the data and log
// directories.
package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jivehq/jive/internal/logger"
)

// Cleaner performs periodic resource cleanup.
type Cleaner struct {
	dataDir      string
	logDir       string
	interval     time.Duration
	logRetention time.Duration
	tmpRetention time.Duration
	diskWarn     float64
	diskError    float64
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// Config holds cleanup configuration.
type Config struct {
	DataDir          string
	LogDir           string
	Interval         time.Duration // How often to run cleanup
	LogRetention     time.Duration // How long to keep rotated log files
	TmpRetention     time.Duration // How long orphaned .tmp files may linger
	DiskWarnPercent  float64       // Warn at this disk usage percentage
	DiskErrorPercent float64       // Error at this disk usage percentage
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(dataDir, logDir string) Config {
	return Config{
		DataDir:          dataDir,
		LogDir:           logDir,
		Interval:         1 * time.Hour,
		LogRetention:     14 * 24 * time.Hour,
		TmpRetention:     1 * time.Hour,
		DiskWarnPercent:  80.0,
		DiskErrorPercent: 90.0,
	}
}

// New creates a new Cleaner with the given configuration.
func New(cfg Config) *Cleaner {
	return &Cleaner{
		dataDir:      cfg.DataDir,
		logDir:       cfg.LogDir,
		interval:     cfg.Interval,
		logRetention: cfg.LogRetention,
		tmpRetention: cfg.TmpRetention,
		diskWarn:     cfg.DiskWarnPercent,
		diskError:    cfg.DiskErrorPercent,
	}
}

// Start begins the periodic cleanup loop.
func (c *Cleaner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		// Run immediately on start
		c.runCleanup()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.runCleanup()
			}
		}
	}()

	logger.Info("🧹 Cleanup started (interval=%v, log retention=%v)", c.interval, c.logRetention)
}

// Stop halts the cleanup loop.
func (c *Cleaner) Stop() {
	if c.cancel != nil {
		c.cancel()
		c.wg.Wait()
		logger.Info("🧹 Cleanup stopped")
	}
}

// runCleanup performs all cleanup tasks.
func (c *Cleaner) runCleanup() {
	c.cleanupTmpFiles()
	c.cleanupOldLogs()
	c.checkDiskUsage()
}

// cleanupTmpFiles removes orphaned .tmp files older than the tmp retention.
func (c *Cleaner) cleanupTmpFiles() {
	cutoff := time.Now().Add(-c.tmpRetention)
	var removed int

	err := filepath.Walk(c.dataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() && strings.HasSuffix(info.Name(), ".tmp") {
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(path); err == nil {
					removed++
				}
			}
		}
		return nil
	})

	if err != nil {
		logger.Warn("cleanup walk error: %v", err)
	}
	if removed > 0 {
		logger.Info("🧹 Removed %d orphaned .tmp files", removed)
	}
}

// cleanupOldLogs removes rotated daily log files older than the log
// retention. The audit trail is append-only and never swept.
func (c *Cleaner) cleanupOldLogs() {
	cutoff := time.Now().Add(-c.logRetention)
	var removed int

	entries, err := os.ReadDir(c.logDir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "jive-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(c.logDir, name)); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		logger.Info("🧹 Removed %d old log files", removed)
	}
}

// checkDiskUsage monitors disk usage under the data directory and logs
// warnings.
func (c *Cleaner) checkDiskUsage() {
	_, _, usedPercent, err := DiskUsage(c.dataDir)
	if err != nil {
		return
	}

	if usedPercent >= c.diskError {
		logger.Critical("🔴 disk usage critical", "used_percent", usedPercent, "dir", c.dataDir)
	} else if usedPercent >= c.diskWarn {
		logger.Warn("🟠 WARNING: Disk usage at %.1f%% (data dir)", usedPercent)
	}
}

// DiskUsage returns usage stats for the filesystem holding path.
func DiskUsage(path string) (usedBytes, totalBytes uint64, usedPercent float64, err error) {
	var stat syscall.Statfs_t
	if err = syscall.Statfs(path, &stat); err != nil {
		return
	}

	totalBytes = stat.Blocks * uint64(stat.Bsize)
	freeBytes := stat.Bfree * uint64(stat.Bsize)
	usedBytes = totalBytes - freeBytes
	if totalBytes > 0 {
		usedPercent = float64(usedBytes) / float64(totalBytes) * 100
	}
	return
}
