// Package monitor keeps a history of the API calls the dashboard client
// made: a bounded in-memory list plus asynchronous persistence.
package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/pulse-dashboard/internal/db/models"
	"github.com/pysugar/pulse-dashboard/internal/logging"
	"gorm.io/gorm"
)

// MaxMemoryLogs limits the in-memory log cache
const MaxMemoryLogs = 100

// RequestMonitor records client request logs and keeps running counters.
type RequestMonitor struct {
	db *gorm.DB // optional

	recentLogs []models.RequestLog
	logsMu     sync.RWMutex
	pending    sync.WaitGroup

	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
}

// NewRequestMonitor creates a monitor. db may be nil for memory-only history.
func NewRequestMonitor(db *gorm.DB) *RequestMonitor {
	m := &RequestMonitor{
		db:         db,
		recentLogs: make([]models.RequestLog, 0, MaxMemoryLogs),
	}
	if db != nil {
		m.loadStatsFromDB()
	}
	return m
}

// Record stores one log entry. Persistence happens in the background.
func (m *RequestMonitor) Record(entry models.RequestLog) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}

	m.totalRequests.Add(1)
	if entry.Status >= 200 && entry.Status < 400 {
		m.successCount.Add(1)
	} else {
		m.errorCount.Add(1)
	}

	m.logsMu.Lock()
	m.recentLogs = append([]models.RequestLog{entry}, m.recentLogs...)
	if len(m.recentLogs) > MaxMemoryLogs {
		m.recentLogs = m.recentLogs[:MaxMemoryLogs]
	}
	m.logsMu.Unlock()

	if m.db == nil {
		return
	}
	m.pending.Add(1)
	go func(e models.RequestLog) {
		defer m.pending.Done()
		if err := m.db.Create(&e).Error; err != nil {
			logging.Default().Warn().Err(err).Msg("[Monitor] Failed to save log")
		}
	}(entry)
}

// Flush waits for background writes to finish.
func (m *RequestMonitor) Flush() {
	m.pending.Wait()
}

// Recent returns up to limit entries, newest first.
func (m *RequestMonitor) Recent(limit int) []models.RequestLog {
	if limit <= 0 {
		limit = MaxMemoryLogs
	}
	if m.db != nil {
		var logs []models.RequestLog
		err := m.db.Order("timestamp DESC").Limit(limit).Find(&logs).Error
		if err == nil {
			return logs
		}
		logging.Default().Warn().Err(err).Msg("[Monitor] Failed to read logs, using memory")
	}

	m.logsMu.RLock()
	defer m.logsMu.RUnlock()
	if limit > len(m.recentLogs) {
		limit = len(m.recentLogs)
	}
	out := make([]models.RequestLog, limit)
	copy(out, m.recentLogs[:limit])
	return out
}

// Stats returns aggregated counters.
func (m *RequestMonitor) Stats() models.RequestStats {
	return models.RequestStats{
		TotalRequests: m.totalRequests.Load(),
		SuccessCount:  m.successCount.Load(),
		ErrorCount:    m.errorCount.Load(),
	}
}

// Clear drops all history from memory and the database.
func (m *RequestMonitor) Clear() error {
	m.Flush()

	m.logsMu.Lock()
	m.recentLogs = m.recentLogs[:0]
	m.logsMu.Unlock()

	m.totalRequests.Store(0)
	m.successCount.Store(0)
	m.errorCount.Store(0)

	if m.db == nil {
		return nil
	}
	return m.db.Exec("DELETE FROM request_logs").Error
}

func (m *RequestMonitor) loadStatsFromDB() {
	var total, success, errs int64

	m.db.Model(&models.RequestLog{}).Count(&total)
	m.db.Model(&models.RequestLog{}).Where("status >= 200 AND status < 400").Count(&success)
	m.db.Model(&models.RequestLog{}).Where("status < 200 OR status >= 400").Count(&errs)

	m.totalRequests.Store(total)
	m.successCount.Store(success)
	m.errorCount.Store(errs)
}
