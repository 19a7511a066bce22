// Package audit persists the external commands sent to agent sessions.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kasuganosora/stalker/model"
)

const (
	queueSize  = 1024
	batchSize  = 100
	flushEvery = 2 * time.Second
)

// Entry is one command to be logged.
type Entry struct {
	TraceID    string
	AgentID    string
	Command    string
	Args       interface{}
	Error      string
	IP         string
	DurationMs int
}

// Service writes entries asynchronously in batches.
type Service struct {
	db     *gorm.DB
	ch     chan *model.CommandLog
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates a Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		ch:     make(chan *model.CommandLog, queueSize),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues an entry; it never blocks the caller.
func (svc *Service) Log(e Entry) {
	var args datatypes.JSON
	if e.Args != nil {
		b, err := json.Marshal(e.Args)
		if err != nil {
			svc.logger.Warn("audit args not serializable", zap.String("command", e.Command), zap.Error(err))
		} else {
			args = datatypes.JSON(b)
		}
	}
	record := &model.CommandLog{
		TraceID:    e.TraceID,
		AgentID:    e.AgentID,
		Command:    e.Command,
		Args:       args,
		Error:      e.Error,
		IP:         e.IP,
		DurationMs: e.DurationMs,
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("agent_id", e.AgentID), zap.String("command", e.Command))
	}
}

// Stop flushes remaining entries and blocks until the worker is done.
func (svc *Service) Stop(_ context.Context) {
	svc.once.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	batch := make([]*model.CommandLog, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
					if len(batch) >= batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
