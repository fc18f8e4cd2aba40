// Package audit records social and moderation actions asynchronously.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kasuganosora/nickfinder/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Actions written to the audit log.
const (
	ActionRegister      = "auth.register"
	ActionLogin         = "auth.login"
	ActionCharCreate    = "character.create"
	ActionCharDelete    = "character.delete"
	ActionPokeSend      = "poke.send"
	ActionPokeRespond   = "poke.respond"
	ActionPokeIgnore    = "poke.ignore"
	ActionPokeBlock     = "poke.block"
	ActionMessageSend   = "message.send"
	ActionRevealCreate  = "reveal.create"
	ActionRevealRevoke  = "reveal.revoke"
	ActionBlockCreate   = "block.create"
	ActionBlockRemove   = "block.remove"
	ActionFriendRequest = "friend.request"
	ActionFriendAccept  = "friend.accept"
	ActionFriendRemove  = "friend.remove"
	ActionAdminBan      = "admin.ban"
	ActionAdminUnban    = "admin.unban"
)

const (
	queueSize     = 1024
	batchSize     = 100
	flushInterval = 2 * time.Second
)

// AuditEntry holds one audit event to be logged.
type AuditEntry struct {
	TraceID     string
	UserID      *int64
	CharacterID *int64
	TargetID    *int64
	Action      string
	Detail      interface{}
	Error       string
	IP          string
}

// ID returns a pointer to id, or nil for zero.
func ID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

// Service logs audit entries asynchronously in batches.
type Service struct {
	db       *gorm.DB
	ch       chan *model.AuditLog
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// New creates a new audit Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		ch:     make(chan *model.AuditLog, queueSize),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues an entry. A full queue drops the entry with a warning.
func (svc *Service) Log(entry AuditEntry) {
	if svc == nil {
		return
	}
	record := &model.AuditLog{
		TraceID:     entry.TraceID,
		UserID:      entry.UserID,
		CharacterID: entry.CharacterID,
		TargetID:    entry.TargetID,
		Action:      entry.Action,
		Error:       entry.Error,
		IP:          entry.IP,
	}
	if entry.Detail != nil {
		if b, err := json.Marshal(entry.Detail); err == nil {
			record.Detail = datatypes.JSON(b)
		}
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit queue full, dropping entry", zap.String("action", entry.Action))
	}
}

// Stop flushes queued entries and waits for the worker to exit.
func (svc *Service) Stop(_ context.Context) {
	svc.stopOnce.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, batchSize)
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
				default:
					flush()
					return
				}
			}
		}
	}
}

// Query filters Recent. Zero fields match everything.
type Query struct {
	UserID int64
	Action string
	Limit  int
}

// Recent returns flushed entries, newest first.
func (svc *Service) Recent(ctx context.Context, q Query) ([]model.AuditLog, error) {
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 100
	}
	tx := svc.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(q.Limit)
	if q.UserID != 0 {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if q.Action != "" {
		tx = tx.Where("action = ?", q.Action)
	}
	var logs []model.AuditLog
	err := tx.Find(&logs).Error
	return logs, err
}
