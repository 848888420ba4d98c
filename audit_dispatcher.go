package keygate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Engine-side audit event names.
const (
	auditEventLogin             = "login"
	auditEventLoginFailure      = "login_failure"
	auditEventSecondFactor      = "second_factor"
	auditEventSecondFactorFail  = "second_factor_failure"
	auditEventSend              = "send"
	auditEventQuotaRejected     = "quota_rejected"
	auditEventDispatchDegraded  = "dispatch_degraded"
	auditEventAccountAdded      = "account_added"
	auditEventAccountDeleted    = "account_deleted"
	auditEventTwoFactorBegin    = "two_factor_begin"
	auditEventTwoFactorEnabled  = "two_factor_enabled"
	auditEventTwoFactorDisabled = "two_factor_disabled"
	auditEventSettingChanged    = "setting_changed"
)

// auditDispatcher decouples engine hot paths from sink latency: Emit never
// blocks, and events that do not fit the buffer are counted as dropped.
type auditDispatcher struct {
	sink      AuditSink
	ch        chan AuditEvent
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink: sink,
		ch:   make(chan AuditEvent, cfg.BufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *auditDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.sink.Emit(context.Background(), event)
		case <-d.done:
			// Drain whatever is already buffered, then stop.
			for {
				select {
				case event := <-d.ch:
					d.sink.Emit(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

func (d *auditDispatcher) Emit(event AuditEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	select {
	case d.ch <- event:
	default:
		d.dropped.Add(1)
	}
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID string, opErr error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}
	e.audit.Emit(event)
}
