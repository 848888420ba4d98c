package keygate

import (
	"context"
	"errors"
	"strconv"
)

// Send is the metered outbound operation and the only one that touches the
// dispatch collaborator. Quota is charged atomically for the requested
// quantity before dispatch, then units the collaborator could not deliver
// are refunded, so concurrent sends cannot race past the limit and a total
// outage costs no quota. A collaborator error degrades to a zero-sent,
// all-failed result instead of failing the request.
func (e *Engine) Send(ctx context.Context, tokenStr string, req SendRequest) (*SendResult, error) {
	if e == nil || e.store == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if e.dispatcher == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.authenticate(tokenStr)
	if err != nil {
		return nil, err
	}
	if req.Phone == "" || req.Quantity <= 0 {
		return nil, ErrSendInvalid
	}

	metered := !claims.IsAdmin && claims.UserType == string(UserTypeNormal)

	var account *Account
	if metered {
		account, err = e.store.GetByUserID(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				e.metricInc(MetricTokenRejected)
				return nil, ErrTokenInvalid
			}
			return nil, wrapStorage(err)
		}

		if _, err := e.quota.Charge(ctx, account, req.Quantity); err != nil {
			if errors.Is(err, ErrQuotaExceeded) {
				e.metricInc(MetricQuotaRejected)
				e.emitAudit(ctx, auditEventQuotaRejected, false, claims.UserID, ErrQuotaExceeded, map[string]string{
					"quantity": strconv.Itoa(req.Quantity),
				})
				return nil, ErrQuotaExceeded
			}
			return nil, wrapStorage(err)
		}
	}

	result, dispatchErr := e.dispatcher.Dispatch(ctx, DispatchRequest{
		Phone:    req.Phone,
		Quantity: req.Quantity,
		Turbo:    req.Turbo,
	})
	if dispatchErr != nil {
		// Collaborator outage: degrade, never propagate.
		result = DispatchResult{Sent: 0, Failed: req.Quantity}
		e.metricInc(MetricDispatchDegraded)
		e.emitAudit(ctx, auditEventDispatchDegraded, false, claims.UserID, dispatchErr, nil)
	}

	if metered && result.Failed > 0 {
		if err := e.quota.Refund(ctx, account, result.Failed); err != nil {
			return nil, wrapStorage(err)
		}
	}

	newToken, err := e.refreshFor(claims)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSendSuccess)
	e.emitAudit(ctx, auditEventSend, true, claims.UserID, nil, map[string]string{
		"sent":   strconv.Itoa(result.Sent),
		"failed": strconv.Itoa(result.Failed),
	})
	return &SendResult{
		Token:  newToken,
		Sent:   result.Sent,
		Failed: result.Failed,
	}, nil
}
