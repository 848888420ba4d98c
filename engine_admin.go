package keygate

import (
	"context"
	"errors"
	"time"
)

// AddAccount creates a new key. Admin accounts never expire; time-boxed
// accounts require a positive ExpiryDays. Returns the refreshed token.
func (e *Engine) AddAccount(ctx context.Context, tokenStr string, req AddAccountRequest) (string, error) {
	if e == nil || e.store == nil || e.tokens == nil {
		return "", ErrEngineNotReady
	}

	claims, err := e.authenticateAdmin(tokenStr)
	if err != nil {
		return "", err
	}

	if req.Key == "" || req.UserID == "" {
		return "", ErrAccountInvalid
	}

	userType := req.UserType
	if userType == "" {
		if req.IsAdmin {
			userType = UserTypeAdmin
		} else {
			userType = UserTypeNormal
		}
	}
	switch userType {
	case UserTypeAdmin, UserTypePremium, UserTypeNormal:
	default:
		return "", ErrAccountInvalid
	}

	now := time.Now()
	var expiry *time.Time
	if !req.IsAdmin {
		if req.ExpiryDays <= 0 {
			return "", ErrAccountInvalid
		}
		t := now.AddDate(0, 0, req.ExpiryDays)
		expiry = &t
	}

	account := &Account{
		Key:          req.Key,
		UserID:       req.UserID,
		IsAdmin:      req.IsAdmin,
		UserType:     userType,
		Expiry:       expiry,
		CreatedAt:    now,
		DailyUsed:    0,
		LastResetDay: now.Format(quotaDayFormat),
	}

	if err := e.store.Create(ctx, account); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return "", ErrAccountExists
		}
		return "", wrapStorage(err)
	}

	e.emitAudit(ctx, auditEventAccountAdded, true, claims.UserID, nil, map[string]string{
		"target":    req.UserID,
		"user_type": string(userType),
	})
	return e.refreshFor(claims)
}

// ListAccounts returns account summaries ordered newest first, plus the
// refreshed token.
func (e *Engine) ListAccounts(ctx context.Context, tokenStr string) ([]AccountSummary, string, error) {
	if e == nil || e.store == nil || e.tokens == nil {
		return nil, "", ErrEngineNotReady
	}

	claims, err := e.authenticateAdmin(tokenStr)
	if err != nil {
		return nil, "", err
	}

	accounts, err := e.store.List(ctx)
	if err != nil {
		return nil, "", wrapStorage(err)
	}

	summaries := make([]AccountSummary, 0, len(accounts))
	for i := range accounts {
		a := &accounts[i]
		summaries = append(summaries, AccountSummary{
			Key:              a.Key,
			UserID:           a.UserID,
			Expiry:           a.Expiry,
			CreatedAt:        a.CreatedAt,
			IsAdmin:          a.IsAdmin,
			UserType:         a.EffectiveType(),
			DailyLimit:       e.quota.LimitFor(a),
			DailyUsed:        a.DailyUsed,
			TwoFactorEnabled: a.TwoFactorEnabled,
		})
	}

	newToken, err := e.refreshFor(claims)
	if err != nil {
		return nil, "", err
	}
	return summaries, newToken, nil
}

// DeleteAccount removes a key. Deleting an absent key reports
// [ErrAccountNotFound]. Returns the refreshed token.
func (e *Engine) DeleteAccount(ctx context.Context, tokenStr, key string) (string, error) {
	if e == nil || e.store == nil || e.tokens == nil {
		return "", ErrEngineNotReady
	}

	claims, err := e.authenticateAdmin(tokenStr)
	if err != nil {
		return "", err
	}

	if err := e.store.Delete(ctx, key); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return "", ErrAccountNotFound
		}
		return "", wrapStorage(err)
	}

	e.emitAudit(ctx, auditEventAccountDeleted, true, claims.UserID, nil, nil)
	return e.refreshFor(claims)
}

// DispatchEndpoint reads the process-wide dispatch collaborator endpoint.
// Absent settings read as an empty string.
func (e *Engine) DispatchEndpoint(ctx context.Context) (string, error) {
	if e == nil || e.settings == nil {
		return "", ErrEngineNotReady
	}
	value, err := e.settings.Get(ctx, SettingDispatchEndpoint)
	if err != nil {
		return "", wrapStorage(err)
	}
	return value, nil
}

// SetDispatchEndpoint updates the dispatch collaborator endpoint through
// the single serialized settings write path. Admin only; returns the
// refreshed token.
func (e *Engine) SetDispatchEndpoint(ctx context.Context, tokenStr, endpoint string) (string, error) {
	if e == nil || e.settings == nil || e.tokens == nil {
		return "", ErrEngineNotReady
	}

	claims, err := e.authenticateAdmin(tokenStr)
	if err != nil {
		return "", err
	}
	if endpoint == "" {
		return "", ErrSettingInvalid
	}

	if err := e.settings.Set(ctx, SettingDispatchEndpoint, endpoint); err != nil {
		return "", wrapStorage(err)
	}

	e.emitAudit(ctx, auditEventSettingChanged, true, claims.UserID, nil, map[string]string{
		"setting": SettingDispatchEndpoint,
	})
	return e.refreshFor(claims)
}
