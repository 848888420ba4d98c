package keygate

import (
	"context"
	"errors"
)

// BeginTwoFactor provisions a fresh TOTP secret for the calling admin,
// leaving the factor pending until a code is confirmed. Re-provisioning
// replaces any earlier secret and drops back to pending. Returns the
// enrollment material and the refreshed token.
func (e *Engine) BeginTwoFactor(ctx context.Context, tokenStr string) (*TwoFactorProvision, string, error) {
	if e == nil || e.store == nil || e.tokens == nil || e.totp == nil {
		return nil, "", ErrEngineNotReady
	}

	claims, err := e.authenticateAdmin(tokenStr)
	if err != nil {
		return nil, "", err
	}

	account, err := e.store.GetByUserID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, "", ErrTokenInvalid
		}
		return nil, "", wrapStorage(err)
	}

	raw, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, "", err
	}
	sealed, err := e.sealSecret(raw)
	if err != nil {
		return nil, "", err
	}
	if err := e.store.SetTwoFactorSecret(ctx, account.UserID, sealed); err != nil {
		return nil, "", wrapStorage(err)
	}

	newToken, err := e.refreshFor(claims)
	if err != nil {
		return nil, "", err
	}

	e.emitAudit(ctx, auditEventTwoFactorBegin, true, account.UserID, nil, nil)
	return &TwoFactorProvision{
		Secret: secretBase32,
		URI:    e.totp.ProvisionURI(secretBase32, account.UserID),
	}, newToken, nil
}

// ConfirmTwoFactor validates a provisioning code and enables the second
// factor. An invalid code leaves the pending state unchanged. Returns the
// refreshed token.
func (e *Engine) ConfirmTwoFactor(ctx context.Context, tokenStr, code string) (string, error) {
	if e == nil || e.store == nil || e.tokens == nil || e.totp == nil {
		return "", ErrEngineNotReady
	}

	claims, err := e.authenticateAdmin(tokenStr)
	if err != nil {
		return "", err
	}

	account, err := e.store.GetByUserID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return "", ErrTokenInvalid
		}
		return "", wrapStorage(err)
	}
	if len(account.TwoFactorSecret) == 0 {
		return "", ErrTwoFactorNotConfigured
	}

	if err := e.verifyCode(ctx, account, code); err != nil {
		e.emitAudit(ctx, auditEventSecondFactorFail, false, account.UserID, err, nil)
		return "", err
	}

	if err := e.store.EnableTwoFactor(ctx, account.UserID); err != nil {
		return "", wrapStorage(err)
	}

	e.emitAudit(ctx, auditEventTwoFactorEnabled, true, account.UserID, nil, nil)
	return e.refreshFor(claims)
}

// DisableTwoFactor turns the second factor off and clears the stored
// secret so no previously valid code can ever revalidate. Idempotent.
// Returns the refreshed token.
func (e *Engine) DisableTwoFactor(ctx context.Context, tokenStr string) (string, error) {
	if e == nil || e.store == nil || e.tokens == nil {
		return "", ErrEngineNotReady
	}

	claims, err := e.authenticateAdmin(tokenStr)
	if err != nil {
		return "", err
	}

	if err := e.store.DisableTwoFactor(ctx, claims.UserID); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return "", ErrTokenInvalid
		}
		return "", wrapStorage(err)
	}
	if e.limiter != nil {
		_ = e.limiter.ResetCode(ctx, claims.UserID)
	}

	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, claims.UserID, nil, nil)
	return e.refreshFor(claims)
}
