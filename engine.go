package keygate

import (
	"context"
	"errors"
	"time"

	"github.com/mehmetylmz/keygate/internal/rate"
	"github.com/mehmetylmz/keygate/internal/seal"
	"github.com/mehmetylmz/keygate/token"
)

// Engine orchestrates the credential store, quota tracker, second-factor
// manager, and token service into the login/verify/refresh protocol.
// Immutable and safe for concurrent use after [Builder.Build].
type Engine struct {
	config     Config
	store      AccountStore
	settings   SettingsStore
	dispatcher Dispatcher
	tokens     *token.Manager
	totp       *totpManager
	quota      *quotaTracker
	limiter    *rate.Limiter
	box        *seal.Box
	audit      *auditDispatcher
	metrics    *Metrics
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Login exchanges a key for a session. Unknown keys report the same
// generic failure as malformed ones; an expired key is reported as such
// but remains on record. When the account requires a second factor the
// result carries a short-lived pending assertion instead of a session.
func (e *Engine) Login(ctx context.Context, key string) (*LoginResult, error) {
	if e == nil || e.store == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if key == "" {
		e.metricInc(MetricLoginFailure)
		return nil, ErrCredentialInvalid
	}

	if e.limiter != nil {
		if err := e.limiter.CheckLogin(ctx, key); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricLoginFailure)
				return nil, ErrLoginRateLimited
			}
			return nil, wrapStorage(err)
		}
	}

	account, err := e.store.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricLoginFailure)
			e.recordLoginFailure(ctx, key)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrCredentialInvalid, nil)
			return nil, ErrCredentialInvalid
		}
		return nil, wrapStorage(err)
	}
	if account.ExpiredAt(time.Now()) {
		e.metricInc(MetricLoginFailure)
		e.recordLoginFailure(ctx, key)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.UserID, ErrCredentialExpired, nil)
		return nil, ErrCredentialExpired
	}

	userType := account.EffectiveType()
	identity := token.Identity{
		UserID:   account.UserID,
		IsAdmin:  account.IsAdmin,
		UserType: string(userType),
	}

	used, err := e.quota.CurrentUsage(ctx, account)
	if err != nil {
		return nil, wrapStorage(err)
	}

	if e.secondFactorRequired(account) {
		pending, err := e.tokens.IssuePending(identity)
		if err != nil {
			return nil, err
		}
		e.metricInc(MetricSecondFactorRequired)
		e.emitAudit(ctx, auditEventLogin, true, account.UserID, nil, map[string]string{"second_factor": "required"})
		return &LoginResult{
			RequiresSecondFactor: true,
			PendingToken:         pending,
			IsAdmin:              account.IsAdmin,
			UserType:             userType,
		}, nil
	}

	if e.limiter != nil {
		_ = e.limiter.ResetLogin(ctx, key)
	}

	tok, err := e.tokens.Issue(identity)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLogin, true, account.UserID, nil, nil)
	return &LoginResult{
		Token:      tok,
		IsAdmin:    account.IsAdmin,
		UserType:   userType,
		DailyLimit: e.quota.LimitFor(account),
		DailyUsed:  used,
	}, nil
}

// VerifySecondFactor completes a login that answered with a pending
// assertion. The pending token must be well-formed, unexpired, and marked
// pending; the TOTP code must verify against the account's stored secret.
func (e *Engine) VerifySecondFactor(ctx context.Context, pendingToken, code string) (*LoginResult, error) {
	if e == nil || e.store == nil || e.tokens == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Parse(pendingToken)
	if err != nil || !claims.Pending {
		e.metricInc(MetricTokenRejected)
		return nil, ErrTokenInvalid
	}

	account, err := e.store.GetByUserID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricSecondFactorFailure)
			return nil, ErrCredentialInvalid
		}
		return nil, wrapStorage(err)
	}
	if !account.TwoFactorEnabled || len(account.TwoFactorSecret) == 0 {
		e.metricInc(MetricSecondFactorFailure)
		return nil, ErrTwoFactorNotConfigured
	}

	if err := e.verifyCode(ctx, account, code); err != nil {
		e.metricInc(MetricSecondFactorFailure)
		e.emitAudit(ctx, auditEventSecondFactorFail, false, account.UserID, err, nil)
		return nil, err
	}

	userType := account.EffectiveType()
	used, err := e.quota.CurrentUsage(ctx, account)
	if err != nil {
		return nil, wrapStorage(err)
	}

	tok, err := e.tokens.Issue(token.Identity{
		UserID:   account.UserID,
		IsAdmin:  account.IsAdmin,
		UserType: string(userType),
	})
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSecondFactorSuccess)
	e.emitAudit(ctx, auditEventSecondFactor, true, account.UserID, nil, nil)
	return &LoginResult{
		Token:      tok,
		IsAdmin:    account.IsAdmin,
		UserType:   userType,
		DailyLimit: e.quota.LimitFor(account),
		DailyUsed:  used,
	}, nil
}

// secondFactorRequired implements the second-factor policy: only admins
// with a confirmed secret are challenged.
func (e *Engine) secondFactorRequired(a *Account) bool {
	return a.IsAdmin && a.TwoFactorEnabled
}

// verifyCode checks a TOTP code against the account's sealed secret under
// the attempt limiter.
func (e *Engine) verifyCode(ctx context.Context, account *Account, code string) error {
	if e.limiter != nil {
		if err := e.limiter.CheckCode(ctx, account.UserID); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return ErrTwoFactorRateLimited
			}
			return wrapStorage(err)
		}
	}

	secret, err := e.openSecret(account.TwoFactorSecret)
	if err != nil {
		return wrapStorage(err)
	}

	ok, err := e.totp.VerifyCode(secret, code, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		if e.limiter != nil {
			if recErr := e.limiter.RecordCodeFailure(ctx, account.UserID); errors.Is(recErr, rate.ErrRateLimited) {
				return ErrTwoFactorRateLimited
			}
		}
		return ErrTwoFactorInvalidCode
	}

	if e.limiter != nil {
		_ = e.limiter.ResetCode(ctx, account.UserID)
	}
	return nil
}

// authenticate validates a presented session token, rejecting pending
// assertions wherever a full session is required.
func (e *Engine) authenticate(tokenStr string) (*token.Claims, error) {
	claims, err := e.tokens.Parse(tokenStr)
	if err != nil || claims.Pending {
		e.metricInc(MetricTokenRejected)
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// authenticateAdmin additionally requires the admin privilege.
func (e *Engine) authenticateAdmin(tokenStr string) (*token.Claims, error) {
	claims, err := e.authenticate(tokenStr)
	if err != nil {
		return nil, err
	}
	if !claims.IsAdmin {
		return nil, ErrForbidden
	}
	return claims, nil
}

// refreshFor re-issues a full-TTL session carrying the same identity.
// Called after every privileged mutating operation; callers are expected
// to adopt the newest token returned.
func (e *Engine) refreshFor(claims *token.Claims) (string, error) {
	return e.tokens.Issue(claims.Identity())
}

func (e *Engine) recordLoginFailure(ctx context.Context, key string) {
	if e.limiter == nil {
		return
	}
	_ = e.limiter.RecordLoginFailure(ctx, key)
}

func (e *Engine) sealSecret(raw []byte) ([]byte, error) {
	if e.box == nil {
		return raw, nil
	}
	return e.box.Seal(raw)
}

func (e *Engine) openSecret(sealed []byte) ([]byte, error) {
	if e.box == nil {
		return sealed, nil
	}
	return e.box.Open(sealed)
}

func wrapStorage(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return errors.Join(ErrStorageUnavailable, err)
}
