package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"cambista/internal/api"
	"cambista/internal/core"
	applog "cambista/internal/log"
	"cambista/internal/storage"
)

// Login authenticates against the remote API and persists the session.
func (r *Repository) Login(ctx context.Context, email, password string) (core.User, error) {
	res, err := r.remote.Login(ctx, email, password)
	if err != nil {
		r.logger.WarnContext(ctx, "Login failed", applog.FieldOperation, applog.OpLogin, applog.FieldError, err)
		return core.User{}, err
	}

	buf, err := json.Marshal(res.User)
	if err != nil {
		return core.User{}, fmt.Errorf("encode session user: %w", err)
	}
	// The token goes first: a stored user without its token would read as
	// logged in while requests go out unauthenticated.
	if err := r.persistSession(ctx, res.Token, string(buf)); err != nil {
		if err := r.store.Delete(ctx, KeyUser, KeyToken); err != nil {
			r.logger.WarnContext(ctx, "Session rollback failed", applog.FieldOperation, applog.OpLogin, applog.FieldError, err)
		}
		return core.User{}, err
	}

	r.logger.InfoContext(ctx, "Operator logged in", applog.FieldOperation, applog.OpLogin, applog.FieldUserID, res.User.ID)
	return res.User, nil
}

func (r *Repository) persistSession(ctx context.Context, token, user string) error {
	if token != "" {
		if err := r.store.Set(ctx, KeyToken, token); err != nil {
			return fmt.Errorf("persist session token: %w", err)
		}
	} else if err := r.store.Delete(ctx, KeyToken); err != nil {
		return fmt.Errorf("clear session token: %w", err)
	}
	if err := r.store.Set(ctx, KeyUser, user); err != nil {
		return fmt.Errorf("persist session user: %w", err)
	}
	return nil
}

// Logout wipes every persisted key and the memory tier. It never touches
// the network.
func (r *Repository) Logout(ctx context.Context) error {
	r.InvalidateGlobalCache()
	if err := r.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear persisted store: %w", err)
	}
	r.logger.InfoContext(ctx, "Operator logged out", applog.FieldOperation, applog.OpLogout)
	return nil
}

// CurrentSessionUser reports the logged-in operator. A missing or
// unreadable session is simply no session.
func (r *Repository) CurrentSessionUser(ctx context.Context) (core.User, bool) {
	raw, ok, err := r.store.Get(ctx, KeyUser)
	if err != nil {
		r.logger.DebugContext(ctx, "Session read failed", applog.FieldError, err)
		return core.User{}, false
	}
	if !ok {
		return core.User{}, false
	}
	var u core.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		r.logger.DebugContext(ctx, "Session entry unreadable", applog.FieldError, err)
		return core.User{}, false
	}
	return u, true
}

// TokenSource reads the bearer token persisted by Login.
func TokenSource(store storage.Store) api.TokenSource {
	return api.TokenFunc(func(ctx context.Context) (string, error) {
		token, _, err := store.Get(ctx, KeyToken)
		return token, err
	})
}
