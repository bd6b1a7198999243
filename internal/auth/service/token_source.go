package service

import (
	"context"
	"time"

	"github.com/aussiebroadwan/maidrobe/internal/auth/domain"
	"golang.org/x/oauth2"
)

// tokenExpiryDelta matches the early-expiry margin oauth2 applies, so a
// token handed out here is not rejected as expired by ReuseTokenSource.
const tokenExpiryDelta = 10 * time.Second

// TokenSource returns an oauth2.TokenSource over the stored session, for
// clients of RLS-protected data APIs. A token that is expired or about to
// expire is renewed through Refresh, so data calls share the same
// deduplicated refresh as the scheduler.
func (m *RefreshManager) TokenSource() oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &sessionTokenSource{m: m})
}

type sessionTokenSource struct {
	m *RefreshManager
}

func (s *sessionTokenSource) Token() (*oauth2.Token, error) {
	ctx := context.Background()
	clock := clockOr(s.m.Clock)

	bundle, ok := s.m.Persistence.Load(ctx)
	if !ok {
		return nil, ErrNoSession
	}

	session := bundle.Session
	meta := bundleTokenMetadata(bundle)
	if !clock.Now().Before(meta.ExpiresAt.Add(-tokenExpiryDelta)) {
		refreshed, err := s.m.Refresh(ctx)
		if err != nil {
			return nil, err
		}
		session = refreshed
		meta = domain.DeriveTokenMetadata(refreshed, clock.Now())
	}

	return &oauth2.Token{
		AccessToken: session.AccessToken,
		TokenType:   meta.TokenType,
		Expiry:      meta.ExpiresAt,
	}, nil
}
