package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"RocketShoes/pkg/kit"
)

const (
	issueLimit  = 10
	issueWindow = time.Minute
)

type Server struct {
	Log *zap.Logger
	JWT *TokenMaker
	TTL time.Duration

	limiter *kit.RateLimiter
}

type sessionResp struct {
	ShopperID   string    `json:"shopper_id"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IssueHandler hands out a fresh guest shopper id with a signed token, rate
// limited per client IP.
func (s *Server) IssueHandler() http.Handler {
	if s.limiter == nil {
		s.limiter = kit.NewIPRateLimiter(issueLimit, issueWindow)
	}
	return s.limiter.Middleware(http.HandlerFunc(s.issue))
}

func (s *Server) issue(w http.ResponseWriter, r *http.Request) {
	sid := "s_" + uuid.NewString()
	expires := time.Now().Add(s.TTL).UTC()

	tok, err := s.JWT.New(sid, s.TTL)
	if err != nil {
		if s.Log != nil {
			s.Log.Error("token issue", zap.Error(err))
		}
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}

	kit.WriteJSON(w, http.StatusCreated, sessionResp{
		ShopperID:   sid,
		AccessToken: tok,
		ExpiresAt:   expires,
	})
}

type ctxKey string

const shopperKey ctxKey = "shopper_id"

func ShopperFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(shopperKey).(string)
	return v, ok
}

func AuthJWT(jwt *TokenMaker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				kit.WriteError(w, r, http.StatusUnauthorized, "missing token", nil)
				return
			}

			claims, err := jwt.Parse(strings.TrimPrefix(authz, "Bearer "))
			if err != nil {
				kit.WriteError(w, r, http.StatusUnauthorized, "invalid token", nil)
				return
			}

			ctx := context.WithValue(r.Context(), shopperKey, claims.ShopperID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InjectShopper replaces any client-sent shopper header with the verified one.
func InjectShopper(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(kit.ShopperHeader)
		if sid, ok := ShopperFromContext(r.Context()); ok && sid != "" {
			r.Header.Set(kit.ShopperHeader, sid)
		}
		next.ServeHTTP(w, r)
	})
}
