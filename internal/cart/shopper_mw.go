package cart

import (
	"context"
	"net/http"
	"strings"

	"RocketShoes/pkg/kit"
)

type ctxKey string

const shopperKey ctxKey = "shopper"

func ShopperFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(shopperKey).(string)
	return v, ok && v != ""
}

// RequireShopper trusts the shopper id injected by the gateway after it
// verified the session token. The cart service must not be exposed directly.
func RequireShopper(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid := strings.TrimSpace(r.Header.Get(kit.ShopperHeader))
		if sid == "" {
			kit.WriteError(w, r, http.StatusUnauthorized, "no shopper", nil)
			return
		}
		ctx := context.WithValue(r.Context(), shopperKey, sid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
