package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	goMFA "github.com/MrEthical07/goMFA"
)

const (
	// DeviceTokenHeader carries a device token for non-browser clients.
	DeviceTokenHeader = "X-MFA-Device-Token"
	// DeviceCookieName is the cookie SetDeviceCookie writes.
	DeviceCookieName = "mfa_device"
)

type deviceTrustContextKey struct{}

// TrustedDeviceFromContext returns the device DeviceTrust accepted for
// this request.
func TrustedDeviceFromContext(ctx context.Context) (goMFA.DeviceTrust, bool) {
	dt, ok := ctx.Value(deviceTrustContextKey{}).(goMFA.DeviceTrust)
	return dt, ok
}

// DeviceTrust checks the request's device token, if any, against the user
// returned by userID. Requests without a user or token, and requests whose
// token is rejected, pass through unchanged.
func DeviceTrust(engine *goMFA.Engine, userID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil || userID == nil {
				next.ServeHTTP(w, r)
				return
			}
			uid := userID(r)
			token := deviceToken(r)
			if uid == "" || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			res := engine.CheckDeviceTrust(r.Context(), uid, token)
			if !res.OK() {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), deviceTrustContextKey{}, res.Value)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func deviceToken(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(DeviceTokenHeader)); v != "" {
		return v
	}
	if c, err := r.Cookie(DeviceCookieName); err == nil {
		return c.Value
	}
	return ""
}

// SetDeviceCookie stores token until expiresAt. Secure is set when the
// request arrived over TLS.
func SetDeviceCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		ClearDeviceCookie(w, r)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     DeviceCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearDeviceCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     DeviceCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}
