package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goMFA "github.com/MrEthical07/goMFA"
	"github.com/MrEthical07/goMFA/store/memory"
)

type users struct{}

func (users) GetUser(_ context.Context, userID string) (goMFA.User, error) {
	if userID != "u1" {
		return goMFA.User{}, errors.New("no such user")
	}
	return goMFA.User{ID: "u1", Email: "alice@example.com"}, nil
}

func newEngine(t *testing.T) *goMFA.Engine {
	t.Helper()
	cfg := goMFA.DefaultConfig()
	cfg.DeviceTrust.Enabled = true
	cfg.DeviceTrust.SigningMethod = "hs256"
	cfg.DeviceTrust.PrivateKey = []byte(strings.Repeat("k", 32))

	engine, err := goMFA.New().
		WithConfig(cfg).
		WithStore(memory.New()).
		WithUserDirectory(users{}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func headerUser(r *http.Request) string { return r.Header.Get("X-User") }

func TestRequestMetadata(t *testing.T) {
	var got goMFA.RequestContext
	h := RequestMetadata(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, _ = goMFA.RequestContextFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	req.Header.Set("User-Agent", "test-agent")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got.IP != "203.0.113.9" || got.UserAgent != "test-agent" {
		t.Fatalf("unexpected request context %+v", got)
	}
}

func TestDeviceTrustAcceptsValidToken(t *testing.T) {
	engine := newEngine(t)
	trust := engine.TrustDevice(context.Background(), "u1", "laptop")
	if !trust.OK() {
		t.Fatalf("TrustDevice: %v", trust)
	}

	var (
		found  bool
		device goMFA.DeviceTrust
	)
	h := DeviceTrust(engine, headerUser)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		device, found = TrustedDeviceFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User", "u1")
	req.AddCookie(&http.Cookie{Name: DeviceCookieName, Value: trust.Value.Token})
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !found || device.Device.Fingerprint != trust.Value.Device.Fingerprint {
		t.Fatalf("expected trusted device in context, got %v %+v", found, device)
	}
}

func TestDeviceTrustPassesThroughWithoutTrust(t *testing.T) {
	engine := newEngine(t)
	trust := engine.TrustDevice(context.Background(), "u1", "laptop")

	cases := map[string]func(*http.Request){
		"no token": func(r *http.Request) { r.Header.Set("X-User", "u1") },
		"no user":  func(r *http.Request) { r.Header.Set(DeviceTokenHeader, trust.Value.Token) },
		"garbage": func(r *http.Request) {
			r.Header.Set("X-User", "u1")
			r.Header.Set(DeviceTokenHeader, "not-a-token")
		},
		"other user": func(r *http.Request) {
			r.Header.Set("X-User", "u2")
			r.Header.Set(DeviceTokenHeader, trust.Value.Token)
		},
	}
	for name, prepare := range cases {
		t.Run(name, func(t *testing.T) {
			called := false
			h := DeviceTrust(engine, headerUser)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				if _, ok := TrustedDeviceFromContext(r.Context()); ok {
					t.Fatal("unexpected trusted device")
				}
				w.WriteHeader(http.StatusNoContent)
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			prepare(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if !called || rec.Code != http.StatusNoContent {
				t.Fatalf("request should pass through, called=%v code=%d", called, rec.Code)
			}
		})
	}
}

func TestDeviceCookies(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rec := httptest.NewRecorder()
	SetDeviceCookie(rec, req, "tok", time.Now().Add(time.Hour))
	c := rec.Result().Cookies()
	if len(c) != 1 || c[0].Name != DeviceCookieName || c[0].Value != "tok" || !c[0].HttpOnly || c[0].MaxAge <= 0 {
		t.Fatalf("unexpected cookie %+v", c)
	}

	rec = httptest.NewRecorder()
	SetDeviceCookie(rec, req, "tok", time.Now().Add(-time.Minute))
	c = rec.Result().Cookies()
	if len(c) != 1 || c[0].MaxAge >= 0 {
		t.Fatalf("expired token should clear the cookie, got %+v", c)
	}
}
