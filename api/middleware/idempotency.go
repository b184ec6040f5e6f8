package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/rohanmalik/merakistore-backend/api/responses"
	pkgerrors "github.com/rohanmalik/merakistore-backend/pkg/errors"
	"github.com/rohanmalik/merakistore-backend/pkg/logger"
	pkgredis "github.com/rohanmalik/merakistore-backend/pkg/redis"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
)

type idempotencyRule struct {
	method string
	match  func(string) bool
	ttl    time.Duration
}

// Order placement and cancellation keep their records for a week since
// a client retrying those after a crash is the whole point of the key.
var idempotencyRules = []idempotencyRule{
	{method: http.MethodPost, match: pathIs("/api/v1/auth/register"), ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, match: pathIs("/api/v1/checkout/cod"), ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, match: pathWrapped("/api/v1/orders/", "/cancel"), ttl: criticalIdempotencyTTL},
}

// storedResponse is what a replay sends back: the original status,
// body and content type, plus the hash that detects body mismatches.
type storedResponse struct {
	Status      int    `json:"status"`
	Body        string `json:"body"`
	ContentType string `json:"content_type,omitempty"`
	RequestHash string `json:"request_hash"`
}

// Idempotency makes the covered POST endpoints safe to retry. A reused
// key with the same body replays the first response verbatim; a reused
// key with a different body is refused so two distinct orders can never
// share a key.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, covered := routeTTL(r.Method, requestPattern(r))
			if !covered || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			if clientKey == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			bodyHash := sha256.Sum256(body)
			requestHash := base64.StdEncoding.EncodeToString(bodyHash[:])

			// Scope includes the caller so two users can pick the same
			// key without colliding.
			scope := strings.Join([]string{UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
			key := store.IdempotencyKey(scope, clientKey)

			raw, getErr := store.Get(r.Context(), key)
			if getErr != nil && !errors.Is(getErr, redis.Nil) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, getErr, "check idempotency"))
				return
			}
			if raw != "" {
				var stored storedResponse
				if err := json.Unmarshal([]byte(raw), &stored); err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
					return
				}
				if stored.RequestHash != requestHash {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				replay(w, stored)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			record := storedResponse{
				Status:      capture.statusOr(http.StatusOK),
				Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
				ContentType: capture.Header().Get("Content-Type"),
				RequestHash: requestHash,
			}
			payload, err := json.Marshal(record)
			if err != nil {
				if logg != nil {
					logg.Error(r.Context(), "marshal idempotency record", err)
				}
				return
			}
			if _, err := store.SetNX(r.Context(), key, string(payload), ttl); err != nil && logg != nil {
				logg.Error(r.Context(), "persist idempotency record", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, stored storedResponse) {
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.WriteHeader(stored.Status)
	if decoded, err := base64.StdEncoding.DecodeString(stored.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

// requestPattern prefers the matched chi pattern and falls back to the
// raw path so the middleware also works when mounted before routing.
func requestPattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	if pattern == "" {
		return 0, false
	}
	for _, rule := range idempotencyRules {
		if rule.method == method && rule.match(pattern) {
			return rule.ttl, true
		}
	}
	return 0, false
}

func pathIs(path string) func(string) bool {
	return func(pattern string) bool { return pattern == path }
}

func pathWrapped(prefix, suffix string) func(string) bool {
	return func(pattern string) bool {
		return strings.HasPrefix(pattern, prefix) && strings.HasSuffix(pattern, suffix)
	}
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) statusOr(fallback int) int {
	if c.status == 0 {
		return fallback
	}
	return c.status
}

func (c *responseCapture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
