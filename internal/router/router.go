package router

import (
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lumichess/account-service/internal/account"
	"github.com/lumichess/account-service/internal/token"
	"github.com/lumichess/account-service/internal/verification"
	"github.com/lumichess/account-service/pkg/utilities"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware returns a middleware that logs requests at debug level
// with a per-request id.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := utilities.NewKSUID()
			w.Header().Set("X-Request-Id", requestID)
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
// It is intentionally simple and conservative so it works with most setups.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prevent MIME sniffing
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Clickjacking protection
			w.Header().Set("X-Frame-Options", "DENY")

			// Referrer policy
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")

			// Permissions policy (formerly Feature-Policy) - tighten common features
			// allow none for camera, microphone, geolocation by default
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}

			// HSTS - instruct browsers to use HTTPS for future requests. Only set if request is over TLS.
			if r.TLS != nil {
				// 30 days by default
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware allows the configured frontend origin with credentials.
func CORSMiddleware(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = os.Getenv("FRONTEND_URL")
	}
	if origin == "" {
		origin = "http://localhost:3000"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthMiddleware validates the bearer token and injects claims into the
// request context. Missing token is 401, invalid token is 403.
func AuthMiddleware(tokens *token.Service) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeJSONError(w, http.StatusUnauthorized, "token required")
				return
			}
			claims, err := tokens.Validate(raw)
			if err != nil {
				writeJSONError(w, http.StatusForbidden, "invalid token")
				return
			}
			next(w, r.WithContext(token.ContextWithClaims(r.Context(), claims)))
		}
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
func RegisterRoutes(accounts *account.Handler, codes *verification.Handler, tokens *token.Service, logger *zap.SugaredLogger) http.Handler {
	mux := http.NewServeMux()
	auth := AuthMiddleware(tokens)

	// health
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"running"}`))
	})

	// public auth routes
	mux.HandleFunc("POST /api/auth/register", accounts.Register)
	mux.HandleFunc("POST /api/auth/login", accounts.Login)
	mux.HandleFunc("POST /api/auth/google", accounts.GoogleAuth)
	mux.HandleFunc("POST /api/auth/google/register", accounts.GoogleRegister)
	mux.HandleFunc("POST /api/auth/forgot-password", codes.ForgotPassword)
	mux.HandleFunc("POST /api/auth/verify-reset-code", codes.VerifyResetCode)
	mux.HandleFunc("POST /api/auth/reset-password", codes.ResetPassword)

	// authenticated routes
	mux.HandleFunc("GET /api/auth/me", auth(accounts.Me))
	mux.HandleFunc("PUT /api/auth/update", auth(accounts.Update))
	mux.HandleFunc("DELETE /api/auth/delete", auth(accounts.Delete))
	mux.HandleFunc("POST /api/auth/send-verification", auth(codes.SendVerification))
	mux.HandleFunc("POST /api/auth/verify-email", auth(codes.VerifyEmail))

	// wrap with CORS then security headers then logging
	handler := LoggingMiddleware(logger)(SecurityHeadersMiddleware()(CORSMiddleware("")(mux)))
	return handler
}
