// Command concierged runs the concierge routing core behind an HTTP
// transport.
//
// Endpoints:
//
//	POST /v1/messages             - route one user message
//	GET  /v1/threads/{id}/history - chronological thread messages
//	GET  /v1/capabilities         - registered tools and providers
//	GET  /metrics                 - Prometheus metrics
//	GET  /healthz                 - liveness probe
//
// Configuration is loaded from a YAML file (see config.Load for the
// discovery order) with CONCIERGE_* environment overrides.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conciergekit/concierge"
	"github.com/conciergekit/concierge/auth"
	"github.com/conciergekit/concierge/config"
	"github.com/conciergekit/concierge/logging"
	"github.com/conciergekit/concierge/memory"
	"github.com/conciergekit/concierge/metrics"
	"github.com/conciergekit/concierge/model"
	"github.com/conciergekit/concierge/model/anthropic"
	"github.com/conciergekit/concierge/model/gemini"
	"github.com/conciergekit/concierge/model/openai"
	"github.com/conciergekit/concierge/orchestrator"
	"github.com/conciergekit/concierge/tool"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "concierged:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(&logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := buildProviders(ctx, cfg.Model.Providers)
	if err != nil {
		return fmt.Errorf("building providers: %w", err)
	}

	authn, err := buildAuthenticator(cfg.Auth)
	if err != nil {
		return fmt.Errorf("building authenticator: %w", err)
	}

	c := concierge.New(providers, func(o *concierge.Options) {
		o.Logger = logger
		o.Authenticator = authn
		o.Memory = memory.NewInMemoryStore(func(mo *memory.InMemoryOptions) {
			mo.RetainCheckpoints = cfg.Memory.RetainCheckpoints
		})
		o.ProviderCallTimeout = cfg.Model.CallTimeout.Std()
		o.ToolTimeout = cfg.Tools.Timeout.Std()
	})
	c.RegisterTools(
		tool.NewWeatherTool(os.Getenv("OPENWEATHER_API_KEY")),
		tool.NewWebSearchTool(),
		tool.NewNotesTool(),
		tool.NewShellTool(tool.DefaultCommandPolicy()),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/messages", handleMessage(c, logger))
	mux.HandleFunc("GET /v1/threads/{id}/history", handleHistory(c))
	mux.HandleFunc("GET /v1/capabilities", handleCapabilities(c))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr, "providers", len(providers))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// buildProviders instantiates the configured fallback chain in preference
// order.
func buildProviders(ctx context.Context, configs []config.ProviderConfig) ([]model.Provider, error) {
	providers := make([]model.Provider, 0, len(configs))
	for _, pc := range configs {
		apiKey := ""
		if pc.APIKeyEnv != "" {
			apiKey = os.Getenv(pc.APIKeyEnv)
		}

		switch pc.Name {
		case "anthropic":
			providers = append(providers, anthropic.New(func(o *anthropic.Options) {
				if pc.Model != "" {
					o.Model = pc.Model
				}
				if pc.MaxTokens > 0 {
					o.MaxTokens = int64(pc.MaxTokens)
				}
				if pc.Temperature != nil {
					o.Temperature = *pc.Temperature
				}
				o.APIKey = apiKey
			}))
		case "openai":
			providers = append(providers, openai.New(func(o *openai.Options) {
				if pc.Model != "" {
					o.Model = pc.Model
				}
				if pc.MaxTokens > 0 {
					o.MaxCompletionTokens = int64(pc.MaxTokens)
				}
				if pc.Temperature != nil {
					o.Temperature = *pc.Temperature
				}
				o.APIKey = apiKey
			}))
		case "gemini":
			p, err := gemini.New(ctx, func(o *gemini.Options) {
				if pc.Model != "" {
					o.Model = pc.Model
				}
				if pc.MaxTokens > 0 {
					o.MaxTokens = int32(pc.MaxTokens)
				}
				if pc.Temperature != nil {
					o.Temperature = float32(*pc.Temperature)
				}
				o.APIKey = apiKey
			})
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		default:
			return nil, fmt.Errorf("unknown provider %q", pc.Name)
		}
	}
	return providers, nil
}

func buildAuthenticator(cfg config.AuthConfig) (auth.Authenticator, error) {
	if cfg.JWTSecretEnv == "" {
		return auth.NewStaticAuthenticator(nil), nil
	}
	secret := os.Getenv(cfg.JWTSecretEnv)
	if secret == "" {
		return nil, fmt.Errorf("environment variable %s is empty", cfg.JWTSecretEnv)
	}
	return auth.NewJWTAuthenticator([]byte(secret), func(o *auth.JWTOptions) {
		o.Issuer = cfg.Issuer
		o.Audience = cfg.Audience
	}), nil
}

func handleMessage(c *concierge.Concierge, logger logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req orchestrator.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Credential == "" {
			req.Credential = bearerToken(r)
		}
		if req.ThreadID == "" {
			writeError(w, http.StatusBadRequest, "thread_id is required")
			return
		}

		resp, err := c.Send(r.Context(), req)
		if err != nil {
			logger.Error("request failed", "thread_id", req.ThreadID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleHistory(c *concierge.Concierge) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := c.History(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
	}
}

func handleCapabilities(c *concierge.Concierge) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, c.Capabilities())
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
