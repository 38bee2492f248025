package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mapleandrye/backend-bakeshop/internal/address"
	"github.com/mapleandrye/backend-bakeshop/internal/auth"
	"github.com/mapleandrye/backend-bakeshop/internal/cart"
	"github.com/mapleandrye/backend-bakeshop/internal/catalog"
	"github.com/mapleandrye/backend-bakeshop/internal/checkout"
	"github.com/mapleandrye/backend-bakeshop/internal/common"
	"github.com/mapleandrye/backend-bakeshop/internal/config"
	"github.com/mapleandrye/backend-bakeshop/internal/events"
	"github.com/mapleandrye/backend-bakeshop/internal/health"
	"github.com/mapleandrye/backend-bakeshop/internal/notify"
	"github.com/mapleandrye/backend-bakeshop/internal/obs"
	"github.com/mapleandrye/backend-bakeshop/internal/order"
	"github.com/mapleandrye/backend-bakeshop/internal/payment"
	"github.com/mapleandrye/backend-bakeshop/internal/ratelimit"
	"github.com/mapleandrye/backend-bakeshop/internal/resilience"
	"github.com/mapleandrye/backend-bakeshop/internal/security"
	"github.com/mapleandrye/backend-bakeshop/internal/shipping"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "bakeshop")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "bakeshop-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := mustInitRedis(ctx, cfg, logger, metricsEnabled)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	validate := validator.New()

	outboundClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	carrierHTTP := resilience.HTTPClient{
		Client:      outboundClient,
		Breaker:     resilience.NewBreaker(envInt("CIRCUIT_CARRIER_MIN_REQ", 10), envFloat("CIRCUIT_CARRIER_FAILURE_RATE", 0.5), envDurationMillis("CIRCUIT_CARRIER_OPEN_FOR_MS", 30000)),
		BaseBackoff: 200 * time.Millisecond,
		MaxAttempts: 2,
		Jitter:      0.2,
		Timeout:     cfg.ShippingCallTimeout,
	}
	uspsClient := &shipping.USPSClient{
		BaseURL:      cfg.USPSBaseURL,
		ClientID:     cfg.USPSClientID,
		ClientSecret: cfg.USPSClientSecret,
		HTTP:         carrierHTTP,
	}
	quoter := &shipping.Quoter{
		Carrier:      uspsClient,
		OriginZIP:    cfg.OriginZIP,
		MaxAttempts:  cfg.ShippingMaxAttempts,
		RetryBackoff: cfg.ShippingRetryBackoff,
		StaggerStep:  cfg.ShippingStaggerStep,
		Logger:       logger,
	}
	shippingHandler := &shipping.Handler{Quoter: quoter}

	addressValidator := &address.Validator{
		BaseURL: cfg.USPSBaseURL,
		Tokens:  uspsClient,
		HTTP:    carrierHTTP,
	}
	addressHandler := &address.Handler{Validator: addressValidator, Validate: validate}

	cmsHTTP := resilience.HTTPClient{
		Client:      outboundClient,
		Breaker:     resilience.NewBreaker(envInt("CIRCUIT_CMS_MIN_REQ", 10), envFloat("CIRCUIT_CMS_FAILURE_RATE", 0.5), envDurationMillis("CIRCUIT_CMS_OPEN_FOR_MS", 15000)),
		BaseBackoff: 100 * time.Millisecond,
		MaxAttempts: 3,
		Jitter:      0.2,
		Timeout:     5 * time.Second,
	}
	cmsClient := &catalog.CMSClient{
		BaseURL:     cfg.CMSBaseURL,
		SpaceID:     cfg.CMSSpaceID,
		Environment: cfg.CMSEnvironment,
		AccessToken: cfg.CMSAccessToken,
		HTTP:        cmsHTTP,
	}
	catalogService := &catalog.Service{
		CMS:    cmsClient,
		Cache:  catalog.NewCache(redisClient, cfg.CMSCacheTTL),
		Logger: logger,
	}
	catalogHandler := &catalog.Handler{Service: catalogService}

	registry := cart.NewRegistry(cfg.CartTTL)
	registry.StartSweeper(ctx, envDurationMillis("CART_SWEEP_INTERVAL_MS", 60000))
	cartHandler := &cart.Handler{
		Registry: registry,
		Products: catalog.CartSource{Service: catalogService},
		TaxBps:   cfg.TaxRateBps,
		Currency: cfg.CurrencyCode,
	}

	orders := order.NewStore(cfg.OrderTTL)
	go sweepOrders(ctx, orders, envDurationMillis("ORDER_SWEEP_INTERVAL_MS", 300000), logger)

	taskOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task queue")
	}
	taskClient := asynq.NewClient(taskOpt)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	bus := &events.Bus{Notifiers: []events.Notifier{notify.Enqueuer{Client: taskClient}}}
	shippingHandler.Events = bus

	providers := map[string]payment.Provider{
		"payu": payment.PayU{
			APIKey:      cfg.PayUAPIKey,
			MerchantID:  cfg.PayUMerchantID,
			AccountID:   cfg.PayUAccountID,
			CheckoutURL: cfg.PayUBaseURL,
			Test:        cfg.PayUTestMode,
		},
		"stripe": payment.Stripe{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			BaseURL:       cfg.StripeBaseURL,
			HTTP: resilience.HTTPClient{
				Client:      outboundClient,
				BaseBackoff: 200 * time.Millisecond,
				MaxAttempts: 2,
				Jitter:      0.2,
				Timeout:     10 * time.Second,
			},
		},
	}

	checkoutSvc := &checkout.Service{
		Carts:           registry,
		Orders:          orders,
		Providers:       providers,
		DefaultProvider: cfg.PaymentProvider,
		TaxBps:          cfg.TaxRateBps,
		Currency:        cfg.CurrencyCode,
		CallbackBaseURL: cfg.PaymentCallbackBaseURL,
		Events:          bus,
	}
	checkoutHandler := &checkout.Handler{Service: checkoutSvc, Validate: validate}

	webhookHandler := payment.Webhook{
		Providers: providers,
		Orders:    orders,
		Replay:    redisClient,
		ReplayTTL: cfg.WebhookReplayTTL,
		Events:    bus,
	}

	var mail common.EmailSender = common.NopEmailSender{}
	if cfg.EmailEnabled {
		mail = notify.SMTPMailer{
			Addr:     cfg.SMTPHost + ":" + strconv.Itoa(cfg.SMTPPort),
			Host:     cfg.SMTPHost,
			From:     cfg.EmailFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		}
	}
	emailWorker := notify.EmailWorker{Mail: mail, Orders: orders, Logger: logger, Events: bus, Merchant: cfg.MerchantEmail}
	taskServer := asynq.NewServer(taskOpt, asynq.Config{
		Concurrency: envInt("TASK_CONCURRENCY", 5),
	})
	if err := taskServer.Start(emailWorker.Mux()); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	defer taskServer.Shutdown()

	authMiddleware := auth.Middleware{}
	if cfg.AuthJWKSURL != "" {
		authMiddleware.Verifier = &auth.Verifier{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}
	}
	authHandler := auth.Handler{}

	carrierLimiter, err := ratelimit.New(redisClient, cfg.ShippingRateLimit, "rl:carrier")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}
	carrierLimit := ratelimit.Middleware{Limiter: carrierLimiter, Logger: logger}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enabled: envBool("SECURE_HEADERS", true),
		HSTS:    envBool("SECURE_HSTS", false),
	}.Middleware)
	r.Use(security.MaxBody{Bytes: int64(envInt("SECURE_MAX_BODY_BYTES", 1<<20))}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Idempotency-Key"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker: readinessChecker{
			redis:  redisClient,
			client: &http.Client{},
			cmsURL: fmt.Sprintf("%s/spaces/%s/environments/%s/entries?limit=1&access_token=%s", strings.TrimRight(cfg.CMSBaseURL, "/"), cfg.CMSSpaceID, cfg.CMSEnvironment, cfg.CMSAccessToken),
		},
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
		CMSTimeout:   envDurationMillis("HEALTH_READY_CMS_TIMEOUT_MS", 1000),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(authMiddleware.Authenticate)

		v.Get("/products", catalogHandler.ListProducts)
		v.Get("/products/{id}", catalogHandler.GetProduct)
		v.Get("/pages/{slug}", catalogHandler.GetPage)

		v.Get("/states", addressHandler.States)
		v.With(carrierLimit.Handle).Post("/address/validate", addressHandler.Standardize)
		v.With(carrierLimit.Handle).Post("/shipping/rates", shippingHandler.Rates)

		v.Route("/carts", func(c chi.Router) {
			c.Get("/{id}", cartHandler.Get)
			c.Group(func(g chi.Router) {
				g.Use(idem.Middleware)
				g.Post("/", cartHandler.Create)
				g.Post("/{id}/items", cartHandler.AddItem)
				g.Delete("/{id}/items/{productId}", cartHandler.RemoveItem)
				g.Delete("/{id}/items", cartHandler.Clear)
			})
		})

		v.With(idem.Middleware).Post("/checkout", checkoutHandler.Checkout)
		v.Get("/orders/{id}", checkoutHandler.GetOrder)

		v.Post("/payments/webhook/{provider}", webhookHandler.Handle)

		v.Group(func(a chi.Router) {
			a.Use(authMiddleware.RequireAuth)
			a.Get("/account/me", authHandler.Me)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown http server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server shutdown complete")
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metricsEnabled bool) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func sweepOrders(ctx context.Context, orders *order.Store, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := orders.Sweep(); evicted > 0 {
				logger.Debug().Int("evicted", evicted).Msg("swept expired orders")
			}
		}
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	redis  *redis.Client
	client *http.Client
	cmsURL string
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func (c readinessChecker) PingCMS(ctx context.Context, timeout time.Duration) error {
	if c.client == nil || c.cmsURL == "" {
		return errors.New("cms not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cmsURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("cms returned %d", resp.StatusCode)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="pprof"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
