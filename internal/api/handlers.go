package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"multichain-wallet-api/internal/aggregator"
	"multichain-wallet-api/internal/auth"
	"multichain-wallet-api/internal/config"
	"multichain-wallet-api/internal/logger"
	"multichain-wallet-api/internal/logos"
	"multichain-wallet-api/internal/middleware"
	"multichain-wallet-api/internal/models"
	"multichain-wallet-api/internal/providers"
	"multichain-wallet-api/internal/ratelimit"
	"multichain-wallet-api/internal/reconcile"
	"multichain-wallet-api/internal/utxo"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	configuration *config.Config
	logger        *logger.Logger
	startTime     time.Time

	aggregator   *aggregator.Aggregator
	directory    *providers.Directory
	utxoService  *utxo.Service
	logoResolver *logos.Resolver
	rateLimiter  *ratelimit.Limiter
	authService  *auth.Service
	reconcileJob *reconcile.Job // nil when no database is configured
}

// HandlerConfig bundles the dependencies for NewHandlers.
type HandlerConfig struct {
	Configuration *config.Config
	Logger        *logger.Logger
	Aggregator    *aggregator.Aggregator
	Directory     *providers.Directory
	UTXOService   *utxo.Service
	LogoResolver  *logos.Resolver
	RateLimiter   *ratelimit.Limiter
	AuthService   *auth.Service
	ReconcileJob  *reconcile.Job
}

// NewHandlers creates a new handlers instance
func NewHandlers(cfg HandlerConfig) *Handlers {
	return &Handlers{
		configuration: cfg.Configuration,
		logger:        cfg.Logger,
		startTime:     time.Now(),
		aggregator:    cfg.Aggregator,
		directory:     cfg.Directory,
		utxoService:   cfg.UTXOService,
		logoResolver:  cfg.LogoResolver,
		rateLimiter:   cfg.RateLimiter,
		authService:   cfg.AuthService,
		reconcileJob:  cfg.ReconcileJob,
	}
}

// SetupRoutes configures all the routes using Gin
func (handlers *Handlers) SetupRoutes() *gin.Engine {
	// Set Gin mode based on environment
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Add custom Gin middleware
	router.Use(middleware.RequestLogger(handlers.logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestID())
	router.Use(handlers.corsMiddleware())

	csrfExempt := map[string]bool{
		"/api/v1/cron/onramp-reconcile": true,
	}
	router.Use(middleware.CSRF(csrfExempt))

	// Add rate limiting middleware if enabled
	if handlers.rateLimiter != nil {
		router.Use(handlers.rateLimitMiddleware())
	}

	// Health check endpoint
	router.GET("/health", handlers.HealthCheck)

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/csrf-token", middleware.IssueCSRFToken(handlers.configuration.CSRFSecureCookie))

		// Quote routes
		apiV1.GET("/quote/:provider", handlers.GetProviderQuote)
		apiV1.GET("/aggregate/quotes", handlers.GetAggregatedQuotes)

		// Signed widget URL routes
		apiV1.GET("/sign/moonpay", handlers.SignMoonPayURL)
		apiV1.GET("/sign/ramp", handlers.SignRampURL)

		// UTXO chain routes
		apiV1.GET("/utxo/fees", handlers.GetUTXOFees)
		apiV1.POST("/utxo/history", handlers.GetUTXOHistory)
		apiV1.POST("/utxo/utxos", handlers.GetUTXOs)
		apiV1.POST("/utxo/balance", handlers.GetUTXOBalance)

		apiV1.GET("/logo", handlers.GetLogo)

		// Reconciliation routes
		apiV1.GET("/cron/onramp-reconcile", handlers.CronReconcile)
		apiV1.POST("/onramper/reconcile", handlers.UserReconcile)
	}

	return router
}

// HealthCheck handles health check requests
func (handlers *Handlers) HealthCheck(context *gin.Context) {
	healthCheckResponse := models.HealthCheck{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   "1.0.0",
		Uptime:    time.Since(handlers.startTime).String(),
	}
	context.JSON(http.StatusOK, healthCheckResponse)
}

// quoteRequestFromQuery builds the normalized quote request from query
// parameters.
func quoteRequestFromQuery(context *gin.Context) providers.QuoteRequest {
	return providers.QuoteRequest{
		FromCurrency:  context.Query("from_currency"),
		ToCurrency:    context.Query("to_currency"),
		FromChain:     context.Query("from_chain"),
		ToChain:       context.Query("to_chain"),
		Amount:        context.Query("amount"),
		PaymentMethod: context.Query("payment_method"),
		Ranking:       context.Query("ranking"),
	}
}

// GetProviderQuote fetches a single provider's quote
func (handlers *Handlers) GetProviderQuote(context *gin.Context) {
	providerName := context.Param("provider")
	quoter, ok := handlers.directory.Quoter(providerName)
	if !ok {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "unknown provider", providerName)
		return
	}

	req := quoteRequestFromQuery(context)
	quote, err := quoter.GetQuote(context.Request.Context(), req)
	if err != nil {
		handlers.writeProviderError(context, err)
		return
	}
	context.JSON(http.StatusOK, quote)
}

// GetAggregatedQuotes fans the request out to all capable providers. Partial
// failure still answers 200 with per-provider errors embedded; only total
// failure or a malformed request is non-200.
func (handlers *Handlers) GetAggregatedQuotes(context *gin.Context) {
	req := quoteRequestFromQuery(context)

	quotes, err := handlers.aggregator.GetAggregatedQuotes(context.Request.Context(), req)
	if err != nil {
		var allFailed *aggregator.AllProvidersFailedError
		if errors.As(err, &allFailed) {
			context.JSON(http.StatusInternalServerError, gin.H{
				"error":    "all providers failed",
				"failures": allFailed.Failures,
				"quotes":   quotes,
			})
			return
		}
		handlers.writeProviderError(context, err)
		return
	}

	context.JSON(http.StatusOK, gin.H{
		"quotes":     quotes,
		"selectable": aggregator.Selectable(quotes, req.PaymentMethod),
	})
}

// widgetParamsFromQuery copies caller query parameters for signing, minus
// any attempt to smuggle in a signature or key.
func widgetParamsFromQuery(context *gin.Context) map[string]string {
	params := make(map[string]string)
	for key, values := range context.Request.URL.Query() {
		if key == "signature" || key == "apiKey" || key == "hostApiKey" {
			continue
		}
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return params
}

// SignMoonPayURL returns a server-signed MoonPay widget URL.
func (handlers *Handlers) SignMoonPayURL(context *gin.Context) {
	quoter, ok := handlers.directory.Quoter(config.ProviderMoonPay)
	if !ok {
		handlers.writeErrorResponse(context, http.StatusServiceUnavailable, "moonpay not configured", "")
		return
	}
	client := quoter.(*providers.MoonPayClient)
	signedURL, err := client.SignWidgetURL(widgetParamsFromQuery(context))
	if err != nil {
		handlers.writeProviderError(context, err)
		return
	}
	context.JSON(http.StatusOK, gin.H{"url": signedURL})
}

// SignRampURL returns a server-signed Ramp widget URL.
func (handlers *Handlers) SignRampURL(context *gin.Context) {
	quoter, ok := handlers.directory.Quoter(config.ProviderRamp)
	if !ok {
		handlers.writeErrorResponse(context, http.StatusServiceUnavailable, "ramp not configured", "")
		return
	}
	client := quoter.(*providers.RampClient)
	signedURL, err := client.SignWidgetURL(widgetParamsFromQuery(context))
	if err != nil {
		handlers.writeProviderError(context, err)
		return
	}
	context.JSON(http.StatusOK, gin.H{"url": signedURL})
}

type utxoRequest struct {
	Chain   string `json:"chain" binding:"required"`
	Address string `json:"address" binding:"required"`
	Limit   int    `json:"limit"`
}

// GetUTXOFees returns cached fee estimates for a chain
func (handlers *Handlers) GetUTXOFees(context *gin.Context) {
	chain := context.DefaultQuery("chain", "bitcoin")
	fees, err := handlers.utxoService.FeeEstimates(context.Request.Context(), chain)
	if err != nil {
		handlers.writeUTXOError(context, err)
		return
	}
	context.JSON(http.StatusOK, gin.H{"chain": chain, "fee_estimates": fees})
}

// GetUTXOHistory returns cached transaction history for an address
func (handlers *Handlers) GetUTXOHistory(context *gin.Context) {
	var req utxoRequest
	if err := context.ShouldBindJSON(&req); err != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	txs, err := handlers.utxoService.History(context.Request.Context(), req.Chain, req.Address, req.Limit)
	if err != nil {
		handlers.writeUTXOError(context, err)
		return
	}
	context.JSON(http.StatusOK, gin.H{"chain": req.Chain, "address": req.Address, "transactions": txs})
}

// GetUTXOs returns the cached unspent output set for an address
func (handlers *Handlers) GetUTXOs(context *gin.Context) {
	var req utxoRequest
	if err := context.ShouldBindJSON(&req); err != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	utxos, err := handlers.utxoService.UTXOs(context.Request.Context(), req.Chain, req.Address)
	if err != nil {
		handlers.writeUTXOError(context, err)
		return
	}
	context.JSON(http.StatusOK, gin.H{"chain": req.Chain, "address": req.Address, "utxos": utxos})
}

// GetUTXOBalance returns the cached balance for an address
func (handlers *Handlers) GetUTXOBalance(context *gin.Context) {
	var req utxoRequest
	if err := context.ShouldBindJSON(&req); err != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	balance, err := handlers.utxoService.Balance(context.Request.Context(), req.Chain, req.Address)
	if err != nil {
		handlers.writeUTXOError(context, err)
		return
	}
	context.JSON(http.StatusOK, balance)
}

// GetLogo resolves a token logo URL
func (handlers *Handlers) GetLogo(context *gin.Context) {
	chain := context.Query("chain")
	symbol := context.Query("symbol")
	logoURL, err := handlers.logoResolver.Resolve(context.Request.Context(), chain, symbol)
	if err != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "failed to resolve logo", err.Error())
		return
	}
	context.JSON(http.StatusOK, gin.H{"url": logoURL})
}

// CronReconcile runs a batch reconciliation sweep, triggered by an
// authenticated cron caller.
func (handlers *Handlers) CronReconcile(context *gin.Context) {
	if err := handlers.authService.CheckCron(context.Request); err != nil {
		handlers.writeAuthError(context, err)
		return
	}
	if handlers.reconcileJob == nil {
		handlers.writeErrorResponse(context, http.StatusServiceUnavailable, "reconciliation unavailable", "no database configured")
		return
	}

	maxRows := handlers.configuration.ReconcileMaxRows
	if raw := context.Query("max_rows"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= maxRows {
			maxRows = parsed
		}
	}

	summary, err := handlers.reconcileJob.Run(context.Request.Context(), reconcile.Options{MaxRows: maxRows})
	if err != nil {
		handlers.writeErrorResponse(context, http.StatusInternalServerError, "reconciliation sweep failed", err.Error())
		return
	}
	context.JSON(http.StatusOK, summary)
}

// UserReconcile runs an on-demand sweep scoped to the authenticated user's
// own records. The user id comes from the verified session token only.
func (handlers *Handlers) UserReconcile(context *gin.Context) {
	userID, err := handlers.authService.UserFromRequest(context.Request)
	if err != nil {
		handlers.writeAuthError(context, err)
		return
	}
	if handlers.reconcileJob == nil {
		handlers.writeErrorResponse(context, http.StatusServiceUnavailable, "reconciliation unavailable", "no database configured")
		return
	}

	summary, err := handlers.reconcileJob.Run(context.Request.Context(), reconcile.Options{
		MaxRows:      handlers.configuration.ReconcileMaxRows,
		UserID:       userID,
		IncludeFresh: true,
	})
	if err != nil {
		handlers.writeErrorResponse(context, http.StatusInternalServerError, "reconciliation sweep failed", err.Error())
		return
	}
	context.JSON(http.StatusOK, summary)
}

// writeProviderError maps provider-layer failures onto HTTP statuses.
func (handlers *Handlers) writeProviderError(context *gin.Context, err error) {
	switch {
	case errors.Is(err, providers.ErrUnsupportedChain), errors.Is(err, providers.ErrUnsupportedCurrency):
		handlers.writeErrorResponse(context, http.StatusBadRequest, "unsupported pair", err.Error())
	case errors.Is(err, providers.ErrNotConfigured):
		handlers.writeErrorResponse(context, http.StatusServiceUnavailable, "provider not configured", err.Error())
	default:
		var perr *providers.ProviderError
		if errors.As(err, &perr) {
			handlers.writeErrorResponse(context, http.StatusBadGateway, "provider request failed", perr.Error())
			return
		}
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid request", err.Error())
	}
}

// writeUTXOError maps chain-layer failures onto HTTP statuses. Address and
// chain validation failures are client errors; everything else is an
// upstream failure.
func (handlers *Handlers) writeUTXOError(context *gin.Context, err error) {
	switch {
	case errors.Is(err, utxo.ErrUnsupportedChain), errors.Is(err, utxo.ErrInvalidAddress):
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid request", err.Error())
	default:
		handlers.writeErrorResponse(context, http.StatusBadGateway, "chain backend request failed", err.Error())
	}
}

func (handlers *Handlers) writeAuthError(context *gin.Context, err error) {
	if errors.Is(err, auth.ErrNotConfigured) {
		handlers.writeErrorResponse(context, http.StatusServiceUnavailable, "auth not configured", "")
		return
	}
	handlers.writeErrorResponse(context, http.StatusUnauthorized, "unauthorized", err.Error())
}

// writeErrorResponse writes an error response using Gin context
func (handlers *Handlers) writeErrorResponse(context *gin.Context, statusCode int, errorMessage, errorDetails string) {
	errorResponse := models.ErrorResponse{
		Error:   errorMessage,
		Message: errorDetails,
		Code:    statusCode,
	}
	context.JSON(statusCode, errorResponse)
}

// corsMiddleware adds CORS headers using Gin middleware
func (handlers *Handlers) corsMiddleware() gin.HandlerFunc {
	return func(context *gin.Context) {
		context.Header("Access-Control-Allow-Origin", "*")
		context.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		context.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")

		if context.Request.Method == "OPTIONS" {
			context.AbortWithStatus(http.StatusOK)
			return
		}

		context.Next()
	}
}

// rateLimitMiddleware provides rate limiting using Gin middleware
func (handlers *Handlers) rateLimitMiddleware() gin.HandlerFunc {
	return func(context *gin.Context) {
		clientIP := handlers.rateLimiter.GetClientIP(context.Request)

		decision := handlers.rateLimiter.Check(clientIP,
			handlers.configuration.RateLimitRequests,
			handlers.configuration.RateLimitWindow)
		if decision.FailedOpen {
			handlers.logger.Warnf("Rate limiter failed open for IP: %s", clientIP)
		}
		if !decision.Allowed {
			handlers.logger.Warnf("Rate limit exceeded for IP: %s", clientIP)
			context.Header("X-RateLimit-Limit", strconv.Itoa(handlers.configuration.RateLimitRequests))
			context.Header("X-RateLimit-Remaining", "0")
			context.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(handlers.configuration.RateLimitWindow).Unix(), 10))
			context.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			context.Abort()
			return
		}

		context.Next()
	}
}
