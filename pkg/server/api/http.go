// Package api provides HTTP and WebSocket API endpoints for the oracle
// service.
package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/logging"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/metrics"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/oracle"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/oracle/adapters/pullreport"
)

// PriceData is a single canonical price point.
type PriceData struct {
	Asset    string `json:"asset"`
	Price    string `json:"price"`
	Decimals uint8  `json:"decimals"`
}

// ReportSubmission is the POST /v1/reports request body. Each report is a
// hex-encoded signed envelope.
type ReportSubmission struct {
	Reports []string `json:"reports"`
}

// Server represents the HTTP API server.
type Server struct {
	addr       string
	aggregator *oracle.Aggregator
	reports    *pullreport.Adapter // nil when no pull-report adapter is configured
	server     *http.Server
	logger     *logging.Logger
	cacheTTL   time.Duration

	mu        sync.RWMutex
	lastCache []PriceData
	cacheTime time.Time

	wsServer *WebSocketServer // Optional WebSocket server for streaming
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, agg *oracle.Aggregator, reports *pullreport.Adapter, cacheTTL time.Duration, logger *logging.Logger) *Server {
	return &Server{
		addr:       addr,
		aggregator: agg,
		reports:    reports,
		logger:     logger,
		cacheTTL:   cacheTTL,
	}
}

// SetWebSocketServer sets the WebSocket server for streaming updates.
func (s *Server) SetWebSocketServer(ws *WebSocketServer) {
	s.wsServer = ws
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/prices", s.handlePrices)
	mux.HandleFunc("/v1/prices/", s.handleAssetPrice)
	mux.HandleFunc("/v1/reports", s.handleReports)

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.logger.Info("Stopping HTTP server")
		return s.server.Shutdown(ctx)
	}
	return nil
}

// StartBroadcast periodically snapshots every asset's canonical price and
// pushes it to stream subscribers, so clients that never touch the HTTP
// endpoints still receive updates. Blocks until ctx is cancelled.
func (s *Server) StartBroadcast(ctx context.Context, interval time.Duration) {
	if s.wsServer == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			prices := s.snapshot(snapCtx)
			cancel()
			if len(prices) == 0 {
				continue
			}

			s.mu.Lock()
			s.lastCache = prices
			s.cacheTime = time.Now()
			s.mu.Unlock()

			s.wsServer.SendUpdate(prices)
		}
	}
}

// handleHealth handles /health endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RecordHTTPRequest("/health", "200", time.Since(start))
	}()

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePrices handles /v1/prices: every configured asset's canonical price.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "200"
	defer func() {
		metrics.RecordHTTPRequest("/v1/prices", status, time.Since(start))
	}()

	// Check cache
	s.mu.RLock()
	cached := s.lastCache
	fresh := time.Since(s.cacheTime) < s.cacheTTL && len(cached) > 0
	s.mu.RUnlock()
	if fresh {
		s.sendJSON(w, cached)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	prices := s.snapshot(ctx)
	if len(prices) == 0 {
		status = "503"
		http.Error(w, "No prices available", http.StatusServiceUnavailable)
		return
	}

	// Update cache
	s.mu.Lock()
	s.lastCache = prices
	s.cacheTime = time.Now()
	s.mu.Unlock()

	// Send to WebSocket clients if enabled
	if s.wsServer != nil {
		s.wsServer.SendUpdate(prices)
	}

	s.sendJSON(w, prices)
}

// handleAssetPrice handles /v1/prices/{asset}.
func (s *Server) handleAssetPrice(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "200"
	defer func() {
		metrics.RecordHTTPRequest("/v1/prices/{asset}", status, time.Since(start))
	}()

	asset := oracle.Address(strings.TrimPrefix(r.URL.Path, "/v1/prices/"))
	if asset.IsZero() {
		status = "400"
		http.Error(w, "Asset address required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	price, err := s.aggregator.GetPrice(ctx, asset)
	if err != nil {
		if errors.Is(err, oracle.ErrNoSourcesRegistered) {
			status = "404"
			http.Error(w, "Unknown asset", http.StatusNotFound)
			return
		}
		status = "503"
		s.logger.Error("Failed to price asset", "asset", string(asset), "error", err.Error())
		http.Error(w, "Price unavailable", http.StatusServiceUnavailable)
		return
	}

	decimals, err := s.aggregator.Decimals(asset)
	if err != nil {
		status = "503"
		http.Error(w, "Price unavailable", http.StatusServiceUnavailable)
		return
	}

	s.sendJSON(w, PriceData{
		Asset:    string(asset),
		Price:    price.String(),
		Decimals: decimals,
	})
}

// handleReports handles POST /v1/reports: hex-encoded signed report blobs.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "200"
	defer func() {
		metrics.RecordHTTPRequest("/v1/reports", status, time.Since(start))
	}()

	if r.Method != http.MethodPost {
		status = "405"
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.reports == nil {
		status = "404"
		http.Error(w, "Report posting not configured", http.StatusNotFound)
		return
	}

	var submission ReportSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		status = "400"
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(submission.Reports) == 0 {
		status = "400"
		http.Error(w, "No reports submitted", http.StatusBadRequest)
		return
	}

	blobs := make([][]byte, 0, len(submission.Reports))
	for _, encoded := range submission.Reports {
		blob, err := hex.DecodeString(strings.TrimPrefix(encoded, "0x"))
		if err != nil {
			status = "400"
			http.Error(w, "Invalid report encoding", http.StatusBadRequest)
			return
		}
		blobs = append(blobs, blob)
	}

	if err := s.reports.PostPrices(r.Context(), blobs); err != nil {
		switch {
		case errors.Is(err, oracle.ErrReportAlreadySet):
			status = "409"
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, pullreport.ErrMalformedReport),
			errors.Is(err, pullreport.ErrBadSignature),
			errors.Is(err, pullreport.ErrNotEnoughSignatures):
			status = "400"
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			status = "500"
			s.logger.Error("Failed to store reports", "error", err.Error())
			http.Error(w, "Failed to store reports", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// snapshot prices every configured asset, skipping the ones that fail.
func (s *Server) snapshot(ctx context.Context) []PriceData {
	assets := s.aggregator.Assets()
	prices := make([]PriceData, 0, len(assets))
	for _, asset := range assets {
		price, err := s.aggregator.GetPrice(ctx, asset)
		if err != nil {
			s.logger.Warn("Skipping unpriceable asset", "asset", string(asset), "error", err.Error())
			continue
		}
		decimals, err := s.aggregator.Decimals(asset)
		if err != nil {
			continue
		}
		prices = append(prices, PriceData{
			Asset:    string(asset),
			Price:    price.String(),
			Decimals: decimals,
		})
	}
	return prices
}

// sendJSON sends a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err.Error())
	}
}
