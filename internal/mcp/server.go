package mcp

import (
	"go.uber.org/zap"

	"codewarden/internal/ai"
	"codewarden/internal/analyzer"
	"codewarden/internal/config"
	"codewarden/internal/contextstore"
	"codewarden/internal/firewall"
	"codewarden/internal/quality"
	"codewarden/internal/store"
)

// Server is the shared state threaded through the request path: tool
// registry, storage handle, subsystems, admission gate, and metrics. All
// fields are set at construction and never reassigned.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	analyzer *analyzer.Analyzer
	context  *contextstore.ContextStore
	guardian *quality.Guardian
	firewall *firewall.Firewall
	ai       ai.Capability

	registry  *Registry
	admission *Admission
	metrics   *Metrics
	log       *zap.Logger
}

// NewServer wires the subsystems over one store and registers the full tool
// catalog.
func NewServer(cfg *config.Config, st *store.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:       cfg,
		store:     st,
		analyzer:  analyzer.New(st),
		context:   contextstore.New(st),
		guardian:  quality.New(st),
		firewall:  firewall.New(st),
		ai:        ai.FromKey(cfg.AnthropicAPIKey),
		registry:  NewRegistry(),
		admission: NewAdmission(cfg),
		metrics:   NewMetrics(),
		log:       logger,
	}
	s.registerMemoryTools()
	s.registerCodeTools()
	s.registerContextTools()
	s.registerQualityTools()
	s.registerFirewallTools()
	s.log.Info("tool registry built",
		zap.Int("tools", s.registry.Len()),
		zap.Bool("ai", s.ai.Available()))
	return s
}

// Registry exposes the tool table, e.g. for the info endpoint.
func (s *Server) Registry() *Registry { return s.registry }

// Metrics exposes the request aggregates.
func (s *Server) Metrics() *Metrics { return s.metrics }
