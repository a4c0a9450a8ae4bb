// Package service is the boundary-facing facade over the registry, the
// admission policy and the negotiation orchestrator.
package service

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/xiaot623/dealroom/internal/adapter/auditlog"
	"github.com/xiaot623/dealroom/internal/config"
	"github.com/xiaot623/dealroom/internal/negotiation"
	"github.com/xiaot623/dealroom/internal/policy"
	"github.com/xiaot623/dealroom/internal/registry"
)

var (
	// ErrAdmissionDenied is returned when the admission policy refuses a
	// buyer/seller pair.
	ErrAdmissionDenied = errors.New("negotiation not admitted")
	// ErrInvalidRequest is returned for malformed boundary requests.
	ErrInvalidRequest = errors.New("invalid request")
)

type Service struct {
	registry     *registry.Registry
	orchestrator *negotiation.Orchestrator
	policyEngine *policy.Engine
	audit        auditlog.Log
	config       *config.Config
	logger       *zap.Logger

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New creates the service. policyEngine and audit may be nil.
func New(reg *registry.Registry, orch *negotiation.Orchestrator, policyEngine *policy.Engine, audit auditlog.Log, cfg *config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry:     reg,
		orchestrator: orch,
		policyEngine: policyEngine,
		audit:        audit,
		config:       cfg,
		logger:       logger.With(zap.String("component", "service")),
		entropy:      ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// newID returns a lexically sortable id.
func (s *Service) newID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Now(), s.entropy).String()
}
