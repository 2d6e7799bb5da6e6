// Package mastermind is the public entry point for the mastermind
// storage-topology cache engine: a client-side cache that keeps an
// eventually-consistent view of namespace-to-storage-group mappings fetched
// from a mastermind control service, so callers can pick where to read or
// write without a network round trip per request.
//
// This file is a thin re-export over internal/facade, following the
// teacher's internal/app/application.go pattern of one small entry point
// wiring already-built collaborators rather than owning their logic.
package mastermind

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"mastermindcache/internal/domain"
	"mastermindcache/internal/facade"
)

// Options are the cache engine's construction parameters.
type Options = domain.Options

// CoupleInfo is the value returned by PickGroups/CoupleSequence draws.
type CoupleInfo = domain.CoupleInfo

// Sentinel errors surfaced by the cache engine; match with errors.Is.
var (
	ErrCoupleNotFound           = domain.ErrCoupleNotFound
	ErrNotEnoughMemory          = domain.ErrNotEnoughMemory
	ErrUnknownNamespace         = domain.ErrUnknownNamespace
	ErrInvalidGroupsCount       = domain.ErrInvalidGroupsCount
	ErrCacheIsExpired           = domain.ErrCacheIsExpired
	ErrUpdateLoopAlreadyStarted = domain.ErrUpdateLoopAlreadyStarted
	ErrUpdateLoopAlreadyStopped = domain.ErrUpdateLoopAlreadyStopped
	ErrNamespaceNotFound        = domain.ErrNamespaceNotFound
	ErrRemotesEmpty             = domain.ErrRemotesEmpty
	ErrNotInitialized           = domain.ErrNotInitialized
)

// Cache is a running instance of the mastermind cache engine.
type Cache = facade.Cache

// NamespaceView is a published namespace snapshot, with the scoped
// accessors of spec.md §4.7 as methods.
type NamespaceView = facade.NamespaceView

// New builds a Cache from opts. logger and registerer may both be nil.
// The returned Cache is not started; call Start to begin the background
// refresh loop.
func New(opts Options, logger *zap.Logger, registerer prometheus.Registerer) (*Cache, error) {
	return facade.New(opts, nil, logger, registerer)
}

// NewWithDialer is New, but lets the caller supply a custom domain.Dialer
// (tests, or an alternate transport). Most callers want New.
func NewWithDialer(opts Options, dialer domain.Dialer, logger *zap.Logger, registerer prometheus.Registerer) (*Cache, error) {
	return facade.New(opts, dialer, logger, registerer)
}
