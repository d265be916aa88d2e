package cluster

import (
	"fmt"

	"github.com/corvushealth/engine/internal/log"
	"github.com/corvushealth/engine/internal/session"
)

// Mode describes whether the engine is running standalone or as part of
// a cluster (spec §3 "cluster mode enabled selects block-allocated
// message IDs and a shared session store").
type Mode struct {
	Enabled bool
	Nodes   []string

	// StrictClusterSessions, when true, makes SessionCache return an
	// error instead of silently falling back to a local store when no
	// shared session cache is reachable (resolves the §9 Open Question
	// "fall back and warn" vs. "refuse to start" in favor of an explicit
	// opt-in for operators who want the stricter behavior).
	StrictClusterSessions bool
}

// SessionCache selects the session.Cache to use: shared when reachable,
// otherwise a local session.Store with a warning, unless
// StrictClusterSessions demands an error instead.
func (m Mode) SessionCache(shared session.Cache, sharedErr error) (session.Cache, error) {
	if !m.Enabled {
		return session.NewStore(), nil
	}
	if sharedErr == nil && shared != nil {
		return shared, nil
	}
	if m.StrictClusterSessions {
		return nil, fmt.Errorf("cluster: shared session cache unreachable and StrictClusterSessions is set: %w", sharedErr)
	}
	log.Get().WithError(sharedErr).Warn("cluster: shared session cache unreachable, falling back to a local session store")
	return session.NewStore(), nil
}
