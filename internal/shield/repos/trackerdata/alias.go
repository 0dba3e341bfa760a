package trackerdata

import (
	"errors"

	"github.com/haukened/rr-shield/internal/shield/common/utils"
)

var (
	// ErrAliasDepthExceeded is returned when a CNAME chain is longer than the
	// configured hop limit.
	ErrAliasDepthExceeded = errors.New("alias resolution max depth exceeded")
	// ErrAliasLoopDetected is returned when a previously visited host
	// reappears in the CNAME chain.
	ErrAliasLoopDetected = errors.New("alias loop detected")
)

// chaseState captures progress during a single chase.
type chaseState struct {
	visited map[string]struct{}
	depth   int
	current string
}

// chase follows cnames from host until a host without alias is reached. It
// returns the final host; on error the returned host is the original one.
func (m *Manager) chase(cnames map[string]string, host string) (string, error) {
	if _, ok := cnames[host]; !ok {
		return host, nil
	}
	st := chaseState{visited: map[string]struct{}{host: {}}, current: host}
	for {
		next, ok := cnames[st.current]
		if !ok {
			return st.current, nil
		}
		next = utils.CanonicalHost(next)
		if err := m.guardDepth(&st, host); err != nil {
			return host, err
		}
		if err := m.guardLoop(&st, host, next); err != nil {
			return host, err
		}
		st.current = next
	}
}

// guardDepth increments and validates chain depth against the hop limit.
func (m *Manager) guardDepth(st *chaseState, host string) error {
	st.depth++
	if st.depth > m.maxHops {
		m.logger.Debug(map[string]any{
			"host":        host,
			"alias_name":  st.current,
			"alias_depth": st.depth,
		}, "Alias depth exceeded")
		return ErrAliasDepthExceeded
	}
	return nil
}

// guardLoop records next and reports a loop if it was already visited.
func (m *Manager) guardLoop(st *chaseState, host, next string) error {
	if _, ok := st.visited[next]; ok {
		m.logger.Debug(map[string]any{
			"host":        host,
			"alias_name":  next,
			"alias_depth": st.depth,
		}, "Alias loop detected")
		return ErrAliasLoopDetected
	}
	st.visited[next] = struct{}{}
	return nil
}
