package counter

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ctavolazzi/mission-control/pkg/log"
	"github.com/ctavolazzi/mission-control/pkg/metrics"
)

// Kind names an entity family the service issues IDs for.
type Kind string

const (
	KindWorkEffort Kind = "workEffort"
	KindTicket     Kind = "ticket"
	KindCheckpoint Kind = "checkpoint"
)

// Context carries the breakdown dimensions for an allocation.
type Context struct {
	Repo     string
	ParentWE string
}

// Service issues monotonically increasing identifiers with durable,
// integrity-checked state. All mutations hold one lock and persist before
// returning.
type Service struct {
	mu    sync.Mutex
	path  string
	state *State
}

// NewService loads (or initializes) counter state at path. If the load
// recovered from a checksum mismatch, the recovered state is persisted
// immediately so the next load is clean.
func NewService(path string) (*Service, error) {
	state, err := LoadState(path)
	if err != nil {
		return nil, err
	}
	svc := &Service{path: path, state: state}
	if state.Integrity.ValidationStatus == "invalid" {
		svc.mu.Lock()
		err := svc.saveLocked()
		svc.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// saveLocked recomputes the checksum and writes state to disk. Callers must
// hold mu.
func (s *Service) saveLocked() error {
	s.state.Integrity.Checksum = s.state.Checksum()
	s.state.Integrity.ValidationStatus = "valid"
	s.state.Integrity.LastValidation = time.Now().UTC()
	return SaveState(s.path, s.state)
}

// GetNext increments the global counter for kind, plus the byRepo and (for
// tickets) byWorkEffort breakdowns named by ctx, and returns the new global
// value. The mutation is audited and persisted before returning.
func (s *Service) GetNext(kind Kind, ctx Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value int
	var counterPath string

	switch kind {
	case KindWorkEffort:
		s.state.Counters.WorkEfforts.Global++
		value = s.state.Counters.WorkEfforts.Global
		counterPath = "workEfforts.global"
		if ctx.Repo != "" {
			s.state.Counters.WorkEfforts.ByRepo[ctx.Repo]++
		}
	case KindTicket:
		s.state.Counters.Tickets.Global++
		value = s.state.Counters.Tickets.Global
		counterPath = "tickets.global"
		if ctx.ParentWE != "" {
			s.state.Counters.Tickets.ByWorkEffort[ctx.ParentWE]++
		}
		if ctx.Repo != "" {
			s.state.Counters.Tickets.ByRepo[ctx.Repo]++
		}
	case KindCheckpoint:
		s.state.Counters.Checkpoints.Global++
		value = s.state.Counters.Checkpoints.Global
		counterPath = "checkpoints.global"
	default:
		return 0, fmt.Errorf("unknown counter kind: %s", kind)
	}

	auditCtx := make(map[string]string)
	if ctx.Repo != "" {
		auditCtx["repo"] = ctx.Repo
	}
	if ctx.ParentWE != "" {
		auditCtx["parentWE"] = ctx.ParentWE
	}
	s.state.appendAudit(AuditEntry{
		Timestamp: time.Now().UTC(),
		Action:    "increment",
		Counter:   counterPath,
		Value:     value,
		Context:   auditCtx,
	})

	if err := s.saveLocked(); err != nil {
		return 0, err
	}
	metrics.CounterIncrementsTotal.WithLabelValues(string(kind)).Inc()
	return value, nil
}

// SetCounter administratively overrides the counter at a dotted path such as
// "tickets.byWorkEffort.WE-260501-ab12". Intermediate map entries are created
// as needed. The change is audited with both the old and new value.
func (s *Service) SetCounter(dottedPath string, value int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.setPathLocked(dottedPath, value)
	if err != nil {
		return err
	}

	oldValue, newValue := old, value
	s.state.appendAudit(AuditEntry{
		Timestamp: time.Now().UTC(),
		Action:    "set",
		Counter:   dottedPath,
		OldValue:  &oldValue,
		NewValue:  &newValue,
		Reason:    reason,
	})

	if err := s.saveLocked(); err != nil {
		return err
	}
	logger := log.WithComponent("counter")
	logger.Info().
		Str("counter", dottedPath).
		Int("oldValue", old).
		Int("newValue", value).
		Str("reason", reason).
		Msg("counter override")
	return nil
}

// setPathLocked walks the dotted path and replaces the target value,
// returning the previous one. Callers must hold mu.
func (s *Service) setPathLocked(dottedPath string, value int) (int, error) {
	parts := strings.Split(dottedPath, ".")
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid counter path: %s", dottedPath)
	}

	c := &s.state.Counters
	switch parts[0] {
	case "workEfforts":
		switch parts[1] {
		case "global":
			old := c.WorkEfforts.Global
			c.WorkEfforts.Global = value
			return old, nil
		case "byRepo":
			if len(parts) != 3 {
				return 0, fmt.Errorf("invalid counter path: %s", dottedPath)
			}
			old := c.WorkEfforts.ByRepo[parts[2]]
			c.WorkEfforts.ByRepo[parts[2]] = value
			return old, nil
		}
	case "tickets":
		switch parts[1] {
		case "global":
			old := c.Tickets.Global
			c.Tickets.Global = value
			return old, nil
		case "byWorkEffort":
			if len(parts) != 3 {
				return 0, fmt.Errorf("invalid counter path: %s", dottedPath)
			}
			old := c.Tickets.ByWorkEffort[parts[2]]
			c.Tickets.ByWorkEffort[parts[2]] = value
			return old, nil
		case "byRepo":
			if len(parts) != 3 {
				return 0, fmt.Errorf("invalid counter path: %s", dottedPath)
			}
			old := c.Tickets.ByRepo[parts[2]]
			c.Tickets.ByRepo[parts[2]] = value
			return old, nil
		}
	case "checkpoints":
		if parts[1] == "global" {
			old := c.Checkpoints.Global
			c.Checkpoints.Global = value
			return old, nil
		}
	}
	return 0, fmt.Errorf("unknown counter path: %s", dottedPath)
}

// GetCurrentCounters returns a deep copy of the counter sub-tree.
func (s *Service) GetCurrentCounters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.state.Counters)
}

// GetAuditLog returns up to limit most recent audit entries, newest last.
// limit <= 0 returns the full ring.
func (s *Service) GetAuditLog(limit int) []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.state.Audit
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]AuditEntry, len(entries))
	copy(out, entries)
	return out
}

// Statistics is a read-only summary of the counter state.
type Statistics struct {
	WorkEfforts      int       `json:"workEfforts"`
	Tickets          int       `json:"tickets"`
	Checkpoints      int       `json:"checkpoints"`
	ReposTracked     int       `json:"reposTracked"`
	AuditEntries     int       `json:"auditEntries"`
	LastValidation   time.Time `json:"lastValidation"`
	ValidationStatus string    `json:"validationStatus"`
}

// GetStatistics summarizes current counter values and integrity status.
func (s *Service) GetStatistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Statistics{
		WorkEfforts:      s.state.Counters.WorkEfforts.Global,
		Tickets:          s.state.Counters.Tickets.Global,
		Checkpoints:      s.state.Counters.Checkpoints.Global,
		ReposTracked:     len(s.state.Counters.WorkEfforts.ByRepo),
		AuditEntries:     len(s.state.Audit),
		LastValidation:   s.state.Integrity.LastValidation,
		ValidationStatus: s.state.Integrity.ValidationStatus,
	}
}

// VerifyIntegrity recomputes the checksum, compares it with the stored one,
// records the result, and reports whether they match.
func (s *Service) VerifyIntegrity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := s.state.Checksum() == s.state.Integrity.Checksum
	s.state.Integrity.LastValidation = time.Now().UTC()
	if ok {
		s.state.Integrity.ValidationStatus = "valid"
	} else {
		s.state.Integrity.ValidationStatus = "invalid"
	}
	return ok
}

// RecalculateChecksum overwrites the stored checksum with a freshly computed
// one and persists. Used by the repair path after out-of-band edits.
func (s *Service) RecalculateChecksum() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func copyCounters(c Counters) Counters {
	out := Counters{
		WorkEfforts: WorkEffortCounters{
			Global: c.WorkEfforts.Global,
			ByRepo: make(map[string]int, len(c.WorkEfforts.ByRepo)),
		},
		Tickets: TicketCounters{
			Global:       c.Tickets.Global,
			ByWorkEffort: make(map[string]int, len(c.Tickets.ByWorkEffort)),
			ByRepo:       make(map[string]int, len(c.Tickets.ByRepo)),
		},
		Checkpoints: c.Checkpoints,
	}
	for k, v := range c.WorkEfforts.ByRepo {
		out.WorkEfforts.ByRepo[k] = v
	}
	for k, v := range c.Tickets.ByWorkEffort {
		out.Tickets.ByWorkEffort[k] = v
	}
	for k, v := range c.Tickets.ByRepo {
		out.Tickets.ByRepo[k] = v
	}
	return out
}
