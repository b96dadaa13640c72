package counter

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ctavolazzi/mission-control/pkg/config"
	"github.com/ctavolazzi/mission-control/pkg/log"
)

const (
	// StateVersion is the persisted schema version.
	StateVersion = "1.0.0"

	// MaxAuditEntries bounds the audit ring buffer.
	MaxAuditEntries = 1000
)

// WorkEffortCounters tracks work-effort allocations.
type WorkEffortCounters struct {
	Global int            `json:"global"`
	ByRepo map[string]int `json:"byRepo"`
}

// TicketCounters tracks ticket allocations.
type TicketCounters struct {
	Global       int            `json:"global"`
	ByWorkEffort map[string]int `json:"byWorkEffort"`
	ByRepo       map[string]int `json:"byRepo"`
}

// CheckpointCounters tracks checkpoint allocations.
type CheckpointCounters struct {
	Global int `json:"global"`
}

// Counters is the counter sub-tree covered by the integrity checksum.
type Counters struct {
	WorkEfforts WorkEffortCounters `json:"workEfforts"`
	Tickets     TicketCounters     `json:"tickets"`
	Checkpoints CheckpointCounters `json:"checkpoints"`
}

// Integrity holds the checksum over {version, counters} and the result of the
// most recent validation.
type Integrity struct {
	Checksum         string    `json:"checksum"`
	LastValidation   time.Time `json:"lastValidation"`
	ValidationStatus string    `json:"validationStatus"`
}

// AuditEntry records one counter mutation.
type AuditEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Action    string            `json:"action"` // "increment" or "set"
	Counter   string            `json:"counter"`
	Value     int               `json:"value,omitempty"`
	OldValue  *int              `json:"oldValue,omitempty"`
	NewValue  *int              `json:"newValue,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
	Reason    string            `json:"reason,omitempty"`
}

// State is the durable counter document. Field order matches the on-disk
// layout; the checksum is computed over the version and counters fields only.
type State struct {
	Version   string       `json:"version"`
	Counters  Counters     `json:"counters"`
	Integrity Integrity    `json:"integrity"`
	Audit     []AuditEntry `json:"audit"`
}

// NewState returns a zeroed state with a valid checksum.
func NewState() *State {
	s := &State{
		Version: StateVersion,
		Counters: Counters{
			WorkEfforts: WorkEffortCounters{ByRepo: make(map[string]int)},
			Tickets: TicketCounters{
				ByWorkEffort: make(map[string]int),
				ByRepo:       make(map[string]int),
			},
		},
		Audit: []AuditEntry{},
	}
	s.Integrity = Integrity{
		Checksum:         s.Checksum(),
		LastValidation:   time.Now().UTC(),
		ValidationStatus: "valid",
	}
	return s
}

// checksumEnvelope fixes the key order the checksum is computed over.
type checksumEnvelope struct {
	Version  string   `json:"version"`
	Counters Counters `json:"counters"`
}

// Checksum returns the SHA-256 hex digest of the canonical {version, counters}
// JSON. Struct field order is stable and map keys marshal sorted, so the
// digest is reproducible across writes.
func (s *State) Checksum() string {
	data, err := json.Marshal(checksumEnvelope{Version: s.Version, Counters: s.Counters})
	if err != nil {
		// Marshal of this shape cannot fail; keep the signature simple.
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// appendAudit pushes an entry onto the ring, evicting the oldest past capacity.
func (s *State) appendAudit(entry AuditEntry) {
	s.Audit = append(s.Audit, entry)
	if len(s.Audit) > MaxAuditEntries {
		s.Audit = s.Audit[len(s.Audit)-MaxAuditEntries:]
	}
}

// ensureMaps repairs nil maps after a tolerant unmarshal.
func (s *State) ensureMaps() {
	if s.Counters.WorkEfforts.ByRepo == nil {
		s.Counters.WorkEfforts.ByRepo = make(map[string]int)
	}
	if s.Counters.Tickets.ByWorkEffort == nil {
		s.Counters.Tickets.ByWorkEffort = make(map[string]int)
	}
	if s.Counters.Tickets.ByRepo == nil {
		s.Counters.Tickets.ByRepo = make(map[string]int)
	}
	if s.Audit == nil {
		s.Audit = []AuditEntry{}
	}
}

// LoadState reads counter state from path. A missing file yields a fresh
// state. A checksum mismatch writes a timestamped backup of the corrupt file,
// then recovers by accepting the counters and recomputing the checksum.
func LoadState(path string) (*State, error) {
	logger := log.WithComponent("counter")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Info().Str("path", path).Msg("no counter state file, initializing")
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read counter state %s: %v", path, err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		backup := config.BackupPath(path, time.Now().UTC())
		if werr := os.WriteFile(backup, data, 0644); werr != nil {
			logger.Error().Err(werr).Str("backup", backup).Msg("failed to back up corrupt counter state")
		} else {
			logger.Warn().Str("backup", backup).Msg("counter state unparseable, backed up and re-initialized")
		}
		return NewState(), nil
	}
	s.ensureMaps()
	if s.Version == "" {
		s.Version = StateVersion
	}

	if got := s.Checksum(); got != s.Integrity.Checksum {
		backup := config.BackupPath(path, time.Now().UTC())
		if werr := os.WriteFile(backup, data, 0644); werr != nil {
			logger.Error().Err(werr).Str("backup", backup).Msg("failed to back up counter state on checksum mismatch")
		}
		logger.Warn().
			Str("path", path).
			Str("stored", s.Integrity.Checksum).
			Str("computed", got).
			Str("backup", backup).
			Msg("counter state checksum mismatch, recovering")
		s.Integrity.Checksum = got
		s.Integrity.ValidationStatus = "invalid"
		s.Integrity.LastValidation = time.Now().UTC()
	}

	return &s, nil
}

// SaveState writes the state document atomically.
func SaveState(path string, s *State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal counter state: %v", err)
	}
	data = append(data, '\n')
	if err := config.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write counter state %s: %v", path, err)
	}
	return nil
}
