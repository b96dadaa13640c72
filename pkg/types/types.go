package types

import (
	"strings"
	"time"
)

// Format identifies which on-disk convention a work effort was parsed from.
type Format string

const (
	// FormatMCP is the current directory-per-work-effort layout with an
	// _index.md file and an optional tickets/ subdirectory.
	FormatMCP Format = "mcp"

	// FormatJD is the legacy Johnny Decimal layout of numbered markdown
	// files under NN-NN_category directories.
	FormatJD Format = "jd"
)

// WorkEffort is a single tracked unit of work parsed from disk.
type WorkEffort struct {
	ID          string    `json:"id"`
	Format      Format    `json:"format"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	Created     string    `json:"created,omitempty"`
	LastUpdated string    `json:"lastUpdated,omitempty"`
	Repository  string    `json:"repository,omitempty"`
	Branch      string    `json:"branch,omitempty"`
	Category    string    `json:"category,omitempty"`
	Tickets     []*Ticket `json:"tickets"`
	Path        string    `json:"path"`

	// ParseError carries a per-file parse problem without failing the
	// whole repo scan.
	ParseError string `json:"error,omitempty"`
}

// Ticket is a unit of work belonging to a single work effort.
type Ticket struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	Parent     string `json:"parent"`
	AssignedTo string `json:"assignedTo,omitempty"`
	Path       string `json:"path"`

	ParseError string `json:"error,omitempty"`
}

// FormatCounts breaks a work-effort total down by source format.
type FormatCounts struct {
	MCP int `json:"mcp"`
	JD  int `json:"jd"`
}

// RepoStats aggregates a repository's parsed work efforts. It is always
// recomputed in full from the work-effort list, never patched.
type RepoStats struct {
	Total           int            `json:"total"`
	ByFormat        FormatCounts   `json:"byFormat"`
	ByStatus        map[string]int `json:"byStatus"`
	TotalTickets    int            `json:"totalTickets"`
	TicketsByStatus map[string]int `json:"ticketsByStatus"`
}

// RepoState is the in-memory snapshot of a single repository. Snapshots are
// immutable once published; refreshes replace the whole value.
type RepoState struct {
	WorkEfforts []*WorkEffort `json:"workEfforts"`
	Stats       RepoStats     `json:"stats"`
	Error       string        `json:"error,omitempty"`
	LastUpdated time.Time     `json:"lastUpdated"`
}

// FindWorkEffort returns the work effort with the given ID, or nil.
func (s *RepoState) FindWorkEffort(id string) *WorkEffort {
	if s == nil {
		return nil
	}
	for _, we := range s.WorkEfforts {
		if we.ID == id {
			return we
		}
	}
	return nil
}

// RepoConfig names one configured repository.
type RepoConfig struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Config is the persisted server configuration document.
type Config struct {
	Port       int          `json:"port"`
	Repos      []RepoConfig `json:"repos"`
	DebounceMs int          `json:"debounceMs"`
}

// Clone returns a copy whose repo slice does not alias the original.
func (c *Config) Clone() *Config {
	out := *c
	out.Repos = make([]RepoConfig, len(c.Repos))
	copy(out.Repos, c.Repos)
	return &out
}

// Work-effort and ticket status vocabularies. Status strings are stored
// normalized (lower-case, underscore separators).
var (
	WorkEffortStatuses = []string{"active", "in_progress", "paused", "completed", "pending", "blocked"}
	TicketStatuses     = []string{"pending", "in_progress", "completed", "blocked"}
)

// NormalizeStatus folds a raw frontmatter status into the canonical
// lower-case underscore form ("In Progress" -> "in_progress").
func NormalizeStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

// ValidWorkEffortStatus reports whether s is an allowed work-effort status.
func ValidWorkEffortStatus(s string) bool {
	for _, v := range WorkEffortStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ValidTicketStatus reports whether s is an allowed ticket status.
func ValidTicketStatus(s string) bool {
	for _, v := range TicketStatuses {
		if s == v {
			return true
		}
	}
	return false
}
