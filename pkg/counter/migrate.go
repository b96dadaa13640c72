package counter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ctavolazzi/mission-control/pkg/log"
	"github.com/ctavolazzi/mission-control/pkg/parser"
)

// MigrationReason tags counter overrides issued by a filesystem migration.
const MigrationReason = "migration: scan-based initialization"

// ScanTarget names one repository root to reconcile against.
type ScanTarget struct {
	Name string
	Path string
}

// ScanResult is the filesystem's view of counter values.
type ScanResult struct {
	WorkEfforts         int            `json:"workEfforts"`
	WorkEffortsByRepo   map[string]int `json:"workEffortsByRepo"`
	Tickets             int            `json:"tickets"`
	TicketsByWorkEffort map[string]int `json:"ticketsByWorkEffort"`
	TicketsByRepo       map[string]int `json:"ticketsByRepo"`
	Checkpoints         int            `json:"checkpoints"`
	FormatIssues        []string       `json:"formatIssues,omitempty"`
}

// Discrepancy describes one counter whose stored value disagrees with disk.
type Discrepancy struct {
	Counter  string `json:"counter"`
	Stored   int    `json:"stored"`
	Observed int    `json:"observed"`
}

// Report is the outcome of comparing a scan against stored counters.
type Report struct {
	Filesystem     ScanResult    `json:"filesystem"`
	CounterState   Counters      `json:"counterState"`
	Discrepancies  []Discrepancy `json:"discrepancies"`
	NeedsMigration bool          `json:"needsMigration"`
}

// Op is one proposed counter override.
type Op struct {
	Counter  string `json:"counter"`
	Current  int    `json:"current"`
	Proposed int    `json:"proposed"`
}

// Migrator reconciles counter state with the artifacts actually on disk.
type Migrator struct {
	svc     *Service
	targets []ScanTarget
}

// NewMigrator creates a migrator over the given repository roots.
func NewMigrator(svc *Service, targets []ScanTarget) *Migrator {
	return &Migrator{svc: svc, targets: targets}
}

// Scan walks every target's work-efforts tree and counts work-effort
// directories, ticket files, and checkpoint files. Work efforts carrying a
// repository field in their index frontmatter are grouped under it; the rest
// fall back to the target name.
func (m *Migrator) Scan() (ScanResult, error) {
	result := ScanResult{
		WorkEffortsByRepo:   make(map[string]int),
		TicketsByWorkEffort: make(map[string]int),
		TicketsByRepo:       make(map[string]int),
	}
	logger := log.WithComponent("counter")

	for _, target := range m.targets {
		dir := parser.FindWorkEffortsDir(target.Path)
		if dir == "" {
			logger.Warn().Str("repo", target.Name).Str("path", target.Path).Msg("no work-efforts folder, skipping scan target")
			continue
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			return result, fmt.Errorf("failed to scan %s: %v", dir, err)
		}

		for _, entry := range entries {
			name := entry.Name()
			switch {
			case entry.IsDir() && parser.WEDirRe.MatchString(name):
				m.scanWorkEffort(&result, target, filepath.Join(dir, name), name)
			case entry.IsDir() && name == "checkpoints":
				result.Checkpoints += countCheckpoints(filepath.Join(dir, name))
			case entry.IsDir() && strings.HasPrefix(name, "WE-"):
				result.FormatIssues = append(result.FormatIssues, fmt.Sprintf("%s: malformed work effort directory name", name))
			}
		}
	}

	sort.Strings(result.FormatIssues)
	return result, nil
}

func (m *Migrator) scanWorkEffort(result *ScanResult, target ScanTarget, weDir, dirName string) {
	weID := dirName[:len("WE-YYMMDD-xxxx")]
	repo := target.Name
	if fmRepo := indexRepository(weDir, weID); fmRepo != "" {
		repo = fmRepo
	}

	result.WorkEfforts++
	result.WorkEffortsByRepo[repo]++

	ticketsDir := filepath.Join(weDir, "tickets")
	entries, err := os.ReadDir(ticketsDir)
	if err != nil {
		return
	}
	suffix := weID[len(weID)-4:]
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		match := parser.TicketFileRe.FindStringSubmatch(name)
		if match == nil {
			if strings.HasPrefix(name, "TKT-") {
				result.FormatIssues = append(result.FormatIssues, fmt.Sprintf("%s/%s: malformed ticket filename", dirName, name))
			}
			continue
		}
		if match[2] != suffix {
			result.FormatIssues = append(result.FormatIssues, fmt.Sprintf("%s/%s: ticket suffix does not match parent %s", dirName, name, weID))
			continue
		}
		result.Tickets++
		result.TicketsByWorkEffort[weID]++
		result.TicketsByRepo[repo]++
	}
}

// indexRepository reads the repository frontmatter field of a work effort's
// index file, if any.
func indexRepository(weDir, weID string) string {
	data, err := os.ReadFile(filepath.Join(weDir, weID+"_index.md"))
	if err != nil {
		return ""
	}
	fm, _, err := parser.ParseFrontmatter(data)
	if err != nil {
		return ""
	}
	return fm.Repository
}

func countCheckpoints(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && parser.CheckpointFileRe.MatchString(entry.Name()) {
			count++
		}
	}
	return count
}

// Report scans the filesystem and diffs it against the stored counters.
func (m *Migrator) Report() (Report, error) {
	scan, err := m.Scan()
	if err != nil {
		return Report{}, err
	}

	stored := m.svc.GetCurrentCounters()
	ops := proposedOps(scan, stored)

	report := Report{
		Filesystem:   scan,
		CounterState: stored,
	}
	for _, op := range ops {
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			Counter:  op.Counter,
			Stored:   op.Current,
			Observed: op.Proposed,
		})
	}
	report.NeedsMigration = len(report.Discrepancies) > 0
	return report, nil
}

// Preview computes the counter overrides a migration would issue, without
// executing them.
func (m *Migrator) Preview() ([]Op, error) {
	scan, err := m.Scan()
	if err != nil {
		return nil, err
	}
	return proposedOps(scan, m.svc.GetCurrentCounters()), nil
}

// Migrate overrides every divergent counter, global and breakdowns, with the
// observed filesystem value. Returns the ops that were applied.
func (m *Migrator) Migrate() ([]Op, error) {
	ops, err := m.Preview()
	if err != nil {
		return nil, err
	}
	for _, op := range ops {
		if err := m.svc.SetCounter(op.Counter, op.Proposed, MigrationReason); err != nil {
			return nil, fmt.Errorf("failed to set %s: %v", op.Counter, err)
		}
	}
	logger := log.WithComponent("counter")
	logger.Info().Int("counters", len(ops)).Msg("migration applied")
	return ops, nil
}

// proposedOps lists every counter whose stored value differs from the scan,
// in a stable order.
func proposedOps(scan ScanResult, stored Counters) []Op {
	var ops []Op
	add := func(counter string, current, proposed int) {
		if current != proposed {
			ops = append(ops, Op{Counter: counter, Current: current, Proposed: proposed})
		}
	}

	add("workEfforts.global", stored.WorkEfforts.Global, scan.WorkEfforts)
	for _, repo := range sortedKeys(scan.WorkEffortsByRepo, stored.WorkEfforts.ByRepo) {
		add("workEfforts.byRepo."+repo, stored.WorkEfforts.ByRepo[repo], scan.WorkEffortsByRepo[repo])
	}

	add("tickets.global", stored.Tickets.Global, scan.Tickets)
	for _, we := range sortedKeys(scan.TicketsByWorkEffort, stored.Tickets.ByWorkEffort) {
		add("tickets.byWorkEffort."+we, stored.Tickets.ByWorkEffort[we], scan.TicketsByWorkEffort[we])
	}
	for _, repo := range sortedKeys(scan.TicketsByRepo, stored.Tickets.ByRepo) {
		add("tickets.byRepo."+repo, stored.Tickets.ByRepo[repo], scan.TicketsByRepo[repo])
	}

	add("checkpoints.global", stored.Checkpoints.Global, scan.Checkpoints)
	return ops
}

// sortedKeys merges the key sets of both maps into one sorted slice.
func sortedKeys(a, b map[string]int) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var keys []string
	for k := range a {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range b {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
