package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ctavolazzi/mission-control/pkg/types"
)

// Artifact naming patterns shared with the counter migrator and validator.
var (
	// WEDirRe matches MCP work-effort directory names.
	WEDirRe = regexp.MustCompile(`^WE-\d{6}-[a-z0-9]{4}_.+`)

	// WEIDRe matches a bare work-effort identifier.
	WEIDRe = regexp.MustCompile(`^WE-\d{6}-[a-z0-9]{4}$`)

	// TicketFileRe matches ticket filenames and captures the parent suffix
	// and sequence number.
	TicketFileRe = regexp.MustCompile(`^(TKT-([a-z0-9]{4})-(\d{3}))_.*\.md$`)

	// TicketIDRe matches a bare ticket identifier.
	TicketIDRe = regexp.MustCompile(`^TKT-[a-z0-9]{4}-\d{3}$`)

	// CheckpointFileRe matches checkpoint filenames.
	CheckpointFileRe = regexp.MustCompile(`^CKPT-\d{6}-\d{4}.*\.md$`)

	// JDCategoryRe matches Johnny Decimal category directories.
	JDCategoryRe = regexp.MustCompile(`^\d{2}-\d{2}_.+`)

	// JDSubRe matches Johnny Decimal subcategory directories.
	JDSubRe = regexp.MustCompile(`^\d{2}_.+`)

	// JDFileRe matches Johnny Decimal work-effort files and captures the
	// numeric code.
	JDFileRe = regexp.MustCompile(`^(\d{1,2}\.\d{1,2})_.*\.md$`)
)

// Work-effort directory naming conventions, in preference order.
var workEffortsDirNames = []string{"_work_efforts", "_work_efforts_"}

const weIDLen = len("WE-YYMMDD-xxxx")

// ParseResult is the outcome of scanning one repository.
type ParseResult struct {
	WorkEfforts []*types.WorkEffort
	Error       string
}

// FindWorkEffortsDir locates the work-efforts directory under repoRoot,
// trying both naming conventions. Returns "" if neither exists.
func FindWorkEffortsDir(repoRoot string) string {
	for _, name := range workEffortsDirNames {
		dir := filepath.Join(repoRoot, name)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return ""
}

// ParseRepo scans the repository rooted at repoRoot and returns every
// recognized work effort. The function is pure with respect to shared state:
// it only reads the filesystem and never mutates its inputs.
//
// A single malformed artifact never aborts the scan; it is returned with
// default fields and a per-file error note. Repo-level problems (missing
// work-efforts directory, unreadable directory) land in ParseResult.Error.
func ParseRepo(repoRoot string) ParseResult {
	dir := FindWorkEffortsDir(repoRoot)
	if dir == "" {
		return ParseResult{WorkEfforts: []*types.WorkEffort{}, Error: "No _work_efforts folder found"}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return ParseResult{WorkEfforts: []*types.WorkEffort{}, Error: fmt.Sprintf("failed to read %s: %v", dir, err)}
	}

	workEfforts := []*types.WorkEffort{}
	var fileErrors []string

	for _, entry := range entries {
		name := entry.Name()
		switch {
		case entry.IsDir() && WEDirRe.MatchString(name):
			we := parseMCPWorkEffort(filepath.Join(dir, name), name)
			workEfforts = append(workEfforts, we)
		case entry.IsDir() && JDCategoryRe.MatchString(name):
			jd, errs := parseJDCategory(filepath.Join(dir, name), name)
			workEfforts = append(workEfforts, jd...)
			fileErrors = append(fileErrors, errs...)
		}
	}

	// Duplicate IDs within a repo are a parse error, not silent data loss.
	seen := make(map[string]bool, len(workEfforts))
	for _, we := range workEfforts {
		if seen[we.ID] {
			fileErrors = append(fileErrors, fmt.Sprintf("duplicate work effort id %s", we.ID))
		}
		seen[we.ID] = true
	}

	return ParseResult{WorkEfforts: workEfforts, Error: strings.Join(fileErrors, "; ")}
}

// parseMCPWorkEffort reads one WE-YYMMDD-xxxx_* directory.
func parseMCPWorkEffort(dir, dirName string) *types.WorkEffort {
	weID := dirName[:weIDLen]

	we := &types.WorkEffort{
		ID:      weID,
		Format:  types.FormatMCP,
		Title:   titleFromName(dirName[weIDLen:]),
		Status:  "active",
		Tickets: []*types.Ticket{},
		Path:    dir,
	}

	indexPath := findIndexFile(dir, weID)
	if indexPath == "" {
		we.ParseError = "no index file found"
		return we
	}
	we.Path = indexPath

	data, err := os.ReadFile(indexPath)
	if err != nil {
		we.ParseError = fmt.Sprintf("unreadable index file: %v", err)
		return we
	}

	fm, _, err := ParseFrontmatter(data)
	if err != nil {
		we.ParseError = err.Error()
	}
	applyWorkEffortFrontmatter(we, fm)

	ticketsDir := filepath.Join(dir, "tickets")
	if info, statErr := os.Stat(ticketsDir); statErr == nil && info.IsDir() {
		we.Tickets = parseTickets(ticketsDir, weID)
	}
	return we
}

// applyWorkEffortFrontmatter copies recognized frontmatter fields onto we.
// The directory-derived ID wins only when frontmatter has none.
func applyWorkEffortFrontmatter(we *types.WorkEffort, fm Frontmatter) {
	if fm.ID != "" {
		we.ID = fm.ID
	}
	if fm.Title != "" {
		we.Title = fm.Title
	}
	if fm.Status != "" {
		we.Status = types.NormalizeStatus(fm.Status)
	}
	we.Created = fm.Created
	we.LastUpdated = fm.LastUpdated
	we.Branch = fm.Branch
	we.Repository = fm.Repository
}

// findIndexFile prefers <weID>_index.md, else a single *_index.md.
func findIndexFile(dir, weID string) string {
	preferred := filepath.Join(dir, weID+"_index.md")
	if _, err := os.Stat(preferred); err == nil {
		return preferred
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*_index.md"))
	if err != nil || len(matches) != 1 {
		return ""
	}
	return matches[0]
}

// parseTickets reads tickets/ in lexicographic filename order, keeping only
// files whose name carries the parent work effort's suffix.
func parseTickets(dir, parentID string) []*types.Ticket {
	tickets := []*types.Ticket{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return tickets
	}

	parentSuffix := parentID[len(parentID)-4:]
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := TicketFileRe.FindStringSubmatch(entry.Name())
		if m == nil || m[2] != parentSuffix {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		ticket := &types.Ticket{
			ID:     m[1],
			Title:  titleFromName(strings.TrimSuffix(entry.Name()[len(m[1]):], ".md")),
			Status: "pending",
			Parent: parentID,
			Path:   path,
		}

		data, err := os.ReadFile(path)
		if err != nil {
			ticket.ParseError = fmt.Sprintf("unreadable ticket file: %v", err)
			tickets = append(tickets, ticket)
			continue
		}

		fm, _, err := ParseFrontmatter(data)
		if err != nil {
			ticket.ParseError = err.Error()
		}
		if fm.ID != "" {
			ticket.ID = fm.ID
		}
		if fm.Title != "" {
			ticket.Title = fm.Title
		}
		if fm.Status != "" {
			ticket.Status = types.NormalizeStatus(fm.Status)
		}
		if fm.Parent != "" {
			ticket.Parent = fm.Parent
		}
		ticket.AssignedTo = fm.AssignedTo

		tickets = append(tickets, ticket)
	}
	return tickets
}

// parseJDCategory reads one NN-NN_category directory, descending exactly one
// level into NN_subcategory directories.
func parseJDCategory(dir, categoryName string) ([]*types.WorkEffort, []string) {
	var workEfforts []*types.WorkEffort
	var fileErrors []string

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []string{fmt.Sprintf("failed to read %s: %v", dir, err)}
	}

	for _, entry := range entries {
		if !entry.IsDir() || !JDSubRe.MatchString(entry.Name()) {
			continue
		}
		subDir := filepath.Join(dir, entry.Name())
		files, err := os.ReadDir(subDir)
		if err != nil {
			fileErrors = append(fileErrors, fmt.Sprintf("failed to read %s: %v", subDir, err))
			continue
		}

		for _, file := range files {
			if file.IsDir() {
				continue
			}
			m := JDFileRe.FindStringSubmatch(file.Name())
			if m == nil {
				continue
			}
			workEfforts = append(workEfforts, parseJDFile(filepath.Join(subDir, file.Name()), m[1], categoryName))
		}
	}
	return workEfforts, fileErrors
}

// parseJDFile reads one Johnny Decimal markdown file.
func parseJDFile(path, code, category string) *types.WorkEffort {
	we := &types.WorkEffort{
		ID:       code,
		Format:   types.FormatJD,
		Title:    titleFromName(strings.TrimSuffix(filepath.Base(path)[len(code):], ".md")),
		Status:   "active",
		Category: category,
		Tickets:  []*types.Ticket{},
		Path:     path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		we.ParseError = fmt.Sprintf("unreadable file: %v", err)
		return we
	}

	fm, _, err := ParseFrontmatter(data)
	if err != nil {
		we.ParseError = err.Error()
	}
	if fm.Title != "" {
		we.Title = fm.Title
	}
	if fm.Status != "" {
		we.Status = types.NormalizeStatus(fm.Status)
	}
	we.Created = fm.Created
	we.LastUpdated = fm.LastUpdated
	return we
}

// titleFromName turns a filename remainder like "_implement_parser" into
// "implement parser".
func titleFromName(remainder string) string {
	s := strings.Trim(remainder, "_-. ")
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	return strings.TrimSpace(s)
}

// GetRepoStats aggregates a work-effort list in a single linear pass. Status
// keys are the normalized status strings.
func GetRepoStats(workEfforts []*types.WorkEffort) types.RepoStats {
	stats := types.RepoStats{
		ByStatus:        make(map[string]int),
		TicketsByStatus: make(map[string]int),
	}

	for _, we := range workEfforts {
		stats.Total++
		switch we.Format {
		case types.FormatMCP:
			stats.ByFormat.MCP++
		case types.FormatJD:
			stats.ByFormat.JD++
		}
		stats.ByStatus[types.NormalizeStatus(we.Status)]++

		for _, t := range we.Tickets {
			stats.TotalTickets++
			stats.TicketsByStatus[types.NormalizeStatus(t.Status)]++
		}
	}
	return stats
}
