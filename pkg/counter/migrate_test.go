package counter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixtureRepo builds a repo with the given number of work efforts, each
// carrying the given number of tickets, and returns its root.
func fixtureRepo(t *testing.T, workEfforts, ticketsEach, checkpoints int) string {
	t.Helper()
	root := t.TempDir()
	weRoot := filepath.Join(root, "_work_efforts")
	require.NoError(t, os.MkdirAll(weRoot, 0755))

	for i := 0; i < workEfforts; i++ {
		suffix := string([]byte{'a' + byte(i), 'b' + byte(i), '1', '2'})
		weID := "WE-260501-" + suffix
		weDir := filepath.Join(weRoot, weID+"_demo")
		require.NoError(t, os.MkdirAll(filepath.Join(weDir, "tickets"), 0755))
		index := "---\nid: " + weID + "\ntitle: Demo\nstatus: active\n---\n"
		require.NoError(t, os.WriteFile(filepath.Join(weDir, weID+"_index.md"), []byte(index), 0644))

		for j := 0; j < ticketsEach; j++ {
			name := "TKT-" + suffix + "-00" + string(rune('1'+j)) + "_task.md"
			require.NoError(t, os.WriteFile(filepath.Join(weDir, "tickets", name), []byte("---\n---\n"), 0644))
		}
	}

	if checkpoints > 0 {
		ckptDir := filepath.Join(weRoot, "checkpoints")
		require.NoError(t, os.MkdirAll(ckptDir, 0755))
		for i := 0; i < checkpoints; i++ {
			name := "CKPT-260501-120" + string(rune('0'+i)) + "_session.md"
			require.NoError(t, os.WriteFile(filepath.Join(ckptDir, name), []byte("journal\n"), 0644))
		}
	}
	return root
}

func newFixtureMigrator(t *testing.T, root string) (*Service, *Migrator) {
	t.Helper()
	svc, err := NewService(statePath(t))
	require.NoError(t, err)
	return svc, NewMigrator(svc, []ScanTarget{{Name: "_pyrite", Path: root}})
}

// TestScanCountsArtifacts tests the filesystem scan
func TestScanCountsArtifacts(t *testing.T) {
	root := fixtureRepo(t, 2, 3, 2)
	_, m := newFixtureMigrator(t, root)

	scan, err := m.Scan()
	require.NoError(t, err)

	assert.Equal(t, 2, scan.WorkEfforts)
	assert.Equal(t, 2, scan.WorkEffortsByRepo["_pyrite"])
	assert.Equal(t, 6, scan.Tickets)
	assert.Equal(t, 3, scan.TicketsByWorkEffort["WE-260501-ab12"])
	assert.Equal(t, 6, scan.TicketsByRepo["_pyrite"])
	assert.Equal(t, 2, scan.Checkpoints)
	assert.Empty(t, scan.FormatIssues)
}

// TestScanGroupsByFrontmatterRepository tests the repository override
func TestScanGroupsByFrontmatterRepository(t *testing.T) {
	root := fixtureRepo(t, 1, 0, 0)
	weDir := filepath.Join(root, "_work_efforts", "WE-260501-ab12_demo")
	index := "---\nid: WE-260501-ab12\ntitle: Demo\nstatus: active\nrepository: _quartz\n---\n"
	require.NoError(t, os.WriteFile(filepath.Join(weDir, "WE-260501-ab12_index.md"), []byte(index), 0644))

	_, m := newFixtureMigrator(t, root)
	scan, err := m.Scan()
	require.NoError(t, err)

	assert.Equal(t, 1, scan.WorkEffortsByRepo["_quartz"])
	assert.Zero(t, scan.WorkEffortsByRepo["_pyrite"])
}

// TestScanFlagsFormatIssues tests malformed name detection
func TestScanFlagsFormatIssues(t *testing.T) {
	root := fixtureRepo(t, 1, 1, 0)
	weRoot := filepath.Join(root, "_work_efforts")
	require.NoError(t, os.MkdirAll(filepath.Join(weRoot, "WE-26051-bad_name"), 0755))
	// Ticket with a foreign suffix under an existing work effort.
	weDir := filepath.Join(weRoot, "WE-260501-ab12_demo")
	require.NoError(t, os.WriteFile(filepath.Join(weDir, "tickets", "TKT-zz99-001_stray.md"), []byte(""), 0644))

	_, m := newFixtureMigrator(t, root)
	scan, err := m.Scan()
	require.NoError(t, err)

	assert.Equal(t, 1, scan.WorkEfforts)
	assert.Equal(t, 1, scan.Tickets)
	assert.Len(t, scan.FormatIssues, 2)
}

// TestReportFindsDiscrepancies tests stored-vs-disk diffing
func TestReportFindsDiscrepancies(t *testing.T) {
	root := fixtureRepo(t, 2, 1, 0)
	_, m := newFixtureMigrator(t, root)

	report, err := m.Report()
	require.NoError(t, err)

	assert.True(t, report.NeedsMigration)
	assert.Equal(t, 2, report.Filesystem.WorkEfforts)
	assert.Zero(t, report.CounterState.WorkEfforts.Global)

	counters := make(map[string]Discrepancy)
	for _, d := range report.Discrepancies {
		counters[d.Counter] = d
	}
	assert.Equal(t, 2, counters["workEfforts.global"].Observed)
	assert.Equal(t, 2, counters["tickets.global"].Observed)
}

// TestMigrateReconciles tests the full migration path
func TestMigrateReconciles(t *testing.T) {
	root := fixtureRepo(t, 2, 2, 1)
	svc, m := newFixtureMigrator(t, root)

	ops, err := m.Migrate()
	require.NoError(t, err)
	assert.NotEmpty(t, ops)

	counters := svc.GetCurrentCounters()
	assert.Equal(t, 2, counters.WorkEfforts.Global)
	assert.Equal(t, 4, counters.Tickets.Global)
	assert.Equal(t, 1, counters.Checkpoints.Global)

	// Audit entries carry the migration reason.
	entries := svc.GetAuditLog(1)
	require.Len(t, entries, 1)
	assert.Equal(t, MigrationReason, entries[0].Reason)

	// A second report is clean.
	report, err := m.Report()
	require.NoError(t, err)
	assert.False(t, report.NeedsMigration)
	assert.Empty(t, report.Discrepancies)
}

// TestPreviewDoesNotMutate tests that preview is read-only
func TestPreviewDoesNotMutate(t *testing.T) {
	root := fixtureRepo(t, 1, 1, 0)
	svc, m := newFixtureMigrator(t, root)

	ops, err := m.Preview()
	require.NoError(t, err)
	assert.NotEmpty(t, ops)

	assert.Zero(t, svc.GetCurrentCounters().WorkEfforts.Global)
	assert.Empty(t, svc.GetAuditLog(0))
}

// TestValidateAndRepair tests the check-suggest-repair cycle
func TestValidateAndRepair(t *testing.T) {
	root := fixtureRepo(t, 2, 1, 0)
	svc, m := newFixtureMigrator(t, root)
	_, merr := m.Migrate()
	require.NoError(t, merr)

	v := NewValidator(svc, m)
	result, verr := v.Validate()
	require.NoError(t, verr)
	assert.Equal(t, "valid", result.Status)

	// Out-of-band deletion: disk now has one fewer work effort than the
	// stored counter claims.
	require.NoError(t, os.RemoveAll(filepath.Join(root, "_work_efforts", "WE-260501-bc12_demo")))

	result, verr = v.Validate()
	require.NoError(t, verr)
	assert.Equal(t, "invalid", result.Status)

	var failed []string
	for _, check := range result.Checks {
		if !check.Passed {
			failed = append(failed, check.Name)
		}
	}
	assert.Contains(t, failed, CheckWorkEffortsCount)

	repair := v.Repair(result)
	assert.NotEmpty(t, repair.SuccessCount)
	assert.Empty(t, repair.Errors)

	// The repair reason names the failed check.
	reasons := make(map[string]bool)
	for _, entry := range svc.GetAuditLog(0) {
		if entry.Action == "set" {
			reasons[entry.Reason] = true
		}
	}
	assert.True(t, reasons["auto-repair: "+CheckWorkEffortsCount])

	result, verr = v.Validate()
	require.NoError(t, verr)
	assert.Equal(t, "valid", result.Status)
}

// TestValidateSuggestsChecksumRecalculation tests the checksum check
func TestValidateSuggestsChecksumRecalculation(t *testing.T) {
	root := fixtureRepo(t, 0, 0, 0)
	svc, m := newFixtureMigrator(t, root)

	// Corrupt the in-memory checksum.
	svc.state.Integrity.Checksum = "deadbeef"

	v := NewValidator(svc, m)
	result, verr := v.Validate()
	require.NoError(t, verr)
	assert.Equal(t, "invalid", result.Status)

	var actions []string
	for _, s := range result.Suggestions {
		actions = append(actions, s.Action)
	}
	assert.Contains(t, actions, "recalculate_checksum")

	repair := v.Repair(result)
	assert.Equal(t, 1, repair.SuccessCount)
	assert.True(t, svc.VerifyIntegrity())
}
