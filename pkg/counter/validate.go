package counter

import (
	"fmt"
	"strings"

	"github.com/ctavolazzi/mission-control/pkg/log"
)

// Check names, shared between validation output and repair audit reasons.
const (
	CheckWorkEffortsCount = "Work Efforts Count"
	CheckTicketsCount     = "Tickets Count"
	CheckPerWETickets     = "Per-Work-Effort Ticket Counts"
	CheckChecksum         = "Integrity Checksum"
	CheckIDFormat         = "ID Format Consistency"
)

// Check is the outcome of one validation rule.
type Check struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Actual   string `json:"actual,omitempty"`
	Expected string `json:"expected,omitempty"`
	Message  string `json:"message"`
}

// Suggestion proposes a fix for a failed check. Suggestions with action
// setCounter or recalculate_checksum are auto-applicable; manual_review ones
// are informational only.
type Suggestion struct {
	Action  string `json:"action"` // "setCounter", "recalculate_checksum", "manual_review"
	Check   string `json:"check"`
	Counter string `json:"counter,omitempty"`
	Value   int    `json:"value,omitempty"`
	Message string `json:"message"`
}

// ValidationResult aggregates all checks and their suggested fixes.
type ValidationResult struct {
	Status      string       `json:"status"` // "valid" or "invalid"
	Checks      []Check      `json:"checks"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// RepairResult reports what an auto-repair run accomplished.
type RepairResult struct {
	SuccessCount int      `json:"successCount"`
	Skipped      int      `json:"skipped"`
	Errors       []string `json:"errors,omitempty"`
}

// Validator checks stored counters against the filesystem.
type Validator struct {
	svc      *Service
	migrator *Migrator
}

// NewValidator creates a validator sharing the migrator's scan targets.
func NewValidator(svc *Service, migrator *Migrator) *Validator {
	return &Validator{svc: svc, migrator: migrator}
}

// Validate runs all checks against a fresh filesystem scan.
func (v *Validator) Validate() (ValidationResult, error) {
	scan, err := v.migrator.Scan()
	if err != nil {
		return ValidationResult{}, err
	}

	stored := v.svc.GetCurrentCounters()
	var result ValidationResult

	// 1. Global work-effort count.
	result.addCountCheck(CheckWorkEffortsCount, "workEfforts.global",
		stored.WorkEfforts.Global, scan.WorkEfforts)

	// 2. Global ticket count.
	result.addCountCheck(CheckTicketsCount, "tickets.global",
		stored.Tickets.Global, scan.Tickets)

	// 3. Per-work-effort ticket counts.
	var mismatched []string
	for _, we := range sortedKeys(scan.TicketsByWorkEffort, stored.Tickets.ByWorkEffort) {
		if stored.Tickets.ByWorkEffort[we] != scan.TicketsByWorkEffort[we] {
			mismatched = append(mismatched, we)
			result.Suggestions = append(result.Suggestions, Suggestion{
				Action:  "setCounter",
				Check:   CheckPerWETickets,
				Counter: "tickets.byWorkEffort." + we,
				Value:   scan.TicketsByWorkEffort[we],
				Message: fmt.Sprintf("set tickets.byWorkEffort.%s to %d (stored %d)", we, scan.TicketsByWorkEffort[we], stored.Tickets.ByWorkEffort[we]),
			})
		}
	}
	if len(mismatched) == 0 {
		result.Checks = append(result.Checks, Check{
			Name:    CheckPerWETickets,
			Passed:  true,
			Message: "all per-work-effort ticket counts match the filesystem",
		})
	} else {
		result.Checks = append(result.Checks, Check{
			Name:    CheckPerWETickets,
			Passed:  false,
			Message: fmt.Sprintf("ticket counts diverge for: %s", strings.Join(mismatched, ", ")),
		})
	}

	// 4. Stored checksum validates.
	if v.svc.VerifyIntegrity() {
		result.Checks = append(result.Checks, Check{
			Name:    CheckChecksum,
			Passed:  true,
			Message: "stored checksum matches counter state",
		})
	} else {
		result.Checks = append(result.Checks, Check{
			Name:    CheckChecksum,
			Passed:  false,
			Message: "stored checksum does not match counter state",
		})
		result.Suggestions = append(result.Suggestions, Suggestion{
			Action:  "recalculate_checksum",
			Check:   CheckChecksum,
			Message: "recompute and persist the integrity checksum",
		})
	}

	// 5. ID format consistency across directories and ticket filenames.
	if len(scan.FormatIssues) == 0 {
		result.Checks = append(result.Checks, Check{
			Name:    CheckIDFormat,
			Passed:  true,
			Message: "all artifact IDs are well formed",
		})
	} else {
		result.Checks = append(result.Checks, Check{
			Name:    CheckIDFormat,
			Passed:  false,
			Message: strings.Join(scan.FormatIssues, "; "),
		})
		result.Suggestions = append(result.Suggestions, Suggestion{
			Action:  "manual_review",
			Check:   CheckIDFormat,
			Message: "rename the listed artifacts to match the ID format",
		})
	}

	result.Status = "valid"
	for _, check := range result.Checks {
		if !check.Passed {
			result.Status = "invalid"
			break
		}
	}
	return result, nil
}

// addCountCheck records a stored-vs-observed comparison and, on mismatch, a
// setCounter suggestion.
func (r *ValidationResult) addCountCheck(name, counter string, stored, observed int) {
	if stored == observed {
		r.Checks = append(r.Checks, Check{
			Name:    name,
			Passed:  true,
			Message: fmt.Sprintf("%s matches the filesystem (%d)", counter, observed),
		})
		return
	}
	r.Checks = append(r.Checks, Check{
		Name:     name,
		Passed:   false,
		Actual:   fmt.Sprintf("%d", stored),
		Expected: fmt.Sprintf("%d", observed),
		Message:  fmt.Sprintf("%s is %d but the filesystem has %d", counter, stored, observed),
	})
	r.Suggestions = append(r.Suggestions, Suggestion{
		Action:  "setCounter",
		Check:   name,
		Counter: counter,
		Value:   observed,
		Message: fmt.Sprintf("set %s to %d", counter, observed),
	})
}

// Repair executes the auto-applicable suggestions of a validation result.
// Every applied override is audited with a reason naming the failed check.
func (v *Validator) Repair(result ValidationResult) RepairResult {
	var repair RepairResult
	logger := log.WithComponent("counter")

	for _, suggestion := range result.Suggestions {
		switch suggestion.Action {
		case "setCounter":
			reason := "auto-repair: " + suggestion.Check
			if err := v.svc.SetCounter(suggestion.Counter, suggestion.Value, reason); err != nil {
				repair.Errors = append(repair.Errors, fmt.Sprintf("%s: %v", suggestion.Counter, err))
				continue
			}
			repair.SuccessCount++
		case "recalculate_checksum":
			if err := v.svc.RecalculateChecksum(); err != nil {
				repair.Errors = append(repair.Errors, fmt.Sprintf("checksum: %v", err))
				continue
			}
			repair.SuccessCount++
		default:
			repair.Skipped++
		}
	}

	logger.Info().
		Int("applied", repair.SuccessCount).
		Int("skipped", repair.Skipped).
		Int("errors", len(repair.Errors)).
		Msg("auto-repair finished")
	return repair
}
