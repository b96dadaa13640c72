package detector

import (
	"github.com/ctavolazzi/mission-control/pkg/events"
	"github.com/ctavolazzi/mission-control/pkg/types"
)

// Change is one typed domain event derived from a snapshot diff.
type Change struct {
	Type string
	Data map[string]any
}

// Detect diffs the prior repository snapshot against the current one and
// returns the ordered list of typed events the transition implies.
//
// Initial state is the baseline: when prev is nil nothing is emitted, so a
// server start with hundreds of pre-existing work efforts does not flood
// subscribers with workeffort:created events. Deltas are reported only from
// the second snapshot onward.
//
// Detect is pure; it reads both snapshots and touches nothing else.
func Detect(repo string, prev, curr *types.RepoState) []Change {
	if prev == nil || curr == nil {
		return nil
	}

	prevByID := make(map[string]*types.WorkEffort, len(prev.WorkEfforts))
	for _, we := range prev.WorkEfforts {
		prevByID[we.ID] = we
	}

	var changes []Change
	for _, we := range curr.WorkEfforts {
		before, existed := prevByID[we.ID]
		if !existed {
			changes = append(changes, Change{
				Type: "workeffort:created",
				Data: map[string]any{
					"id":     we.ID,
					"title":  we.Title,
					"status": we.Status,
					"repo":   repo,
					"we":     we,
				},
			})
			for _, tk := range we.Tickets {
				changes = append(changes, ticketCreated(repo, we.ID, tk))
			}
			continue
		}

		if before.Status != we.Status {
			changes = append(changes, Change{
				Type: statusEventType(we.Status),
				Data: map[string]any{
					"id":        we.ID,
					"title":     we.Title,
					"oldStatus": before.Status,
					"newStatus": we.Status,
					"repo":      repo,
					"we":        we,
				},
			})
		}
		changes = append(changes, diffTickets(repo, we.ID, before.Tickets, we.Tickets)...)
	}
	return changes
}

// statusEventType maps a work effort's new status onto its event type.
func statusEventType(newStatus string) string {
	switch newStatus {
	case "completed":
		return "workeffort:completed"
	case "active", "in_progress":
		return "workeffort:started"
	case "paused":
		return "workeffort:paused"
	default:
		return "workeffort:updated"
	}
}

func ticketStatusEventType(newStatus string) string {
	switch newStatus {
	case "completed":
		return "ticket:completed"
	case "blocked":
		return "ticket:blocked"
	default:
		return "ticket:updated"
	}
}

func ticketCreated(repo, weID string, tk *types.Ticket) Change {
	return Change{
		Type: "ticket:created",
		Data: map[string]any{
			"id":     tk.ID,
			"title":  tk.Title,
			"status": tk.Status,
			"repo":   repo,
			"we":     weID,
			"ticket": tk,
		},
	}
}

func diffTickets(repo, weID string, prev, curr []*types.Ticket) []Change {
	prevByID := make(map[string]*types.Ticket, len(prev))
	for _, tk := range prev {
		prevByID[tk.ID] = tk
	}

	var changes []Change
	for _, tk := range curr {
		before, existed := prevByID[tk.ID]
		if !existed {
			changes = append(changes, ticketCreated(repo, weID, tk))
			continue
		}
		if before.Status != tk.Status {
			changes = append(changes, Change{
				Type: ticketStatusEventType(tk.Status),
				Data: map[string]any{
					"id":        tk.ID,
					"title":     tk.Title,
					"oldStatus": before.Status,
					"newStatus": tk.Status,
					"repo":      repo,
					"we":        weID,
					"ticket":    tk,
				},
			})
		}
	}
	return changes
}

// Publish emits every change onto the bus in order.
func Publish(bus *events.Bus, changes []Change) {
	for _, c := range changes {
		bus.Emit(c.Type, c.Data)
	}
}
