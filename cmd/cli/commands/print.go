package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jakechorley/rehab-roster/pkg/core/baseline"
	"github.com/jakechorley/rehab-roster/pkg/core/capacity"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/workflow"
)

func staffNames(state *workflow.DayState) map[string]string {
	names := make(map[string]string, len(state.Staff))
	for _, st := range state.Staff {
		names[st.ID] = st.Name
	}
	return names
}

func formatFTE(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func printStatus(w io.Writer, state *workflow.DayState) {
	fmt.Fprintf(w, "Current Step: %s\n", state.CurrentStep)
	for _, step := range model.Steps {
		mark := "·"
		switch state.Status[step] {
		case workflow.StatusCompleted:
			mark = "✓"
		case workflow.StatusModified:
			mark = "✎"
		}
		fmt.Fprintf(w, "  %s %s\n", mark, step)
	}
	fmt.Fprintln(w)
}

func printCapacities(w io.Writer, caps capacity.Result) {
	fmt.Fprintf(w, "📊 Team Capacities:\n\n")
	fmt.Fprintf(w, "  %-6s %6s %6s %8s %8s %8s %8s\n", "Team", "Beds", "PT", "Target", "PCA", "Balance", "Relieve")
	fmt.Fprintf(w, "  %s\n", strings.Repeat("─", 56))
	for _, tc := range caps.Teams {
		fmt.Fprintf(w, "  %-6s %6d %6s %8s %8s %8s %8s\n",
			tc.Team,
			tc.DesignatedBeds,
			formatFTE(tc.PTFTE),
			formatFTE(tc.AverageTarget),
			formatFTE(tc.AssignedPCA),
			formatFTE(tc.Balance),
			formatFTE(tc.BedsForRelieving),
		)
	}
	fmt.Fprintln(w)
}

func printAllocations(w io.Writer, state *workflow.DayState) {
	names := staffNames(state)
	views := state.Allocations.ByTeam()

	fmt.Fprintf(w, "📅 Allocations:\n")
	for _, team := range model.AllTeams {
		v := views[team]
		if len(v.Therapists) == 0 && len(v.PCAs) == 0 && len(v.Beds) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n  %s\n", team)
		for _, t := range v.Therapists {
			leave := ""
			if t.LeaveType != "" {
				leave = fmt.Sprintf(" (%s)", t.LeaveType)
			}
			fmt.Fprintf(w, "    • %-20s %s FTE%s\n", names[t.StaffID], formatFTE(t.FTE), leave)
		}
		for _, p := range v.PCAs {
			fmt.Fprintf(w, "    ◦ %-20s slots %s\n", names[p.StaffID], formatSlots(p.Slots.SlotsFor(team)))
		}
		for _, b := range v.Beds {
			if b.FromTeam == team {
				fmt.Fprintf(w, "    ⇢ %d beds to %s (%s)\n", b.Beds, b.ToTeam, b.Ward)
			} else {
				fmt.Fprintf(w, "    ⇠ %d beds from %s (%s)\n", b.Beds, b.FromTeam, b.Ward)
			}
		}
	}
	fmt.Fprintln(w)
}

func printWarnings(w io.Writer, warnings []model.Warning) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintf(w, "⚠️  Warnings (%d):\n", len(warnings))
	for _, warn := range warnings {
		fmt.Fprintf(w, "  • %s\n", warn)
	}
	fmt.Fprintln(w)
}

func printDrift(w io.Writer, d baseline.Drift) {
	if !d.HasDrift() {
		return
	}
	fmt.Fprintf(w, "⚠️  Live roster differs from this day's baseline:\n")
	for _, line := range []struct {
		label string
		ids   []string
	}{
		{"Added staff", d.AddedStaff},
		{"Removed staff", d.RemovedStaff},
		{"Changed staff", d.ChangedStaff},
		{"Changed wards", d.ChangedWards},
		{"Changed programs", d.ChangedPrograms},
	} {
		if len(line.ids) > 0 {
			fmt.Fprintf(w, "  %-17s %s\n", line.label+":", strings.Join(line.ids, ", "))
		}
	}
	fmt.Fprintln(w)
}
