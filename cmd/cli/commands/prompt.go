package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/resolvers"
)

// Prompter answers allocation escalations by asking on a terminal
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter creates a prompter reading answers from in
func NewPrompter(in *bufio.Reader, out io.Writer) *Prompter {
	return &Prompter{in: in, out: out}
}

// Set exposes the prompts as a resolver set
func (p *Prompter) Set() resolvers.Set {
	return resolvers.Set{
		SpecialProgram: p.specialProgram,
		Substitution:   p.substitution,
		SPTFinalEdit:   p.sptFinalEdit,
		TieBreak:       p.tieBreak,
	}
}

const promptKeys = "Enter=best match, b=back, c=cancel"

// readLine returns the next trimmed line. End of input cancels.
func (p *Prompter) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", resolvers.ErrCancelled
	}
	return strings.TrimSpace(line), nil
}

// choose asks for a number between 1 and n. A zero choice with a Skipped
// outcome means the user pressed Enter.
func (p *Prompter) choose(ctx context.Context, prompt string, n int) (int, resolvers.Outcome, error) {
	for {
		fmt.Fprintf(p.out, "%s [1-%d, %s]: ", prompt, n, promptKeys)
		line, err := p.readLine(ctx)
		if err != nil {
			return 0, resolvers.Cancelled, err
		}
		switch strings.ToLower(line) {
		case "", "s":
			return 0, resolvers.Skipped, nil
		case "b":
			return 0, resolvers.Back, nil
		case "c", "q":
			return 0, resolvers.Cancelled, nil
		}
		if i, err := strconv.Atoi(line); err == nil && i >= 1 && i <= n {
			return i, resolvers.Resolved, nil
		}
		fmt.Fprintf(p.out, "Please enter a number from 1 to %d\n", n)
	}
}

// confirm asks for Enter to accept, or back or cancel
func (p *Prompter) confirm(ctx context.Context, prompt string) (resolvers.Outcome, string, error) {
	fmt.Fprintf(p.out, "%s [Enter=accept, b=back, c=cancel]: ", prompt)
	line, err := p.readLine(ctx)
	if err != nil {
		return resolvers.Cancelled, "", err
	}
	switch strings.ToLower(line) {
	case "":
		return resolvers.Skipped, "", nil
	case "b":
		return resolvers.Back, "", nil
	case "c", "q":
		return resolvers.Cancelled, "", nil
	}
	return resolvers.Resolved, line, nil
}

func (p *Prompter) specialProgram(ctx context.Context, req resolvers.ProgramRequest) (resolvers.ProgramResolution, error) {
	fmt.Fprintf(p.out, "\nSpecial programs running today:\n")
	for _, prog := range req.Programs {
		fmt.Fprintf(p.out, "  - %s (%s) slots %s\n", prog.Name, prog.Team, formatSlots(prog.Slots))
	}
	for {
		outcome, line, err := p.confirm(ctx, "Keep the usual staff")
		if err != nil || outcome != resolvers.Resolved {
			return resolvers.ProgramResolution{Outcome: outcome}, err
		}
		fmt.Fprintf(p.out, "Unrecognised answer %q\n", line)
	}
}

func (p *Prompter) substitution(ctx context.Context, needs []resolvers.SubstitutionNeed) (resolvers.SubstitutionResolution, error) {
	res := resolvers.SubstitutionResolution{Outcome: resolvers.Skipped}
	for _, need := range needs {
		fmt.Fprintf(p.out, "\n%s needs cover for %s in slots %s\n", need.Team, need.NonFloatingPCAID, formatSlots(need.MissingSlots))
		if len(need.Candidates) == 0 {
			fmt.Fprintln(p.out, "  no floating PCA can cover this gap")
			continue
		}
		for i, c := range need.Candidates {
			var tags []string
			if c.Preferred {
				tags = append(tags, "preferred")
			}
			if c.FloorMatch {
				tags = append(tags, "same floor")
			}
			fmt.Fprintf(p.out, "  %d. %s covers %s %s\n", i+1, c.Name, formatSlots(c.CoverSlots), strings.Join(tags, ", "))
		}

		choice, outcome, err := p.choose(ctx, "Cover with", len(need.Candidates))
		if err != nil {
			return resolvers.SubstitutionResolution{Outcome: resolvers.Cancelled}, err
		}
		switch outcome {
		case resolvers.Back, resolvers.Cancelled:
			return resolvers.SubstitutionResolution{Outcome: outcome}, nil
		case resolvers.Resolved:
			c := need.Candidates[choice-1]
			if res.Selections == nil {
				res.Selections = make(map[string][]resolvers.Selection)
			}
			res.Selections[need.Key] = []resolvers.Selection{{FloatingPCAID: c.StaffID, Slots: c.CoverSlots}}
			res.Outcome = resolvers.Resolved
		}
	}
	return res, nil
}

func (p *Prompter) sptFinalEdit(ctx context.Context, spts []model.Staff, current []model.TherapistAllocation) (resolvers.SPTResolution, error) {
	res := resolvers.SPTResolution{Outcome: resolvers.Skipped}
	for _, spt := range spts {
		placed := make([]string, 0)
		for _, a := range current {
			if a.StaffID == spt.ID {
				placed = append(placed, fmt.Sprintf("%s=%s", a.Team, strconv.FormatFloat(a.FTE, 'f', -1, 64)))
			}
		}
		fmt.Fprintf(p.out, "\n%s is placed on %s\n", spt.Name, strings.Join(placed, ","))

		for {
			outcome, line, err := p.confirm(ctx, "New placement, e.g. FO=0.5,SMM=0.5")
			if err != nil {
				return resolvers.SPTResolution{Outcome: resolvers.Cancelled}, err
			}
			if outcome == resolvers.Back || outcome == resolvers.Cancelled {
				return resolvers.SPTResolution{Outcome: outcome}, nil
			}
			if outcome == resolvers.Skipped {
				break
			}
			fte, err := parseTeamFTE(line)
			if err != nil {
				fmt.Fprintf(p.out, "%v\n", err)
				continue
			}
			if res.Updates == nil {
				res.Updates = make(map[string]resolvers.SPTUpdate)
			}
			res.Updates[spt.ID] = resolvers.SPTUpdate{FTEByTeam: fte}
			res.Outcome = resolvers.Resolved
			break
		}
	}
	return res, nil
}

func (p *Prompter) tieBreak(ctx context.Context, tied []model.Team, pendingFTE float64) (resolvers.TieBreakResolution, error) {
	fmt.Fprintf(p.out, "\nTeams tied for floating PCA (%.2f FTE pending each):\n", pendingFTE)
	for i, team := range tied {
		fmt.Fprintf(p.out, "  %d. %s\n", i+1, team)
	}

	choice, outcome, err := p.choose(ctx, "Serve first", len(tied))
	if err != nil || outcome != resolvers.Resolved {
		return resolvers.TieBreakResolution{Outcome: outcome}, err
	}
	return resolvers.TieBreakResolution{Outcome: resolvers.Resolved, Team: tied[choice-1]}, nil
}

// parseTeamFTE parses "FO=0.5,SMM=0.5"
func parseTeamFTE(s string) (map[model.Team]float64, error) {
	out := make(map[model.Team]float64)
	for _, part := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("expected TEAM=FTE, got %q", part)
		}
		team, err := model.ParseTeam(strings.ToUpper(strings.TrimSpace(key)))
		if err != nil {
			return nil, err
		}
		fte, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || fte < 0 || fte > 1 {
			return nil, fmt.Errorf("invalid FTE %q for %s", value, team)
		}
		out[team] = fte
	}
	return out, nil
}

func formatSlots(slots []model.Slot) string {
	if len(slots) == 0 {
		return "-"
	}
	parts := make([]string, len(slots))
	for i, s := range slots {
		parts[i] = strconv.Itoa(int(s))
	}
	return strings.Join(parts, ",")
}
