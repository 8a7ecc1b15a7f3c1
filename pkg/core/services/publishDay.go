package services

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/pkg/clients/sheetsclient"
	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/workflow"
	"github.com/jakechorley/rehab-roster/pkg/db"
	"github.com/jakechorley/rehab-roster/pkg/utils/logging"
)

// DayPublisher defines the sheets operations needed to publish a day
type DayPublisher interface {
	PublishDay(spreadsheetID string, day *sheetsclient.PublishedDay) error
}

// PublishDay publishes a saved day to its own tab of the publish spreadsheet
func PublishDay(
	ctx context.Context,
	schedules db.ScheduleStore,
	publisher DayPublisher,
	spreadsheetID string,
	logger *zap.Logger,
	date time.Time,
) error {
	if spreadsheetID == "" {
		return fmt.Errorf("no publish spreadsheet configured")
	}

	day, err := LoadDay(ctx, schedules, logger, date)
	if err != nil {
		return err
	}
	if day == nil {
		return fmt.Errorf("no schedule saved for %s", date.Format(dateLayout))
	}

	log := logging.ForDay(logger, date)
	published := BuildPublishedDay(day.State)
	log.Debug("Publishing day", zap.Int("rows", len(published.Rows)))

	if err := publisher.PublishDay(spreadsheetID, published); err != nil {
		return fmt.Errorf("failed to publish day: %w", err)
	}

	log.Info("Published day")
	return nil
}

// BuildPublishedDay lists therapists then PCAs, each grouped by team in the
// fixed team order and by name within a team
func BuildPublishedDay(state *workflow.DayState) *sheetsclient.PublishedDay {
	staff := make(map[string]model.Staff, len(state.Staff))
	for _, st := range state.Staff {
		staff[st.ID] = st
	}
	name := func(id string) string {
		if st, ok := staff[id]; ok && st.Name != "" {
			return st.Name
		}
		return id
	}

	var therapists, pcas []sheetsclient.PublishedRow
	for _, t := range state.Allocations.Therapists {
		row := sheetsclient.PublishedRow{
			Staff: name(t.StaffID),
			Role:  string(staff[t.StaffID].Rank),
			Team:  string(t.Team),
			FTE:   formatFTE(t.FTE),
		}
		for _, s := range t.Slots {
			if s.IsValid() {
				row.Slots[s-1] = string(t.Team)
			}
		}
		therapists = append(therapists, row)
	}
	for _, p := range state.Allocations.PCAs {
		row := sheetsclient.PublishedRow{
			Staff: name(p.StaffID),
			Role:  string(model.RankPCA),
			Team:  string(p.Team),
			FTE:   formatFTE(p.FTEPCA),
		}
		for i, team := range p.Slots {
			row.Slots[i] = string(team)
		}
		pcas = append(pcas, row)
	}

	byTeamThenName := func(a, b sheetsclient.PublishedRow) int {
		if c := model.Team(a.Team).Index() - model.Team(b.Team).Index(); c != 0 {
			return c
		}
		return strings.Compare(a.Staff, b.Staff)
	}
	slices.SortStableFunc(therapists, byTeamThenName)
	slices.SortStableFunc(pcas, byTeamThenName)

	return &sheetsclient.PublishedDay{
		Date: state.Date,
		Rows: append(therapists, pcas...),
	}
}

func formatFTE(fte float64) string {
	return strconv.FormatFloat(fte, 'f', -1, 64)
}
