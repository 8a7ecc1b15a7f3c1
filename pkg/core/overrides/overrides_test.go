package overrides

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/rehab-roster/pkg/core/model"
)

func ptr[T any](v T) *T { return &v }

func TestApply_SamePatchTwiceIsIdempotent(t *testing.T) {
	leave := model.LeaveHalfDayVL
	patch := Patch{
		LeaveType:      &leave,
		FTERemaining:   ptr(0.5),
		FTESubtraction: ptr(0.5),
		AvailableSlots: []model.Slot{2, 1, 2},
		AddSubstitutions: []model.SubstitutionLink{
			{NonFloatingPCAID: "pca-1", Team: model.TeamFO, Slots: []model.Slot{3, 4}, Owner: model.StepTherapistPCA},
		},
		SlotOverrides:   map[model.Slot]model.Team{1: model.TeamSMM},
		CardColorByTeam: map[model.Team]string{model.TeamSMM: "#ff0000"},
	}

	once, err := Overrides{}.Apply("s1", patch)
	require.NoError(t, err)
	twice, err := once.Apply("s1", patch)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, []model.Slot{1, 2}, twice["s1"].AvailableSlots)
	assert.Len(t, twice["s1"].Substitutions, 1)
}

func TestApply_PreservesSiblingFields(t *testing.T) {
	o, err := Overrides{}.Apply("f1", Patch{
		AddSubstitutions: []model.SubstitutionLink{
			{NonFloatingPCAID: "pca-1", Team: model.TeamFO, Slots: []model.Slot{3}, Owner: model.StepTherapistPCA},
		},
		CardColorByTeam: map[model.Team]string{model.TeamFO: "blue"},
		SlotOverrides:   map[model.Slot]model.Team{2: model.TeamFO},
	})
	require.NoError(t, err)

	leave := model.LeaveSick
	o, err = o.Apply("f1", Patch{LeaveType: &leave, FTERemaining: ptr(0.0)})
	require.NoError(t, err)

	rec := o["f1"]
	assert.Equal(t, model.LeaveSick, rec.LeaveType)
	assert.Len(t, rec.Substitutions, 1)
	assert.Equal(t, "blue", rec.CardColorByTeam[model.TeamFO])
	assert.Equal(t, model.TeamFO, rec.SlotOverrides[2])
}

func TestApply_DoesNotMutatePreviousMap(t *testing.T) {
	before, err := Overrides{}.Apply("s1", Patch{SlotOverrides: map[model.Slot]model.Team{1: model.TeamFO}})
	require.NoError(t, err)

	after, err := before.Apply("s1", Patch{SlotOverrides: map[model.Slot]model.Team{1: model.TeamSMM, 2: model.TeamSMM}})
	require.NoError(t, err)

	assert.Equal(t, model.TeamFO, before["s1"].SlotOverrides[1])
	assert.Len(t, before["s1"].SlotOverrides, 1)
	assert.Equal(t, model.TeamSMM, after["s1"].SlotOverrides[1])
}

func TestApply_EmptyMapValueDeletesKeyAndPrunesRecord(t *testing.T) {
	o, err := Overrides{}.Apply("s1", Patch{CardColorByTeam: map[model.Team]string{model.TeamFO: "red"}})
	require.NoError(t, err)

	o, err = o.Apply("s1", Patch{CardColorByTeam: map[model.Team]string{model.TeamFO: ""}})
	require.NoError(t, err)

	_, ok := o["s1"]
	assert.False(t, ok, "empty record should be pruned")
}

func TestApply_ClearRunsBeforeSet(t *testing.T) {
	o, err := Overrides{}.Apply("s1", Patch{SlotOverrides: map[model.Slot]model.Team{1: model.TeamFO, 2: model.TeamFO}})
	require.NoError(t, err)

	o, err = o.Apply("s1", Patch{
		Clear:         []Field{FieldSlotOverrides},
		SlotOverrides: map[model.Slot]model.Team{4: model.TeamMC},
	})
	require.NoError(t, err)

	assert.Equal(t, map[model.Slot]model.Team{4: model.TeamMC}, o["s1"].SlotOverrides)
}

func TestApply_RejectsOutOfRangeValues(t *testing.T) {
	_, err := Overrides{}.Apply("s1", Patch{FTERemaining: ptr(1.5)})
	assert.Error(t, err)

	_, err = Overrides{}.Apply("s1", Patch{AvailableSlots: []model.Slot{5}})
	assert.Error(t, err)

	bad := model.Team("XYZ")
	_, err = Overrides{}.Apply("s1", Patch{Team: &bad})
	assert.Error(t, err)

	_, err = Overrides{}.Apply("s1", Patch{Clear: []Field{"nope"}})
	assert.Error(t, err)

	_, err = Overrides{}.Apply("", Patch{})
	assert.Error(t, err)
}

func TestRemoveSubstitutionsTargeting(t *testing.T) {
	o, err := Overrides{}.Apply("f1", Patch{AddSubstitutions: []model.SubstitutionLink{
		{NonFloatingPCAID: "pca-1", Team: model.TeamFO, Slots: []model.Slot{3}, Owner: model.StepTherapistPCA},
		{NonFloatingPCAID: "pca-2", Team: model.TeamSMM, Slots: []model.Slot{4}, Owner: model.StepTherapistPCA},
	}})
	require.NoError(t, err)
	o, err = o.Apply("f2", Patch{AddSubstitutions: []model.SubstitutionLink{
		{NonFloatingPCAID: "pca-1", Team: model.TeamFO, Slots: []model.Slot{4}, Owner: model.StepTherapistPCA},
	}})
	require.NoError(t, err)

	out := o.RemoveSubstitutionsTargeting([]string{model.SubstitutionKey(model.TeamFO, "pca-1")})

	require.Len(t, out["f1"].Substitutions, 1)
	assert.Equal(t, "pca-2", out["f1"].Substitutions[0].NonFloatingPCAID)
	_, ok := out["f2"]
	assert.False(t, ok)
	assert.Len(t, o["f1"].Substitutions, 2, "source map untouched")
}

func TestClearOwnedFrom_KeepsEarlierStepIntent(t *testing.T) {
	leave := model.LeaveHalfDayVL
	team := model.TeamSMM
	o, err := Overrides{}.Apply("s1", Patch{
		LeaveType:       &leave,
		FTERemaining:    ptr(0.5),
		Team:            &team,
		SlotOverrides:   map[model.Slot]model.Team{1: model.TeamFO},
		CardColorByTeam: map[model.Team]string{model.TeamFO: "green"},
		AddSubstitutions: []model.SubstitutionLink{
			{NonFloatingPCAID: "pca-1", Team: model.TeamFO, Slots: []model.Slot{3}, Owner: model.StepTherapistPCA},
			{NonFloatingPCAID: "pca-2", Team: model.TeamFO, Slots: []model.Slot{4}, Owner: model.StepFloatingPCA},
		},
	})
	require.NoError(t, err)

	fromStep3 := o.ClearOwnedFrom(model.StepFloatingPCA)
	rec := fromStep3["s1"]
	assert.Equal(t, model.LeaveHalfDayVL, rec.LeaveType)
	assert.Equal(t, model.TeamSMM, rec.Team)
	assert.Nil(t, rec.SlotOverrides)
	require.Len(t, rec.Substitutions, 1)
	assert.Equal(t, model.StepTherapistPCA, rec.Substitutions[0].Owner)
	assert.Equal(t, "green", rec.CardColorByTeam[model.TeamFO])

	fromStep2 := o.ClearOwnedFrom(model.StepTherapistPCA)
	rec = fromStep2["s1"]
	assert.Equal(t, model.LeaveHalfDayVL, rec.LeaveType)
	assert.Equal(t, model.Team(""), rec.Team)
	assert.Nil(t, rec.Substitutions)

	fromStep1 := o.ClearOwnedFrom(model.StepLeaveFTE)
	rec = fromStep1["s1"]
	assert.Equal(t, model.LeaveNone, rec.LeaveType)
	assert.Nil(t, rec.FTERemaining)
	assert.Equal(t, "green", rec.CardColorByTeam[model.TeamFO], "display fields survive every clear")
}

func TestSubstitutionsFor(t *testing.T) {
	o, err := Overrides{}.Apply("f1", Patch{AddSubstitutions: []model.SubstitutionLink{
		{NonFloatingPCAID: "pca-1", Team: model.TeamFO, Slots: []model.Slot{3, 4}, Owner: model.StepTherapistPCA},
	}})
	require.NoError(t, err)

	got := o.SubstitutionsFor(model.TeamFO, "pca-1")
	require.Contains(t, got, "f1")
	assert.Equal(t, []model.Slot{3, 4}, got["f1"].Slots)
	assert.Empty(t, o.SubstitutionsFor(model.TeamSMM, "pca-1"))
}

func TestCheckCapacity(t *testing.T) {
	assert.NoError(t, CheckCapacity(model.StaffOverride{FTERemaining: ptr(0.5), FTESubtraction: ptr(0.5)}, 1.0))
	assert.NoError(t, CheckCapacity(model.StaffOverride{}, 1.0))
	assert.Error(t, CheckCapacity(model.StaffOverride{FTERemaining: ptr(0.75), FTESubtraction: ptr(0.5)}, 1.0))
	assert.Error(t, CheckCapacity(model.StaffOverride{FTERemaining: ptr(0.5), FTESubtraction: ptr(0.25)}, 0.6))
}

func TestOwner(t *testing.T) {
	assert.Equal(t, model.StepLeaveFTE, Owner(FieldAvailableSlots))
	assert.Equal(t, model.StepTherapistPCA, Owner(FieldTeam))
	assert.Equal(t, model.StepFloatingPCA, Owner(FieldSlotOverrides))
	assert.Equal(t, model.StepID(""), Owner(FieldCardColorByTeam))
}
