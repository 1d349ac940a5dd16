package sale

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestScheduleFromSettingsBoundaries(t *testing.T) {
	const blocksPerDay = 6450
	settings := testSettings()
	settings.StartTick = 1000
	settings.AllocationTicks = 14 * blocksPerDay
	settings.StageCount = 12
	settings.StageTicks = 30 * blocksPerDay

	schedule, err := ScheduleFromSettings(settings)
	require.NoError(t, err)
	require.Equal(t, 13, schedule.Len())

	allocationEnd := settings.StartTick + settings.AllocationTicks
	require.Equal(t, settings.StartTick, schedule.Start())
	require.Equal(t, allocationEnd+(settings.StageTicks+1)*12, schedule.End())

	_, ok := schedule.StageAt(settings.StartTick - 1)
	require.False(t, ok)
	_, ok = schedule.StageAt(schedule.End())
	require.False(t, ok)

	st, ok := schedule.StageAt(allocationEnd - 1)
	require.True(t, ok)
	require.Equal(t, uint8(0), st.Index)

	st, ok = schedule.StageAt(allocationEnd)
	require.True(t, ok)
	require.Equal(t, uint8(1), st.Index)
	require.Equal(t, uint256.NewInt(21e14), &st.UnitPrice)

	st, ok = schedule.StageAt(schedule.End() - 1)
	require.True(t, ok)
	require.Equal(t, uint8(12), st.Index)
	require.Equal(t, uint256.NewInt(32e14), &st.UnitPrice)

	price, ok := schedule.PriceAt(allocationEnd + settings.StageTicks + 1)
	require.True(t, ok)
	require.Equal(t, uint256.NewInt(22e14), price)

	stages := schedule.Stages()
	for i := 1; i < len(stages); i++ {
		require.Equal(t, stages[i-1].EndTick, stages[i].StartTick)
		require.True(t, stages[i].UnitPrice.Gt(&stages[i-1].UnitPrice))
	}
}

func TestScheduleFromSettingsRejectsInvalid(t *testing.T) {
	settings := testSettings()
	settings.AllocationTicks = 0
	_, err := ScheduleFromSettings(settings)
	require.ErrorIs(t, err, ErrInvalidSchedule)

	settings = testSettings()
	settings.StagePriceIncrease = uint256.Int{}
	_, err = ScheduleFromSettings(settings)
	require.ErrorIs(t, err, ErrInvalidSchedule)

	settings = testSettings()
	settings.StartTick = ^uint64(0) - 10
	_, err = ScheduleFromSettings(settings)
	require.ErrorIs(t, err, ErrInvalidSchedule)

	settings = testSettings()
	settings.StageCount = 0
	settings.StagePriceIncrease = uint256.Int{}
	schedule, err := ScheduleFromSettings(settings)
	require.NoError(t, err)
	require.Equal(t, 1, schedule.Len())
}

func TestNewScheduleValidation(t *testing.T) {
	price := func(v uint64) uint256.Int { return *uint256.NewInt(v) }
	cases := []struct {
		name   string
		stages []Stage
	}{
		{name: "empty"},
		{name: "bad index", stages: []Stage{{Index: 1, StartTick: 0, EndTick: 10, UnitPrice: price(1)}}},
		{name: "empty range", stages: []Stage{{Index: 0, StartTick: 10, EndTick: 10, UnitPrice: price(1)}}},
		{name: "zero price", stages: []Stage{{Index: 0, StartTick: 0, EndTick: 10}}},
		{name: "gap", stages: []Stage{
			{Index: 0, StartTick: 0, EndTick: 10, UnitPrice: price(1)},
			{Index: 1, StartTick: 11, EndTick: 20, UnitPrice: price(2)},
		}},
		{name: "flat price", stages: []Stage{
			{Index: 0, StartTick: 0, EndTick: 10, UnitPrice: price(2)},
			{Index: 1, StartTick: 10, EndTick: 20, UnitPrice: price(2)},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSchedule(tc.stages)
			require.ErrorIs(t, err, ErrInvalidSchedule)
		})
	}
}

func TestSettingsValidate(t *testing.T) {
	settings := testSettings()
	require.NoError(t, settings.Validate())

	settings.WhitelistController = project
	settings.ProjectWallet = [20]byte{}
	require.ErrorIs(t, settings.Validate(), ErrInvalidSettings)

	settings = testSettings()
	settings.ParticipantCap = *uint256.NewInt(5)
	settings.ParticipantStageCap = *uint256.NewInt(6)
	require.ErrorIs(t, settings.Validate(), ErrInvalidSettings)
}

func TestTokensForZeroPrice(t *testing.T) {
	tokens, dust := TokensFor(uint256.NewInt(7), new(uint256.Int))
	require.True(t, tokens.IsZero())
	require.Equal(t, uint256.NewInt(7), &dust)
}

func TestDecisionKindNames(t *testing.T) {
	for k := DecisionWhitelistAccept; k <= DecisionCommitAccept; k++ {
		parsed, ok := ParseDecisionKind(k.String())
		require.True(t, ok)
		require.Equal(t, k, parsed)
	}
	_, ok := ParseDecisionKind("approve")
	require.False(t, ok)
}
