package remote_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mediaroom/internal/keys"
	"mediaroom/internal/remote"
)

func TestCommand_Resolve(t *testing.T) {
	table := keys.Default()

	t.Run("every number in range becomes one key per digit", func(t *testing.T) {
		for n := 0; n < remote.MaxNumber; n++ {
			codes, err := remote.Number(n).Resolve(table)
			require.NoError(t, err, "number %d", n)

			digits := strconv.Itoa(n)
			require.Len(t, codes, len(digits), "number %d", n)
			for i, r := range digits {
				want, err := table.Digit(int(r - '0'))
				require.NoError(t, err)
				assert.Equal(t, want, codes[i], "number %d digit %d", n, i)
			}
		}
	})

	t.Run("numbers outside the range are unknown", func(t *testing.T) {
		for _, n := range []int{-1, -100, 999, 1000, 123456} {
			_, err := remote.Number(n).Resolve(table)
			assert.ErrorIs(t, err, remote.ErrUnknownCommand, "number %d", n)
		}
	})

	t.Run("symbolic names use the table", func(t *testing.T) {
		codes, err := remote.Key(keys.Power).Resolve(table)
		require.NoError(t, err)
		assert.Equal(t, []keys.Code{table[keys.Power]}, codes)
	})

	t.Run("unknown names are rejected", func(t *testing.T) {
		for _, name := range []string{"Bogus", "power", "", "Number10"} {
			_, err := remote.Key(name).Resolve(table)
			assert.ErrorIs(t, err, remote.ErrUnknownCommand, "name %q", name)
		}
	})

	t.Run("overridden table is honoured", func(t *testing.T) {
		custom := table.Merge(map[string]int{"Number1": 1001, "Netflix": 4242})

		codes, err := remote.Number(11).Resolve(custom)
		require.NoError(t, err)
		assert.Equal(t, []keys.Code{1001, 1001}, codes)

		codes, err = remote.Key("Netflix").Resolve(custom)
		require.NoError(t, err)
		assert.Equal(t, []keys.Code{4242}, codes)
	})
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input   string
		numeric bool
		want    string
	}{
		{"Power", false, "Power"},
		{"123", true, "123"},
		{"007", true, "7"},
		{"12a", false, "12a"},
		{"-5", false, "-5"},
		{"", false, ""},
		{"99999999999999999999999", true, "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cmd := remote.ParseCommand(tt.input)
			assert.Equal(t, tt.numeric, cmd.IsNumeric())
			assert.Equal(t, tt.want, cmd.String())
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "OFF", remote.StateOff.String())
	assert.Equal(t, "PLAYING", remote.StatePlaying.String())
	assert.Equal(t, "STANDBY", remote.StateStandby.String())
	assert.Equal(t, "UNKNOWN", remote.StateUnknown.String())

	text, err := remote.StateStandby.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "STANDBY", string(text))
}
