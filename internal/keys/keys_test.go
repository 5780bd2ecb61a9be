package keys_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mediaroom/internal/keys"
)

func TestDefault(t *testing.T) {
	t.Run("contains every digit and power", func(t *testing.T) {
		table := keys.Default()

		for d := 0; d <= 9; d++ {
			code, err := table.Digit(d)
			require.NoError(t, err)
			assert.Equal(t, keys.Code(48+d), code)
		}

		_, ok := table.Lookup(keys.Power)
		assert.True(t, ok)
	})

	t.Run("returns an independent copy", func(t *testing.T) {
		first := keys.Default()
		first[keys.Power] = 1

		second := keys.Default()
		assert.NotEqual(t, keys.Code(1), second[keys.Power])
	})
}

func TestTable_Digit(t *testing.T) {
	table := keys.Default()

	_, err := table.Digit(10)
	assert.Error(t, err)

	_, err = table.Digit(-1)
	assert.Error(t, err)

	delete(table, "Number7")
	_, err = table.Digit(7)
	assert.Error(t, err)
}

func TestTable_Merge(t *testing.T) {
	base := keys.Default()
	merged := base.Merge(map[string]int{"Power": 1234, "Netflix": 57400})

	assert.Equal(t, keys.Code(1234), merged[keys.Power])
	assert.Equal(t, keys.Code(57400), merged["Netflix"])
	assert.Equal(t, keys.Code(61440), base[keys.Power])
	_, ok := base.Lookup("Netflix")
	assert.False(t, ok)
}

func TestTable_Names(t *testing.T) {
	names := keys.Default().Names()

	assert.True(t, sort.StringsAreSorted(names))
	assert.Contains(t, names, "Number0")
	assert.Contains(t, names, "Power")
}
