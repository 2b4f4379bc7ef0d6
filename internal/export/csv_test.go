package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scan2sheet/pkg/models"
)

func TestCSV_SingleTable(t *testing.T) {
	data, err := CSV([]models.Grid{{{"A", "B"}, {"C", "D"}}})
	require.NoError(t, err)
	assert.Equal(t, "A,B\nC,D\n", string(data))
}

func TestCSV_Concatenation(t *testing.T) {
	a := models.Grid{{"1", "2"}, {"3", "4"}, {"5", "6"}}
	b := models.Grid{{"7", "8"}, {"9", "10"}}

	data, err := CSV([]models.Grid{a, b})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, []string{"1,2", "3,4", "5,6", "7,8", "9,10"}, lines)
}

func TestCSV_PadsNarrowerGrids(t *testing.T) {
	data, err := CSV([]models.Grid{
		{{"a"}},
		{{"b", "c", "d"}},
		{{"e", "f"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "a,,\nb,c,d\ne,f,\n", string(data))
}

func TestCSV_QuotesAndUTF8(t *testing.T) {
	data, err := CSV([]models.Grid{{{"1,5", `say "hi"`, "手書き"}}})
	require.NoError(t, err)
	assert.Equal(t, "\"1,5\",\"say \"\"hi\"\"\",手書き\n", string(data))
}

func TestCSV_Empty(t *testing.T) {
	_, err := CSV(nil)
	assert.ErrorIs(t, err, ErrNoTables)
}

func TestGrids(t *testing.T) {
	tables := []models.ExtractedTable{
		{Grid: models.Grid{{"x"}}},
		{Grid: models.Grid{{"y"}}},
	}
	assert.Equal(t, []models.Grid{{{"x"}}, {{"y"}}}, Grids(tables))
}
