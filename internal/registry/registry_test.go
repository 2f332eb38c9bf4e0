package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/couchcryptid/climate-indicator-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_ContainsScreeningSet(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	for _, code := range domain.ScreeningSet {
		v, err := reg.Lookup(code)
		require.NoError(t, err, "screening variable %s", code)
		assert.NotEmpty(t, v.Name)
		assert.NotZero(t, v.NormalizationFactor)
	}

	again, err := Default()
	require.NoError(t, err)
	assert.Same(t, reg, again, "embedded registry is parsed once")
}

func TestDefault_Categories(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)
	assert.Equal(t, domain.Categories, reg.Categories())

	heat := reg.ByCategory("heat")
	require.NotEmpty(t, heat)
	for _, v := range heat {
		assert.Equal(t, domain.CategoryHeat, v.Category)
	}
}

func TestParse_ColumnsByHeader(t *testing.T) {
	in := "Category,Normalization factor,Code,Variable,Unit,Description,Extra\n" +
		"Heat,10,hd35,Hot days,days,Days above 35C,x\n"
	reg, err := Parse(strings.NewReader(in))
	require.NoError(t, err)

	v, err := reg.Lookup("hd35")
	require.NoError(t, err)
	assert.Equal(t, domain.Variable{
		Code: "hd35", Name: "Hot days", Unit: "days", Description: "Days above 35C",
		Category: "Heat", NormalizationFactor: 10,
	}, v)

	byName, ok := reg.ByName("Hot days")
	assert.True(t, ok)
	assert.Equal(t, v, byName)
	assert.Equal(t, 1, reg.Len())
}

func TestParse_Errors(t *testing.T) {
	header := "Code,Variable,Unit,Description,Category,Normalization factor\n"
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "empty"},
		{"missing column", "Code,Variable\nx,y\n", "Unit"},
		{"zero factor", header + "tas,T,C,d,Heat,0\n", "normalization factor"},
		{"bad factor", header + "tas,T,C,d,Heat,abc\n", "normalization factor"},
		{"duplicate", header + "tas,T,C,d,Heat,1\ntas,T,C,d,Heat,1\n", "duplicate"},
		{"empty code", header + ",T,C,d,Heat,1\n", "empty code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	_, err = reg.Lookup("nope")
	assert.True(t, errors.Is(err, ErrUnknownVariable))
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vars.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"Code,Variable,Unit,Description,Category,Normalization factor\n"+
			"tas,Temperature,°C,Mean temperature,Average temperatures,1\n"), 0o600))

	reg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorContains(t, err, "open registry")

	def, err := Load("")
	require.NoError(t, err)
	assert.Greater(t, def.Len(), 1)
}
