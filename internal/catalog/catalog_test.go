package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/waterwatch/internal/domain"
)

func TestDefault_Seed(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.Len(t, c.Provinces, 2)
	assert.Equal(t, "San José", c.Provinces[0].Name)
	assert.Empty(t, c.Provinces[0].Cantons)
	require.Len(t, c.Provinces[1].Cantons, 2)
	assert.Len(t, c.Provinces[1].Cantons[0].Districts, 2)
}

func TestLookupAndLabel(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	m := c.Lookup("2", "29", "231")
	require.NotNil(t, m.District)
	assert.Equal(t, "Alajuela / San Ramón / San Juan", m.Label())

	m = c.Lookup("2", "30", "999")
	assert.Nil(t, m.District)
	assert.Equal(t, "Alajuela / Grecia", m.Label())

	assert.Equal(t, "", c.Lookup("9", "1", "1").Label())
}

func TestResolve(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	got, err := c.Resolve(domain.MonitoredLocation{ProvinceID: "2", CantonID: "29", DistrictID: "232"})
	require.NoError(t, err)
	assert.Equal(t, "Piedades Norte", got.Name)

	got, err = c.Resolve(domain.MonitoredLocation{ProvinceID: "2", CantonID: "29", DistrictID: "232", Name: "Casa"})
	require.NoError(t, err)
	assert.Equal(t, "Casa", got.Name, "a given name is kept")

	_, err = c.Resolve(domain.MonitoredLocation{ProvinceID: "2", CantonID: "29", DistrictID: "999"})
	assert.ErrorIs(t, err, ErrUnknownLocation)

	got, err = c.Resolve(domain.MonitoredLocation{ProvinceID: "2", CantonID: "30", DistrictID: "240"})
	require.NoError(t, err, "canton without listed districts accepts any")
	assert.Equal(t, "Alajuela / Grecia", got.Name)

	got, err = c.Resolve(domain.MonitoredLocation{ProvinceID: "7", CantonID: "1", DistrictID: "1"})
	require.NoError(t, err)
	assert.Equal(t, "7/1/1", got.Name)
}

func TestParse_Rejects(t *testing.T) {
	_, err := Parse([]byte("provinces: [{name: x}]"))
	assert.Error(t, err)
	_, err = Parse([]byte("provinces: {"))
	assert.Error(t, err)
}
