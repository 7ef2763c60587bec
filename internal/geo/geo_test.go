package geo

import (
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"testing"
)

func Test_CanonicalCity_ResolvesAliases(t *testing.T) {
	assert.Equal(t, "bangalore", CanonicalCity("Bengaluru"))
	assert.Equal(t, "mumbai", CanonicalCity(" Bombay "))
	assert.Equal(t, "gurugram", CanonicalCity("Gurgaon"))
	assert.Equal(t, "new york", CanonicalCity("NYC"))
	assert.Equal(t, "chennai", CanonicalCity("Madras"))
	assert.Equal(t, "kazan", CanonicalCity("Kazan"))
}

func Test_Parse_InfersCountryFromCity(t *testing.T) {
	place := Parse("Bengaluru")
	assert.Equal(t, "bangalore", place.City)
	assert.Equal(t, "india", place.Country)
	assert.False(t, place.Remote)
}

func Test_Parse_ExplicitCountryWins(t *testing.T) {
	place := Parse("London, Ontario, Canada")
	assert.Equal(t, "london", place.City)
	assert.Equal(t, "canada", place.Country)
}

func Test_Parse_Remote(t *testing.T) {
	place := Parse("Remote - India")
	assert.True(t, place.Remote)
	assert.Equal(t, "", place.City)
	assert.Equal(t, "india", place.Country)

	assert.True(t, Parse("").IsZero())
}

func Test_SameCity_AliasAware(t *testing.T) {
	assert.True(t, SameCity("Bengaluru, India", "Bangalore, Karnataka, India"))
	assert.False(t, SameCity("Pune, India", "Mumbai, India"))
	assert.False(t, SameCity("", ""))
}

func Test_Tier(t *testing.T) {
	user := "Bengaluru, India"

	assert.Equal(t, models.TierExact, Tier("Bangalore, India", user))
	assert.Equal(t, models.TierCountry, Tier("Mumbai, India", user))
	assert.Equal(t, models.TierOther, Tier("Berlin, Germany", user))
	assert.Equal(t, models.TierOther, Tier("Remote", user))
	assert.Equal(t, models.TierCity, Tier("London, Canada", "London, UK"))
	assert.Equal(t, models.TierOther, Tier("Bangalore, India", ""))
}

func Test_IsPlace(t *testing.T) {
	assert.True(t, IsPlace("Bangalore"))
	assert.True(t, IsPlace("USA"))
	assert.True(t, IsPlace("remote"))
	assert.False(t, IsPlace("backend"))
	assert.False(t, IsPlace(""))
}

func Test_Spellings(t *testing.T) {
	assert.Equal(t, []string{"bangalore", "bangaluru", "bengaluru"}, Spellings("Bengaluru"))
	assert.Equal(t, []string{"pune", "poona"}, Spellings("pune"))
	assert.Nil(t, Spellings(" "))
}
