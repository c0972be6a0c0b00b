// Package geo holds the domain types shared by every layer of the lookup
// proxy: the lookup result, address validation and the error taxonomy.
package geo

// Result is the geolocation of a single IP address.
//
// String fields are never null on the wire; a provider that omits a field
// yields an empty string. Latitude and Longitude are nil when the provider
// did not report coordinates.
type Result struct {
	Address   string   `json:"IpAddress"`
	Continent string   `json:"Continent"`
	Country   string   `json:"Country"`
	Region    string   `json:"Region"`
	City      string   `json:"City"`
	Latitude  *float64 `json:"Latitude"`
	Longitude *float64 `json:"Longitude"`
}

// Equal reports whether r and o describe the same location.
func (r Result) Equal(o Result) bool {
	return r.Address == o.Address &&
		r.Continent == o.Continent &&
		r.Country == o.Country &&
		r.Region == o.Region &&
		r.City == o.City &&
		equalCoord(r.Latitude, o.Latitude) &&
		equalCoord(r.Longitude, o.Longitude)
}

func equalCoord(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Coord returns a pointer to v, for building results in code and tests.
func Coord(v float64) *float64 {
	return &v
}
