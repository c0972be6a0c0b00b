package provider

import "github.com/Sternrassler/ipgeo-proxy/pkg/geo"

// response is the subset of the provider's JSON body the proxy uses.
// Unknown fields are ignored.
type response struct {
	Continent   *string  `json:"continent"`
	CountryName *string  `json:"countryName"`
	RegionName  *string  `json:"regionName"`
	CityName    *string  `json:"cityName"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

func (r response) toResult(address string) geo.Result {
	return geo.Result{
		Address:   address,
		Continent: nz(r.Continent),
		Country:   nz(r.CountryName),
		Region:    nz(r.RegionName),
		City:      nz(r.CityName),
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
	}
}

func nz(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
