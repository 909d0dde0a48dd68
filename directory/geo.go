package directory

import (
	"math"
	"sort"
)

const earthRadiusKm = 6371.0

// haversine returns the great-circle distance in km between two points.
func haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// boundingBox returns a lat/lng box that contains the circle of radiusKm
// around the point. ok is false near the poles where the box degenerates.
func boundingBox(lat, lng, radiusKm float64) (minLat, maxLat, minLng, maxLng float64, ok bool) {
	const kmPerDegree = 111.32
	dLat := radiusKm / kmPerDegree
	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 0.01 {
		return 0, 0, 0, 0, false
	}
	dLng := radiusKm / (kmPerDegree * cosLat)
	if dLng >= 180 {
		return 0, 0, 0, 0, false
	}
	// small margin so vendors sitting exactly on the radius survive the prefilter
	dLat *= 1.01
	dLng *= 1.01
	return lat - dLat, lat + dLat, lng - dLng, lng + dLng, true
}

// rank orders candidates nearest first, breaking ties on vendor ID.
func rank(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].DistanceKm != cs[j].DistanceKm {
			return cs[i].DistanceKm < cs[j].DistanceKm
		}
		return cs[i].Vendor.ID < cs[j].Vendor.ID
	})
}
