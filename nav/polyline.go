package nav

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
)

var errTruncatedPolyline = errors.New("truncated polyline")

// decodePolyline decodes an encoded polyline (precision 5, as used by OSRM
// and Google) into a line string of lon/lat points.
func decodePolyline(encoded string) (orb.LineString, error) {
	if encoded == "" {
		return orb.LineString{}, nil
	}

	factor := math.Pow10(5)

	lat, lng := 0, 0
	var points orb.LineString
	index := 0

	for index < len(encoded) {
		dLat, next, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		index = next
		lat += dLat

		dLng, next, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		index = next
		lng += dLng

		points = append(points, orb.Point{float64(lng) / factor, float64(lat) / factor})
	}
	return points, nil
}

// decodeValue consumes one zigzag varint starting at index.
func decodeValue(encoded string, index int) (int, int, error) {
	var b int = 0x20
	shift, result := 0, 0
	for b >= 0x20 {
		if index >= len(encoded) {
			return 0, index, errTruncatedPolyline
		}
		b = int(encoded[index]) - 63
		result |= (b & 0x1f) << shift
		shift += 5
		index++
	}

	// check if we need to go negative or not
	if (result & 1) > 0 {
		return ^(result >> 1), index, nil
	}
	return result >> 1, index, nil
}

// joinLines appends b to a, dropping b's first point when it repeats a's
// last point.
func joinLines(a, b orb.LineString) orb.LineString {
	if len(a) > 0 && len(b) > 0 && a[len(a)-1] == b[0] {
		b = b[1:]
	}
	return append(a, b...)
}
