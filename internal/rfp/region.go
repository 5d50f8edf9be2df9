package rfp

import (
	"fmt"
	"strings"
)

// Region is a USPS state code or the federal marker.
type Region string

// RegionFederal marks nationally scoped opportunities.
const RegionFederal Region = "Federal"

var stateNames = map[Region]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas",
	"CA": "California", "CO": "Colorado", "CT": "Connecticut", "DE": "Delaware",
	"FL": "Florida", "GA": "Georgia", "HI": "Hawaii", "ID": "Idaho",
	"IL": "Illinois", "IN": "Indiana", "IA": "Iowa", "KS": "Kansas",
	"KY": "Kentucky", "LA": "Louisiana", "ME": "Maine", "MD": "Maryland",
	"MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota", "MS": "Mississippi",
	"MO": "Missouri", "MT": "Montana", "NE": "Nebraska", "NV": "Nevada",
	"NH": "New Hampshire", "NJ": "New Jersey", "NM": "New Mexico", "NY": "New York",
	"NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio", "OK": "Oklahoma",
	"OR": "Oregon", "PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina",
	"SD": "South Dakota", "TN": "Tennessee", "TX": "Texas", "UT": "Utah",
	"VT": "Vermont", "VA": "Virginia", "WA": "Washington", "WV": "West Virginia",
	"WI": "Wisconsin", "WY": "Wyoming",
}

var regionByName = func() map[string]Region {
	out := make(map[string]Region, len(stateNames)+4)
	for code, name := range stateNames {
		out[strings.ToLower(name)] = code
		out[strings.ToLower(string(code))] = code
	}
	for _, alias := range []string{"federal", "us", "usa", "national"} {
		out[alias] = RegionFederal
	}
	return out
}()

// ParseRegion canonicalizes a state code, state name or federal alias.
func ParseRegion(raw string) (Region, error) {
	key := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	if r, ok := regionByName[key]; ok {
		return r, nil
	}
	return "", fmt.Errorf("unknown region %q", raw)
}

// Valid reports whether r is canonical.
func (r Region) Valid() bool {
	if r == RegionFederal {
		return true
	}
	_, ok := stateNames[r]
	return ok
}

// Label is the human-readable region name.
func (r Region) Label() string {
	if name, ok := stateNames[r]; ok {
		return name
	}
	return string(r)
}
