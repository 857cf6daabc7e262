package models

import "strings"

// USStates maps two-letter state and territory codes to names. The iteration
// order of a map is unstable, so schedulers should use StateCodes instead.
var USStates = map[string]string{
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
	"WI": "Wisconsin", "WY": "Wyoming", "DC": "District of Columbia",
	"PR": "Puerto Rico", "VI": "U.S. Virgin Islands", "GU": "Guam",
}

// StateCodes lists the state codes in a fixed fan-out order. The scheduler
// enqueues nationwide sources against a bounded prefix of this list per tick.
var StateCodes = []string{
	"TX", "FL", "GA", "CA", "AZ", "NC", "TN", "OH", "MI", "NV",
	"AL", "AK", "AR", "CO", "CT", "DE", "HI", "ID", "IL", "IN",
	"IA", "KS", "KY", "LA", "ME", "MD", "MA", "MN", "MS", "MO",
	"MT", "NE", "NH", "NJ", "NM", "NY", "ND", "OK", "OR", "PA",
	"RI", "SC", "SD", "UT", "VT", "VA", "WA", "WV", "WI", "WY",
}

// IsValidState reports whether code is a recognized two-letter state or
// territory abbreviation.
func IsValidState(code string) bool {
	_, ok := USStates[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}
