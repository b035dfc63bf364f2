package scan

import (
	"fmt"
	"strings"
)

// Schema is one of the supported folder layouts under the data directory.
// Each schema is a fixed depth pattern; the scanner never walks deeper or
// shallower than the pattern defines.
type Schema int

const (
	// SchemaUserDataset is "Username / Dataset".
	SchemaUserDataset Schema = iota

	// SchemaEmailDataset is "Email / Dataset".
	SchemaEmailDataset

	// SchemaUserExperimentDataset is "Username / Experiment / Dataset".
	SchemaUserExperimentDataset

	// SchemaEmailExperimentDataset is "Email / Experiment / Dataset".
	SchemaEmailExperimentDataset

	// SchemaUserMarkerExperimentDataset is
	// "Username / "MyTardis" / Experiment / Dataset": experiments live
	// under a reserved MyTardis folder and everything else in the user
	// folder is ignored.
	SchemaUserMarkerExperimentDataset

	// SchemaGroupInstrumentDataset is
	// "User Group / Instrument / Full Name / Dataset". The Instrument
	// segment must match the configured instrument name exactly.
	SchemaGroupInstrumentDataset
)

// MarkerFolder is the reserved folder name in
// SchemaUserMarkerExperimentDataset.
const MarkerFolder = "MyTardis"

var schemaNames = map[Schema]string{
	SchemaUserDataset:                 "Username / Dataset",
	SchemaEmailDataset:                "Email / Dataset",
	SchemaUserExperimentDataset:       "Username / Experiment / Dataset",
	SchemaEmailExperimentDataset:      "Email / Experiment / Dataset",
	SchemaUserMarkerExperimentDataset: `Username / "MyTardis" / Experiment / Dataset`,
	SchemaGroupInstrumentDataset:      "User Group / Instrument / Full Name / Dataset",
}

func (s Schema) String() string {
	if name, ok := schemaNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown schema %d", int(s))
}

// ParseSchema maps a configured structure name to its schema. Surrounding
// whitespace in each segment is ignored so "Username/Dataset" and
// "Username / Dataset" are equivalent.
func ParseSchema(name string) (Schema, error) {
	normalized := normalizeSchemaName(name)
	for schema, schemaName := range schemaNames {
		if normalizeSchemaName(schemaName) == normalized {
			return schema, nil
		}
	}
	return 0, fmt.Errorf("unsupported folder structure %q", name)
}

func normalizeSchemaName(name string) string {
	segments := strings.Split(name, "/")
	for i, segment := range segments {
		segments[i] = strings.TrimSpace(segment)
	}
	return strings.Join(segments, "/")
}

// MatchByEmail reports whether the identity segment holds email addresses
// rather than usernames.
func (s Schema) MatchByEmail() bool {
	return s == SchemaEmailDataset || s == SchemaEmailExperimentDataset
}

// IsGroup reports whether the identity segment holds group names.
func (s Schema) IsGroup() bool {
	return s == SchemaGroupInstrumentDataset
}

// HasExperimentSegment reports whether the layout carries an explicit
// experiment folder whose name becomes the experiment title. Layouts without
// one synthesize the title from the instrument and owner names.
func (s Schema) HasExperimentSegment() bool {
	switch s {
	case SchemaUserExperimentDataset, SchemaEmailExperimentDataset,
		SchemaUserMarkerExperimentDataset, SchemaGroupInstrumentDataset:
		return true
	}
	return false
}
