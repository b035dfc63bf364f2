package scan

import "strings"

// Filters narrows a scan pass by case-insensitive substring match on folder
// names at each level. Empty filters match everything.
type Filters struct {
	User       string
	Experiment string
	Dataset    string
}

func matches(name, filter string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(filter))
}

// MatchesUser reports whether an identity folder passes the user filter. For
// group layouts the filter applies to the group folder name.
func (f Filters) MatchesUser(name string) bool {
	return matches(name, f.User)
}

// MatchesExperiment reports whether an experiment folder passes the
// experiment filter.
func (f Filters) MatchesExperiment(name string) bool {
	return matches(name, f.Experiment)
}

// MatchesDataset reports whether a dataset folder passes the dataset filter.
func (f Filters) MatchesDataset(name string) bool {
	return matches(name, f.Dataset)
}
