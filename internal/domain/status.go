package domain

// Group is one category of remote artifacts fetched for a job.
type Group string

const (
	GroupTimeseries Group = "timeseries"
	GroupTrend      Group = "trend"
	GroupConfidence Group = "confidence"
)

// Groups lists artifact groups in payload order.
var Groups = []Group{GroupTimeseries, GroupTrend, GroupConfidence}

// Status is the retrieval outcome of one artifact group.
type Status string

const (
	StatusNotRetrieved Status = "Not Retrieved"
	StatusRetrieved    Status = "Retrieved"
	// StatusPartial means at least one, but not every, window of the group
	// was fetched. The fetched windows are kept.
	StatusPartial Status = "Partial"
	StatusError   Status = "Error"
)

// HasData reports whether a group in this status carries a dataset.
func (s Status) HasData() bool {
	return s == StatusRetrieved || s == StatusPartial
}

// StatusMap holds one status per artifact group.
type StatusMap map[Group]Status

// NewStatusMap returns a map with every group marked as not retrieved.
func NewStatusMap() StatusMap {
	m := make(StatusMap, len(Groups))
	for _, g := range Groups {
		m[g] = StatusNotRetrieved
	}
	return m
}

// Clone returns an independent copy.
func (m StatusMap) Clone() StatusMap {
	out := make(StatusMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// AnyError reports whether any group ended in StatusError.
func (m StatusMap) AnyError() bool {
	for _, s := range m {
		if s == StatusError {
			return true
		}
	}
	return false
}
