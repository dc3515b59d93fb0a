package pulse

// Snapshot is a point-in-time copy of the most recently recorded beat and
// its derived rates, for in-process consumers and the export package.
//
// Valid is false until the first beat has been recorded; all other fields
// are zero in that case.
type Snapshot struct {
	Pid         int64   `json:"pid"`
	Valid       bool    `json:"valid"`
	Beat        int64   `json:"beat"`
	Tag         int64   `json:"tag"`
	Timestamp   int64   `json:"timestamp"`
	Count       int64   `json:"count"`
	GlobalRate  float64 `json:"globalRate"`
	WindowRate  float64 `json:"windowRate"`
	InstantRate float64 `json:"instantRate"`
	MinRate     float64 `json:"minRate"`
	MaxRate     float64 `json:"maxRate"`
}
