// Package types
package types

// GroupStats is the rollup returned by the stats query for one group.
type GroupStats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Executed int `json:"executed"`
	Rejected int `json:"rejected"`
	Expired  int `json:"expired"`
	Failed   int `json:"failed"`

	ByOperation map[string]int `json:"byOperation"`
	ByUrgency   map[string]int `json:"byUrgency"`

	// AvgApprovalHours averages executedAt-createdAt across executed
	// proposals. Zero when nothing has executed yet.
	AvgApprovalHours float64 `json:"avgApprovalHours"`
}
