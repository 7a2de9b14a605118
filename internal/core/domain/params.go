package domain

// RecoveryOverrides are the resource and placement changes requested when creating a recovery.
type RecoveryOverrides struct {
	Memory         int    `json:"memory,omitempty"`
	Multicore      string `json:"multicore,omitempty"`
	TrustSitelists bool   `json:"xrootd,omitempty"`
	Split          string `json:"split,omitempty"`
}

// AssignmentParameters is the payload sent with an assignment request.
type AssignmentParameters struct {
	SiteWhitelist     []string          `json:"SiteWhitelist"`
	MergedLFNBase     string            `json:"MergedLFNBase"`
	Dashboard         string            `json:"Dashboard"`
	ProcessingVersion int               `json:"ProcessingVersion"`
	Execute           bool              `json:"execute"`
	AcquisitionEra    *PerTask[string]  `json:"AcquisitionEra"`
	ProcessingString  *PerTask[string]  `json:"ProcessingString"`
	TrustSitelists    bool              `json:"TrustSitelists"`
	TrustPUSitelists  bool              `json:"TrustPUSitelists"`
	NonCustodialSites []string          `json:"NonCustodialSites,omitempty"`
	MaxMergeEvents    *int              `json:"MaxMergeEvents,omitempty"`
	LumisPerJob       *int              `json:"LumisPerJob,omitempty"`
	Memory            *PerTask[int]     `json:"Memory,omitempty"`
	Multicore         *PerTask[int]     `json:"Multicore,omitempty"`
	TimePerEvent      *PerTask[float64] `json:"TimePerEvent,omitempty"`
	Team              string            `json:"Team"`
}
