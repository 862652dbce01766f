package ai

// EvidenceRequest describes the job the evidence should prove.
type EvidenceRequest struct {
	JobID       string
	EvidenceRef string
	Services    []string
	Address     string
	Notes       string
}

// Verdict is the reviewer's decision. Confidence is in [0, 1].
type Verdict struct {
	Approved   bool    `json:"approved"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}
