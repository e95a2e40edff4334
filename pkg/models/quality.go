package models

// QualityIssue is one advisory finding about a captured image.
type QualityIssue struct {
	Type        string  `json:"type"`
	Message     string  `json:"message"`
	Severity    string  `json:"severity"` // "error", "warning", "info"
	ActualValue float64 `json:"actual_value,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
}

// QualityReport summarizes sharpness and exposure of an accepted image.
// It is attached for display only and never blocks acceptance.
type QualityReport struct {
	Width             int            `json:"width"`
	Height            int            `json:"height"`
	LaplacianVariance float64        `json:"laplacian_variance"`
	Brightness        float64        `json:"brightness"`
	AvgLuminance      float64        `json:"average_luminance"`
	Issues            []QualityIssue `json:"issues,omitempty"`
}

// HasErrors reports whether any issue carries error severity.
func (r *QualityReport) HasErrors() bool {
	if r == nil {
		return false
	}
	for _, issue := range r.Issues {
		if issue.Severity == "error" {
			return true
		}
	}
	return false
}
