package recalc

// RequestRow is the row number of issues that concern the whole request.
const RequestRow = -1

// IssueKind classifies a row-level degradation. None of them abort a pass.
type IssueKind string

const (
	IssueMalformedNumeric     IssueKind = "malformed_numeric"
	IssueMissingField         IssueKind = "missing_field"
	IssueClamped              IssueKind = "clamped"
	IssueRounded              IssueKind = "rounded"
	IssueConverted            IssueKind = "converted"
	IssueUnknownCategory      IssueKind = "unknown_category"
	IssueIndeterminate        IssueKind = "classification_indeterminate"
	IssueMissingABV           IssueKind = "missing_abv"
	IssueAllocationDegenerate IssueKind = "allocation_degenerate"
)

// Issue describes one degradation applied while recalculating.
type Issue struct {
	Row     int       `json:"row"`
	Field   string    `json:"field,omitempty"`
	Kind    IssueKind `json:"kind"`
	Raw     string    `json:"raw,omitempty"`
	Message string    `json:"message"`
}

// String renders the issue the way it appears in a row's warnings list.
func (i Issue) String() string {
	if i.Field == "" {
		return i.Message
	}
	return i.Field + ": " + i.Message
}
