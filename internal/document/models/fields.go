package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Fields is the kind-specific business payload. The set of implementations
// is closed: PurchaseRequisition, JobWorkReport and InvalidFields.
type Fields interface {
	Kind() Kind
	// Summary is what the approver sees in the notification body.
	Summary() Summary
	normalize()
}

// Summary holds the headline values of a document.
type Summary struct {
	Requester   string
	Department  string
	RequestDate RawValue
}

// RawValue holds an amount, quantity or date exactly as submitted. Legacy
// producers write these as text or as JSON numbers; both are accepted and
// only the snapshot renderer interprets them.
type RawValue string

func (v *RawValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = RawValue(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("raw value must be a string or number: %w", err)
		}
		*v = RawValue(n.String())
		return nil
	}
}

func (v RawValue) String() string {
	return string(v)
}

// IsBlank reports whether nothing usable was submitted.
func (v RawValue) IsBlank() bool {
	return strings.TrimSpace(string(v)) == ""
}

// RequisitionItem is one line of a purchase requisition.
type RequisitionItem struct {
	ItemCode          string   `json:"item_code,omitempty"`
	Description       string   `json:"description,omitempty"`
	Department        string   `json:"department,omitempty"`
	Quantity          RawValue `json:"quantity,omitempty"`
	UOM               string   `json:"uom,omitempty"`
	Rate              RawValue `json:"rate,omitempty"`
	Value             RawValue `json:"value,omitempty"`
	JobCardNo         RawValue `json:"job_card_no,omitempty"`
	LocationInventory RawValue `json:"location_inventory,omitempty"`
	ItemInventory     string   `json:"item_inventory,omitempty"`
	DeliveryDate      RawValue `json:"delivery_date,omitempty"`
}

// PurchaseRequisition is the payload of a general purchase requisition.
type PurchaseRequisition struct {
	RequestDate         RawValue          `json:"request_date,omitempty"`
	Location            string            `json:"location,omitempty"`
	IndentingDepartment string            `json:"indenting_department,omitempty"`
	EmployeeNo          string            `json:"employee_no,omitempty"`
	EmployeeName        string            `json:"employee_name,omitempty"`
	Department          string            `json:"department,omitempty"`
	ApprovedBy          string            `json:"approved_by,omitempty"`
	ApprovedDate        RawValue          `json:"approved_date,omitempty"`
	Remarks             string            `json:"remarks,omitempty"`
	AmountInWords       string            `json:"amount_in_words,omitempty"`
	Items               []RequisitionItem `json:"items,omitempty"`
}

func (*PurchaseRequisition) Kind() Kind { return KindPurchaseRequisition }

func (p *PurchaseRequisition) Summary() Summary {
	dept := p.Department
	if dept == "" {
		dept = p.IndentingDepartment
	}
	return Summary{Requester: p.EmployeeName, Department: dept, RequestDate: p.RequestDate}
}

func (p *PurchaseRequisition) normalize() {
	for _, s := range []*string{
		&p.Location, &p.IndentingDepartment, &p.EmployeeNo, &p.EmployeeName,
		&p.Department, &p.ApprovedBy, &p.Remarks, &p.AmountInWords,
	} {
		*s = normalizeText(*s)
	}
	for i := range p.Items {
		it := &p.Items[i]
		for _, s := range []*string{&it.ItemCode, &it.Description, &it.Department, &it.UOM, &it.ItemInventory} {
			*s = normalizeText(*s)
		}
	}
}

// JobTask is one costed line of a job-work report.
type JobTask struct {
	Description  string   `json:"description,omitempty"`
	TaskNo       string   `json:"task_no,omitempty"`
	ExpectedCost RawValue `json:"expected_cost,omitempty"`
}

// JobWorkReport is the payload of a job-work card.
type JobWorkReport struct {
	Department      string    `json:"department,omitempty"`
	Plant           string    `json:"plant,omitempty"`
	Category        string    `json:"category,omitempty"`
	PreparedOn      RawValue  `json:"prepared_on,omitempty"`
	AOP             RawValue  `json:"aop,omitempty"`
	ModeOfFinance   string    `json:"mode_of_finance,omitempty"`
	CostCentre      string    `json:"cost_centre,omitempty"`
	Objective       string    `json:"objective,omitempty"`
	ExpectedBenefit string    `json:"expected_benefit,omitempty"`
	CompletionTime  string    `json:"completion_time,omitempty"`
	PreparedBy      string    `json:"prepared_by,omitempty"`
	CheckedBy       string    `json:"checked_by,omitempty"`
	Member          string    `json:"member,omitempty"`
	FinalApprover   string    `json:"final_approver,omitempty"`
	Remarks         string    `json:"remarks,omitempty"`
	AmountInWords   string    `json:"amount_in_words,omitempty"`
	Tasks           []JobTask `json:"tasks,omitempty"`
}

func (*JobWorkReport) Kind() Kind { return KindJobWorkReport }

func (j *JobWorkReport) Summary() Summary {
	return Summary{Requester: j.PreparedBy, Department: j.Department, RequestDate: j.PreparedOn}
}

func (j *JobWorkReport) normalize() {
	for _, s := range []*string{
		&j.Department, &j.Plant, &j.Category, &j.ModeOfFinance, &j.CostCentre,
		&j.Objective, &j.ExpectedBenefit, &j.CompletionTime, &j.PreparedBy,
		&j.CheckedBy, &j.Member, &j.FinalApprover, &j.Remarks, &j.AmountInWords,
	} {
		*s = normalizeText(*s)
	}
	for i := range j.Tasks {
		j.Tasks[i].Description = normalizeText(j.Tasks[i].Description)
		j.Tasks[i].TaskNo = normalizeText(j.Tasks[i].TaskNo)
	}
}

// InvalidFields stands in for a stored payload that could not be decoded.
// The document still loads so that only its own render fails.
type InvalidFields struct {
	DocumentKind Kind
	Raw          []byte
	Err          error
}

func (f *InvalidFields) Kind() Kind       { return f.DocumentKind }
func (f *InvalidFields) Summary() Summary { return Summary{} }
func (f *InvalidFields) normalize()       {}

func (f *InvalidFields) Error() string {
	return fmt.Sprintf("invalid %s fields: %v", f.DocumentKind, f.Err)
}

func (f *InvalidFields) Unwrap() error { return f.Err }

// DecodeFields decodes a stored payload for kind. It never fails: undecodable
// input comes back as *InvalidFields.
func DecodeFields(kind Kind, raw []byte) Fields {
	f, err := ParseFields(kind, raw)
	if err != nil {
		return &InvalidFields{DocumentKind: kind, Raw: append([]byte(nil), raw...), Err: err}
	}
	return f
}

// ParseFields strictly decodes a payload for kind. Used at creation time,
// where bad input is the caller's error.
func ParseFields(kind Kind, raw []byte) (Fields, error) {
	var f Fields
	switch kind {
	case KindPurchaseRequisition:
		f = &PurchaseRequisition{}
	case KindJobWorkReport:
		f = &JobWorkReport{}
	default:
		return nil, fmt.Errorf("unknown document kind %q", kind)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("decode %s fields: %w", kind, err)
	}
	return f, nil
}

// EncodeFields serialises a payload for storage. InvalidFields round-trip
// their original bytes untouched.
func EncodeFields(f Fields) ([]byte, error) {
	if inv, ok := f.(*InvalidFields); ok {
		return inv.Raw, nil
	}
	return json.Marshal(f)
}

// NormalizeFields trims text fields and applies Unicode NFC so visually
// identical submissions compare and render identically.
func NormalizeFields(f Fields) {
	if f != nil {
		f.normalize()
	}
}

func normalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
