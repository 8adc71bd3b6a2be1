package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "approvals/pkg/domain-errors"
)

func TestRawValue_AcceptsStringsNumbersAndNull(t *testing.T) {
	var payload struct {
		A RawValue `json:"a"`
		B RawValue `json:"b"`
		C RawValue `json:"c"`
	}
	err := json.Unmarshal([]byte(`{"a":"87500.00","b":1849955,"c":null}`), &payload)
	require.NoError(t, err)

	assert.Equal(t, RawValue("87500.00"), payload.A)
	assert.Equal(t, RawValue("1849955"), payload.B)
	assert.True(t, payload.C.IsBlank())
}

func TestRawValue_RejectsObjects(t *testing.T) {
	var v RawValue
	assert.Error(t, json.Unmarshal([]byte(`{"x":1}`), &v))
}

func TestParseFields(t *testing.T) {
	f, err := ParseFields(KindJobWorkReport, []byte(`{"department":"CLS-K2","tasks":[{"description":"CIVIL","task_no":"2","expected_cost":88555}]}`))
	require.NoError(t, err)

	jwr, ok := f.(*JobWorkReport)
	require.True(t, ok)
	assert.Equal(t, "CLS-K2", jwr.Department)
	require.Len(t, jwr.Tasks, 1)
	assert.Equal(t, RawValue("88555"), jwr.Tasks[0].ExpectedCost)

	empty, err := ParseFields(KindPurchaseRequisition, nil)
	require.NoError(t, err)
	assert.Equal(t, &PurchaseRequisition{}, empty)

	_, err = ParseFields(KindPurchaseRequisition, []byte(`{"items":"not a list"}`))
	assert.Error(t, err)
}

func TestDecodeFields_CorruptPayloadBecomesInvalidFields(t *testing.T) {
	raw := []byte(`{"items": [`)
	f := DecodeFields(KindPurchaseRequisition, raw)

	inv, ok := f.(*InvalidFields)
	require.True(t, ok)
	assert.Equal(t, KindPurchaseRequisition, inv.Kind())
	assert.Error(t, inv.Err)

	encoded, err := EncodeFields(f)
	require.NoError(t, err)
	assert.Equal(t, raw, encoded, "corrupt payloads are stored back untouched")
}

func TestSummary(t *testing.T) {
	pr := &PurchaseRequisition{EmployeeName: "K. Barot", IndentingDepartment: "UTILITY (REF.) DEPT.", RequestDate: "08/04/2025"}
	assert.Equal(t, Summary{Requester: "K. Barot", Department: "UTILITY (REF.) DEPT.", RequestDate: "08/04/2025"}, pr.Summary())

	pr.Department = "Maintenance"
	assert.Equal(t, "Maintenance", pr.Summary().Department)

	jwr := &JobWorkReport{PreparedBy: "M. Joshi", Department: "CLS-K2", PreparedOn: "2025-04-08"}
	assert.Equal(t, "M. Joshi", jwr.Summary().Requester)
}

func TestNormalizeFields_NFCAndTrim(t *testing.T) {
	// "é" as e + combining acute accent.
	decomposed := "Cafe\u0301 "
	pr := &PurchaseRequisition{Remarks: decomposed, Items: []RequisitionItem{{Description: "  seal kit "}}}
	NormalizeFields(pr)

	assert.Equal(t, "Caf\u00e9", pr.Remarks)
	assert.Equal(t, "seal kit", pr.Items[0].Description)
}

func TestCreateRequest_Validate(t *testing.T) {
	req := &CreateRequest{
		Kind:            " purchase_requisition ",
		Number:          " MG/IN-0042 ",
		ApproverContact: " approver@plant.example ",
		Fields:          json.RawMessage(`{"employee_name":"K. Barot"}`),
	}
	require.NoError(t, req.Validate())
	assert.Equal(t, KindPurchaseRequisition, req.ParsedKind())
	assert.Equal(t, "MG/IN-0042", req.Number)
	assert.Equal(t, "approver@plant.example", req.ApproverContact)
	assert.Equal(t, "K. Barot", req.ParsedFields().(*PurchaseRequisition).EmployeeName)

	bad := &CreateRequest{Kind: "travel_claim"}
	assert.True(t, dErrors.HasCode(bad.Validate(), dErrors.CodeValidation))

	badFields := &CreateRequest{Kind: "job_work_report", Fields: json.RawMessage(`{"tasks":{}}`)}
	assert.True(t, dErrors.HasCode(badFields.Validate(), dErrors.CodeValidation))

	invalidContact := &CreateRequest{Kind: "job_work_report", ApproverContact: "not-an-email"}
	assert.NoError(t, invalidContact.Validate(), "contacts are checked at dispatch time")
}
