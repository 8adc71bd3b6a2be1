package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"approvals/internal/document/models"
)

// Placeholders for empty fields.
const (
	NotAvailable = "N/A"

	defaultJWRDepartment  = "CLS-K2"
	defaultJWRPlant       = "PGCL"
	defaultJWRCategory    = "Capital WIP"
	defaultIndentingDept  = "UTILITY (REF.) DEPT."
	defaultUOM            = "NOS"
	defaultPRRemarks      = "REPLACEMENT"
	defaultItemQuantity   = 1.0
	objectiveDisplayLimit = 50
	remarksDisplayLimit   = 30
)

// Column is one column of the item table. Width is in millimetres and Align
// is an fpdf alignment string ("L", "C" or "R").
type Column struct {
	Title string
	Width float64
	Align string
}

// Field is a labelled value.
type Field struct {
	Label string
	Value string
}

// SignatureRow places two labelled values side by side.
type SignatureRow struct {
	Left  Field
	Right Field
}

// Layout is the page content of a snapshot, independent of the PDF engine.
type Layout struct {
	Orientation string
	Letterhead  []string
	Title       string
	Subtitle    string
	Section     string
	LabelWidth  float64
	// FieldSeparator is printed between a label and its value.
	FieldSeparator string
	Fields         []Field
	Columns        []Column
	Rows           [][]string
	TotalLabel     string
	Total          string
	AmountInWords  string
	Blocks         []Field
	Signatures     []SignatureRow
	Generated      string
}

// BuildLayout maps a document onto its page layout. Missing values become
// placeholders; only unreadable fields or an unknown kind fail.
func BuildLayout(ctx context.Context, logger *slog.Logger, doc *models.Document, generatedAt time.Time) (*Layout, error) {
	c := coercer{ctx: ctx, logger: logger, documentID: doc.ID}
	var l *Layout
	switch f := doc.Fields.(type) {
	case *models.PurchaseRequisition:
		l = purchaseRequisitionLayout(c, doc, f)
	case *models.JobWorkReport:
		l = jobWorkReportLayout(c, doc, f)
	case *models.InvalidFields:
		return nil, f
	case nil:
		return nil, fmt.Errorf("document %s has no fields", doc.ID)
	default:
		return nil, fmt.Errorf("no layout for document kind %q", doc.Kind)
	}
	l.Generated = generatedAt.UTC().Format("02-01-2006 15:04:05 MST")
	return l, nil
}

func purchaseRequisitionLayout(c coercer, doc *models.Document, pr *models.PurchaseRequisition) *Layout {
	indenting := orDefault(pr.IndentingDepartment, defaultIndentingDept)
	approval := "Pending"
	if doc.Status.LegacyCode() == models.StatusApproved.LegacyCode() {
		approval = "Released"
	}

	l := &Layout{
		Orientation: "L",
		Letterhead: []string{
			"Transpek Industry Limited",
			"4TH FLOOR, LILLERIA 1038,",
			"GOTRI SEVASI ROAD,",
			"VADODARA-390021, GUJARAT.",
		},
		Title:          "PURCHASE REQUISITION - GENERAL",
		LabelWidth:     40,
		FieldSeparator: ": ",
		Fields: []Field{
			{"Reqn. No.", doc.DisplayNumber()},
			{"Reqn. Date", c.date("request_date", pr.RequestDate, "02/01/2006", doc.CreatedAt.Format("02/01/2006"))},
			{"Request Form Location", orDefault(pr.Location, NotAvailable)},
			{"Approval Status", approval},
			{"Approved Date & Time", c.date("approved_date", pr.ApprovedDate, "02-01-2006 15:04:05", NotAvailable)},
			{"Indenting Department", indenting},
		},
		Columns: []Column{
			{"Sr.", 12, "C"},
			{"Item Code", 20, "C"},
			{"Description", 45, "L"},
			{"Dept. Name", 25, "C"},
			{"Required Qty", 17, "C"},
			{"UOM", 12, "C"},
			{"RATE", 20, "R"},
			{"VALUE", 20, "R"},
			{"Job Card No", 17, "C"},
			{"Location Inventory", 24, "C"},
			{"Item Inventory", 20, "C"},
			{"Delivery Date", 20, "C"},
		},
	}

	var total float64
	for i, it := range pr.Items {
		field := func(name string) string { return fmt.Sprintf("items[%d].%s", i, name) }
		qty := c.float(field("quantity"), it.Quantity, defaultItemQuantity)
		rate := c.float(field("rate"), it.Rate, 0)
		value := c.float(field("value"), it.Value, qty*rate)
		total += value

		l.Rows = append(l.Rows, []string{
			strconv.Itoa(i + 1),
			it.ItemCode,
			it.Description,
			orDefault(it.Department, indenting),
			fmt.Sprintf("%.3f", qty),
			orDefault(it.UOM, defaultUOM),
			fmt.Sprintf("%.2f", rate),
			fmt.Sprintf("%.2f", value),
			fmt.Sprintf("%.2f", c.float(field("job_card_no"), it.JobCardNo, 0)),
			strconv.Itoa(c.int(field("location_inventory"), it.LocationInventory, 0)),
			it.ItemInventory,
			c.date(field("delivery_date"), it.DeliveryDate, "02/01/2006", ""),
		})
	}

	l.Total = fmt.Sprintf("%.2f", total)
	l.AmountInWords = "Amount in Words: " + orDefault(pr.AmountInWords, AmountInWords(total))
	l.Blocks = []Field{{"Remarks:", orDefault(pr.Remarks, defaultPRRemarks)}}
	l.Signatures = []SignatureRow{
		{Left: Field{"(Prepared By)", orDefault(pr.EmployeeName, NotAvailable)}, Right: Field{"(Approved By)", orDefault(pr.ApprovedBy, NotAvailable)}},
	}
	return l
}

func jobWorkReportLayout(c coercer, doc *models.Document, jw *models.JobWorkReport) *Layout {
	aop := "NON AOP"
	if c.int("aop", jw.AOP, 0) == 1 {
		aop = "AOP"
	}
	finalStatus := "PENDING"
	if doc.Status == models.StatusApproved {
		finalStatus = "CONFIRMED"
	}

	l := &Layout{
		Orientation: "P",
		Title:       "Transpek Industry Limited  Ekalbara",
		Subtitle:    "(TIL-EKB-MMD-FF-11)",
		Section:     "Job Description",
		LabelWidth:  40,
		Fields: []Field{
			{"Department:", orDefault(jw.Department, defaultJWRDepartment)},
			{"Plant:", orDefault(jw.Plant, defaultJWRPlant)},
			{"Job-card No.:", doc.DisplayNumber()},
			{"Category:", orDefault(jw.Category, defaultJWRCategory)},
			{"Date of Preparation:", c.date("prepared_on", jw.PreparedOn, "02-01-06", doc.CreatedAt.Format("02-01-06"))},
			{"AOP/NON AOP:", aop},
		},
		Columns: []Column{
			{"Sr No", 15, "C"},
			{"Description", 80, "L"},
			{"Job Task No", 25, "C"},
			{"Expected Cost", 60, "R"},
		},
		TotalLabel: "Amount in Words:",
	}

	var total float64
	for i, task := range jw.Tasks {
		cost := c.float(fmt.Sprintf("tasks[%d].expected_cost", i), task.ExpectedCost, 0)
		total += cost
		l.Rows = append(l.Rows, []string{
			strconv.Itoa(i + 1),
			task.Description,
			orDefault(task.TaskNo, strconv.Itoa(i+1)),
			GroupedAmount(cost),
		})
	}

	l.Total = GroupedAmount(total)
	l.AmountInWords = orDefault(jw.AmountInWords, AmountInWords(total))
	l.Blocks = []Field{
		{"Mode of Finance", orDefault(jw.ModeOfFinance, NotAvailable)},
		{"Cost Centre", orDefault(jw.CostCentre, NotAvailable)},
		{"OBJECTIVE OF JOB CARD:", truncate(orDefault(jw.Objective, NotAvailable), objectiveDisplayLimit)},
	}
	l.Signatures = []SignatureRow{
		{Left: Field{"PREPARED BY :", orDefault(jw.PreparedBy, NotAvailable)}, Right: Field{"EXPECTED BENEFIT :", orDefault(jw.ExpectedBenefit, NotAvailable)}},
		{Left: Field{"CHECKED BY :", orDefault(jw.CheckedBy, NotAvailable)}, Right: Field{"TIME REQUIRED FOR COMPLETION AFTER DATE OF PASSING :", orDefault(jw.CompletionTime, NotAvailable)}},
		{Left: Field{"APPROVED BY :", ""}},
		{Left: Field{"MEMBER", jw.Member}, Right: Field{"FINAL APPROVED BY", finalStatus}},
		{Left: Field{"REMARKS", truncate(jw.Remarks, remarksDisplayLimit)}, Right: Field{"", jw.FinalApprover}},
	}
	return l
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// truncate cuts s to limit runes and marks the cut with "...".
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
