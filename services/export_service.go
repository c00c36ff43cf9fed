package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"jpjportal_go/models"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ExportService builds the admin spreadsheets and reads question imports.
type ExportService struct {
	db        *gorm.DB
	sessions  *ExamSessionService
	questions *QuestionService
}

func NewExportService(db *gorm.DB, sessions *ExamSessionService, questions *QuestionService) *ExportService {
	return &ExportService{db: db, sessions: sessions, questions: questions}
}

// sheetWriter appends rows to a single sheet.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
}

func newSheet(name string, header ...interface{}) (*sheetWriter, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", name); err != nil {
		f.Close()
		return nil, err
	}
	w := &sheetWriter{f: f, sheet: name}
	if err := w.add(header...); err != nil {
		f.Close()
		return nil, err
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		_ = f.SetCellStyle(name, "A1", last, style)
	}
	return w, nil
}

func (w *sheetWriter) add(values ...interface{}) error {
	w.row++
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	return w.f.SetSheetRow(w.sheet, cell, &values)
}

func (w *sheetWriter) bytes() ([]byte, error) {
	defer w.f.Close()
	buf, err := w.f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SessionRoster lists every booking of a session.
func (s *ExportService) SessionRoster(ctx context.Context, sessionID uint) ([]byte, string, error) {
	session, bookings, users, err := s.sessions.Roster(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	byID := make(map[uint]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	w, err := newSheet("Roster", "Booking ID", "Username", "Full Name", "IC Number", "Status", "Booked At")
	if err != nil {
		return nil, "", err
	}
	for _, b := range bookings {
		u := byID[b.UserID]
		fullName, ic := "", ""
		if u.Student != nil {
			fullName, ic = u.Student.FullName, u.Student.ICNumber
		}
		if err := w.add(b.ID, u.Username, fullName, ic, b.Status, b.CreatedAt.Format("2006-01-02 15:04")); err != nil {
			w.f.Close()
			return nil, "", err
		}
	}
	out, err := w.bytes()
	if err != nil {
		return nil, "", err
	}
	name := fmt.Sprintf("roster_%s_%s_%d.xlsx", session.ExamType, session.ExamDate.Format("20060102"), session.ID)
	return out, name, nil
}

// RenewalReport lists paid renewals of both kinds paid within [from, to).
func (s *ExportService) RenewalReport(ctx context.Context, from, to time.Time) ([]byte, string, error) {
	db := s.db.WithContext(ctx)
	var roadTax []models.RoadTaxRenewal
	if err := db.Where("payment_status = ? AND paid_at >= ? AND paid_at < ?", models.PaymentPaid, from, to).
		Order("paid_at").Find(&roadTax).Error; err != nil {
		return nil, "", persistErr("load road tax report", err)
	}
	var licenses []models.LicenseRenewal
	if err := db.Where("payment_status = ? AND paid_at >= ? AND paid_at < ?", models.PaymentPaid, from, to).
		Order("paid_at").Find(&licenses).Error; err != nil {
		return nil, "", persistErr("load license report", err)
	}

	w, err := newSheet("Renewals", "Kind", "Natural Key", "Period", "Start", "Expiry", "Amount", "Transaction", "Paid At")
	if err != nil {
		return nil, "", err
	}
	write := func(kind, key string, r models.RenewalRecord) error {
		paid := ""
		if r.PaidAt != nil {
			paid = r.PaidAt.Format("2006-01-02 15:04")
		}
		amount, _ := r.Amount.Float64()
		return w.add(kind, key, r.RenewalPeriod, r.StartDate.Format("2006-01-02"), r.ExpiryDate.Format("2006-01-02"),
			amount, r.TransactionID, paid)
	}
	for _, r := range roadTax {
		if err := write(RenewalRoadTax, r.VehicleNumber, r.RenewalRecord); err != nil {
			w.f.Close()
			return nil, "", err
		}
	}
	for _, r := range licenses {
		if err := write(RenewalLicense, r.LicenseNumber, r.RenewalRecord); err != nil {
			w.f.Close()
			return nil, "", err
		}
	}
	out, err := w.bytes()
	if err != nil {
		return nil, "", err
	}
	return out, fmt.Sprintf("renewals_%s_%s.xlsx", from.Format("20060102"), to.Format("20060102")), nil
}

// MockTestReport lists every attempt with its owner.
func (s *ExportService) MockTestReport(ctx context.Context) ([]byte, string, error) {
	type row struct {
		models.MockTestAttempt
		Username string
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&models.MockTestAttempt{}).
		Select("mock_test_attempts.*, users.username").
		Joins("LEFT JOIN users ON users.id = mock_test_attempts.user_id").
		Order("mock_test_attempts.id").Scan(&rows).Error; err != nil {
		return nil, "", persistErr("load mock test report", err)
	}

	w, err := newSheet("Attempts", "Attempt ID", "Username", "Correct", "Total", "Score %", "Time Taken (s)", "Taken At")
	if err != nil {
		return nil, "", err
	}
	for _, r := range rows {
		pct, _ := r.ScorePercentage.Float64()
		if err := w.add(r.ID, r.Username, r.CorrectAnswers, r.TotalQuestions, pct, r.TimeTaken, r.CreatedAt.Format("2006-01-02 15:04")); err != nil {
			w.f.Close()
			return nil, "", err
		}
	}
	out, err := w.bytes()
	if err != nil {
		return nil, "", err
	}
	return out, "mock_test_attempts.xlsx", nil
}

// ImportResult reports a question import. Errors are keyed by spreadsheet row.
type ImportResult struct {
	Created int            `json:"created"`
	Errors  map[int]string `json:"errors,omitempty"`
}

// questionColumns are the accepted import headers.
var questionColumns = []string{"Text", "Type", "Option A", "Option B", "Option C", "Option D", "Answer", "Explanation", "Category"}

// ImportQuestions reads questions from the first sheet of an xlsx file. Each
// row is validated like a form submission; bad rows are reported and skipped.
func (s *ExportService) ImportQuestions(ctx context.Context, r io.Reader) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, NewValidationError("file", "must be an .xlsx spreadsheet")
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, NewValidationError("file", "is empty")
	}

	idx := map[string]int{}
	for i, h := range rows[0] {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range questionColumns[:2] {
		if _, ok := idx[strings.ToLower(col)]; !ok {
			return nil, NewValidationError("file", "missing column "+col)
		}
	}
	cell := func(rec []string, col string) string {
		i, ok := idx[strings.ToLower(col)]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	res := &ImportResult{Errors: map[int]string{}}
	for n, rec := range rows[1:] {
		line := n + 2
		if strings.Join(rec, "") == "" {
			continue
		}
		in := QuestionInput{
			Text:          cell(rec, "Text"),
			QuestionType:  cell(rec, "Type"),
			OptionA:       cell(rec, "Option A"),
			OptionB:       cell(rec, "Option B"),
			OptionC:       cell(rec, "Option C"),
			OptionD:       cell(rec, "Option D"),
			CorrectAnswer: cell(rec, "Answer"),
			Explanation:   cell(rec, "Explanation"),
			Category:      cell(rec, "Category"),
		}
		if _, err := s.questions.Create(ctx, in); err != nil {
			res.Errors[line] = err.Error()
			continue
		}
		res.Created++
	}
	return res, nil
}

// QuestionTemplate is an empty import sheet with the expected headers.
func QuestionTemplate() ([]byte, error) {
	header := make([]interface{}, len(questionColumns))
	for i, c := range questionColumns {
		header[i] = c
	}
	w, err := newSheet("Questions", header...)
	if err != nil {
		return nil, err
	}
	if err := w.add("What does a red octagonal sign mean?", models.QuestionMultipleChoice,
		"Stop", "Give way", "No entry", "Slow down", "A", "Red octagon is always STOP.", "road_signs"); err != nil {
		w.f.Close()
		return nil, err
	}
	return w.bytes()
}
