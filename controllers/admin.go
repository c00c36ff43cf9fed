package controllers

import (
	"time"

	"jpjportal_go/middleware"
	"jpjportal_go/services"
	"jpjportal_go/utils"

	"github.com/gofiber/fiber/v2"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AdminController covers the exam calendar, question bank, results and reports.
type AdminController struct {
	sessions  *services.ExamSessionService
	questions *services.QuestionService
	results   *services.ResultService
	exports   *services.ExportService
}

func NewAdminController(sessions *services.ExamSessionService, questions *services.QuestionService,
	results *services.ResultService, exports *services.ExportService) *AdminController {
	return &AdminController{sessions: sessions, questions: questions, results: results, exports: exports}
}

func sendXLSX(c *fiber.Ctx, data []byte, name string) error {
	c.Set(fiber.HeaderContentType, xlsxMIME)
	c.Attachment(name)
	return c.Send(data)
}

// ListSessions is the paginated exam calendar.
func (ac *AdminController) ListSessions(c *fiber.Ctx) error {
	page, err := ac.sessions.List(c.UserContext(), utils.ParseDataTableQuery(c))
	if err != nil {
		return fail(c, err, "/admin/sessions")
	}
	if middleware.WantsHTML(c) {
		return render(c, "admin/sessions", fiber.Map{"Title": "Exam sessions", "Page": page})
	}
	return c.JSON(page)
}

func (ac *AdminController) CreateSession(c *fiber.Ctx) error {
	var req services.SessionInput
	if err := c.BodyParser(&req); err != nil {
		return fail(c, services.NewValidationError("body", "could not be read"), "/admin/sessions")
	}
	session, err := ac.sessions.Create(c.UserContext(), req)
	if err != nil {
		return fail(c, err, "/admin/sessions")
	}
	middleware.LogActivity(c, "CREATE", "exam_sessions", session.ID, fiber.Map{
		"exam_type": session.ExamType,
		"slots":     session.TotalSlots,
	})
	return succeed(c, fiber.StatusCreated, "Exam session created", "/admin/sessions",
		fiber.Map{"session": utils.ToExamSessionDTO(*session)})
}

// Roster lists the bookings of one session.
func (ac *AdminController) Roster(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return fail(c, err, "/admin/sessions")
	}
	session, bookings, users, err := ac.sessions.Roster(c.UserContext(), id)
	if err != nil {
		return fail(c, err, "/admin/sessions")
	}
	byID := make(map[uint]int, len(users))
	for i, u := range users {
		byID[u.ID] = i
	}
	rows := make([]utils.BookingDTO, 0, len(bookings))
	for _, b := range bookings {
		b.ExamSession = *session
		if i, ok := byID[b.UserID]; ok {
			rows = append(rows, utils.ToBookingDTO(b, &users[i]))
		} else {
			rows = append(rows, utils.ToBookingDTO(b, nil))
		}
	}
	if middleware.WantsHTML(c) {
		return render(c, "admin/roster", fiber.Map{
			"Title":    "Session roster",
			"Session":  utils.ToExamSessionDTO(*session),
			"Bookings": rows,
		})
	}
	return c.JSON(fiber.Map{"session": utils.ToExamSessionDTO(*session), "bookings": rows})
}

func (ac *AdminController) CancelSession(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return fail(c, err, "/admin/sessions")
	}
	users, err := ac.sessions.Cancel(c.UserContext(), id)
	if err != nil {
		return fail(c, err, "/admin/sessions")
	}
	middleware.LogActivity(c, "CANCEL", "exam_sessions", id, fiber.Map{"affected": len(users)})
	return succeed(c, fiber.StatusOK, "Exam session cancelled", "/admin/sessions",
		fiber.Map{"affected_users": users})
}

func (ac *AdminController) ExportRoster(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return fail(c, err, "/admin/sessions")
	}
	data, name, err := ac.exports.SessionRoster(c.UserContext(), id)
	if err != nil {
		return fail(c, err, "/admin/sessions")
	}
	return sendXLSX(c, data, name)
}

// RecordResult stores the outcome of a completed booking.
func (ac *AdminController) RecordResult(c *fiber.Ctx) error {
	var req services.ResultInput
	if err := c.BodyParser(&req); err != nil {
		return fail(c, services.NewValidationError("body", "could not be read"), "/admin/sessions")
	}
	result, err := ac.results.Record(c.UserContext(), req)
	if err != nil {
		return fail(c, err, "/admin/sessions")
	}
	middleware.LogActivity(c, "CREATE", "exam_results", result.ID, fiber.Map{
		"booking_id": result.BookingID,
		"passed":     result.Passed,
	})
	return succeed(c, fiber.StatusCreated, "Result recorded", "/admin/sessions", fiber.Map{"result": result})
}

// ListQuestions is the paginated question bank.
func (ac *AdminController) ListQuestions(c *fiber.Ctx) error {
	page, err := ac.questions.List(c.UserContext(), utils.ParseDataTableQuery(c))
	if err != nil {
		return fail(c, err, "/admin/questions")
	}
	if middleware.WantsHTML(c) {
		return render(c, "admin/questions", fiber.Map{"Title": "Question bank", "Page": page})
	}
	return c.JSON(page)
}

func (ac *AdminController) CreateQuestion(c *fiber.Ctx) error {
	var req services.QuestionInput
	if err := c.BodyParser(&req); err != nil {
		return fail(c, services.NewValidationError("body", "could not be read"), "/admin/questions")
	}
	q, err := ac.questions.Create(c.UserContext(), req)
	if err != nil {
		return fail(c, err, "/admin/questions")
	}
	middleware.LogActivity(c, "CREATE", "questions", q.ID, nil)
	return succeed(c, fiber.StatusCreated, "Question added", "/admin/questions", fiber.Map{"question": q})
}

func (ac *AdminController) UpdateQuestion(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return fail(c, err, "/admin/questions")
	}
	var req services.QuestionInput
	if err := c.BodyParser(&req); err != nil {
		return fail(c, services.NewValidationError("body", "could not be read"), "/admin/questions")
	}
	q, err := ac.questions.Update(c.UserContext(), id, req)
	if err != nil {
		return fail(c, err, "/admin/questions")
	}
	middleware.LogActivity(c, "UPDATE", "questions", q.ID, nil)
	return succeed(c, fiber.StatusOK, "Question updated", "/admin/questions", fiber.Map{"question": q})
}

type questionStatusRequest struct {
	Active bool `json:"active" form:"active"`
}

// SetQuestionActive retires or restores a question.
func (ac *AdminController) SetQuestionActive(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return fail(c, err, "/admin/questions")
	}
	var req questionStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, services.NewValidationError("body", "could not be read"), "/admin/questions")
	}
	if err := ac.questions.SetActive(c.UserContext(), id, req.Active); err != nil {
		return fail(c, err, "/admin/questions")
	}
	middleware.LogActivity(c, "UPDATE", "questions", id, fiber.Map{"active": req.Active})
	msg := "Question retired"
	if req.Active {
		msg = "Question restored"
	}
	return succeed(c, fiber.StatusOK, msg, "/admin/questions", nil)
}

// ImportQuestions loads questions from an uploaded spreadsheet.
func (ac *AdminController) ImportQuestions(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fail(c, services.NewValidationError("file", "is required"), "/admin/questions")
	}
	f, err := fh.Open()
	if err != nil {
		return fail(c, err, "/admin/questions")
	}
	defer f.Close()

	res, err := ac.exports.ImportQuestions(c.UserContext(), f)
	if err != nil {
		return fail(c, err, "/admin/questions")
	}
	middleware.LogActivity(c, "IMPORT", "questions", 0, fiber.Map{"created": res.Created, "errors": len(res.Errors)})
	if middleware.WantsHTML(c) {
		if len(res.Errors) > 0 {
			middleware.SetFlash(c, middleware.FlashError, "Some rows were skipped; download the template to check the format")
		}
		middleware.SetFlash(c, middleware.FlashSuccess, "Questions imported")
		return c.Redirect("/admin/questions")
	}
	return c.JSON(res)
}

func (ac *AdminController) QuestionTemplate(c *fiber.Ctx) error {
	data, err := services.QuestionTemplate()
	if err != nil {
		return fail(c, err, "/admin/questions")
	}
	return sendXLSX(c, data, "question_import_template.xlsx")
}

// RenewalReport exports renewals paid between from and to inclusive
// (YYYY-MM-DD), defaulting to the last 30 days.
func (ac *AdminController) RenewalReport(c *fiber.Ctx) error {
	to := time.Now()
	from := to.AddDate(0, 0, -30)
	if v := c.Query("from"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return fail(c, services.NewValidationError("from", "must be a date (YYYY-MM-DD)"), "/admin/sessions")
		}
		from = d
	}
	if v := c.Query("to"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return fail(c, services.NewValidationError("to", "must be a date (YYYY-MM-DD)"), "/admin/sessions")
		}
		to = d.AddDate(0, 0, 1)
	}
	data, name, err := ac.exports.RenewalReport(c.UserContext(), from, to)
	if err != nil {
		return fail(c, err, "/admin/sessions")
	}
	return sendXLSX(c, data, name)
}

func (ac *AdminController) MockTestReport(c *fiber.Ctx) error {
	data, name, err := ac.exports.MockTestReport(c.UserContext())
	if err != nil {
		return fail(c, err, "/admin/sessions")
	}
	return sendXLSX(c, data, name)
}
