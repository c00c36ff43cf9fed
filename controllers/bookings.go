package controllers

import (
	"jpjportal_go/middleware"
	"jpjportal_go/services"
	"jpjportal_go/utils"

	"github.com/gofiber/fiber/v2"
)

type BookingController struct {
	sessions *services.ExamSessionService
	ledger   *services.SlotLedger
	results  *services.ResultService
}

func NewBookingController(sessions *services.ExamSessionService, ledger *services.SlotLedger, results *services.ResultService) *BookingController {
	return &BookingController{sessions: sessions, ledger: ledger, results: results}
}

type bookRequest struct {
	SessionID uint `json:"session_id" form:"session_id"`
}

// Dashboard is the student's landing page.
func (bc *BookingController) Dashboard(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	bookings, err := bc.sessions.UserBookings(c.UserContext(), user.ID)
	if err != nil {
		return fail(c, err, "/login")
	}
	results, err := bc.results.ForUser(c.UserContext(), user.ID)
	if err != nil {
		return fail(c, err, "/login")
	}
	dtos := make([]utils.BookingDTO, 0, len(bookings))
	for _, b := range bookings {
		dtos = append(dtos, utils.ToBookingDTO(b, nil))
	}
	return render(c, "portal/dashboard", fiber.Map{
		"Title":    "Dashboard",
		"Bookings": dtos,
		"Results":  results,
	})
}

// ListSessions shows bookable sessions, optionally for one exam type.
func (bc *BookingController) ListSessions(c *fiber.Ctx) error {
	examType := c.Query("exam_type")
	rows, err := bc.sessions.Open(c.UserContext(), examType)
	if err != nil {
		return fail(c, err, "/portal")
	}
	dtos := make([]utils.ExamSessionDTO, 0, len(rows))
	for _, s := range rows {
		dtos = append(dtos, utils.ToExamSessionDTO(s))
	}
	if middleware.WantsHTML(c) {
		return render(c, "portal/sessions", fiber.Map{
			"Title":    "Book an exam",
			"Sessions": dtos,
			"ExamType": examType,
		})
	}
	return c.JSON(fiber.Map{"sessions": dtos})
}

// Book reserves a slot in the posted session.
func (bc *BookingController) Book(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	var req bookRequest
	if err := c.BodyParser(&req); err != nil || req.SessionID == 0 {
		return fail(c, services.NewValidationError("session_id", "is required"), "/portal/sessions")
	}

	booking, err := bc.ledger.BookSlot(c.UserContext(), req.SessionID, userID)
	if err != nil {
		return fail(c, err, "/portal/sessions")
	}
	middleware.LogActivity(c, "BOOK", "bookings", booking.ID, fiber.Map{"session_id": req.SessionID})
	return succeed(c, fiber.StatusCreated, "Exam slot booked", "/portal/bookings", fiber.Map{
		"booking": utils.ToBookingDTO(*booking, nil),
	})
}

// Cancel releases one of the user's bookings.
func (bc *BookingController) Cancel(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return fail(c, err, "/portal/bookings")
	}
	booking, err := bc.ledger.CancelBooking(c.UserContext(), id, userID)
	if err != nil {
		return fail(c, err, "/portal/bookings")
	}
	middleware.LogActivity(c, "CANCEL", "bookings", booking.ID, nil)
	return succeed(c, fiber.StatusOK, "Booking cancelled", "/portal/bookings", fiber.Map{
		"booking": utils.ToBookingDTO(*booking, nil),
	})
}

// MyBookings lists the user's bookings, newest first.
func (bc *BookingController) MyBookings(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	rows, err := bc.sessions.UserBookings(c.UserContext(), userID)
	if err != nil {
		return fail(c, err, "/portal")
	}
	dtos := make([]utils.BookingDTO, 0, len(rows))
	for _, b := range rows {
		dtos = append(dtos, utils.ToBookingDTO(b, nil))
	}
	if middleware.WantsHTML(c) {
		return render(c, "portal/bookings", fiber.Map{"Title": "My bookings", "Bookings": dtos})
	}
	return c.JSON(fiber.Map{"bookings": dtos})
}

// Results lists the user's recorded exam results.
func (bc *BookingController) Results(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	rows, err := bc.results.ForUser(c.UserContext(), userID)
	if err != nil {
		return fail(c, err, "/portal")
	}
	if middleware.WantsHTML(c) {
		return render(c, "portal/results", fiber.Map{"Title": "My results", "Results": rows})
	}
	return c.JSON(fiber.Map{"results": rows})
}

// Certificate shows the certificate for a passed result.
func (bc *BookingController) Certificate(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return fail(c, err, "/portal/results")
	}
	result, err := bc.results.Certificate(c.UserContext(), id, userID)
	if err != nil {
		return fail(c, err, "/portal/results")
	}
	if middleware.WantsHTML(c) {
		user, _ := middleware.GetCurrentUser(c)
		return render(c, "portal/certificate", fiber.Map{"Title": "Certificate", "Result": result, "Holder": user})
	}
	return c.JSON(fiber.Map{"certificate": result})
}
