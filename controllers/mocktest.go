package controllers

import (
	"strconv"
	"strings"

	"jpjportal_go/middleware"
	"jpjportal_go/services"
	"jpjportal_go/services/scoring"
	"jpjportal_go/utils"

	"github.com/gofiber/fiber/v2"
)

type MockTestController struct {
	tests *services.MockTestService
}

func NewMockTestController(tests *services.MockTestService) *MockTestController {
	return &MockTestController{tests: tests}
}

// mockTestSubmission is the JSON form of a submission; answers are keyed by
// question id.
type mockTestSubmission struct {
	Token   string            `json:"token"`
	Answers map[string]string `json:"answers"`
}

// Start draws a new test for the user.
func (mc *MockTestController) Start(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	questions, st, err := mc.tests.Begin(c.UserContext(), userID)
	if err != nil {
		return fail(c, err, "/portal")
	}
	if middleware.WantsHTML(c) {
		return render(c, "portal/mocktest", fiber.Map{
			"Title":     "Mock theory test",
			"Questions": questions,
			"Token":     st.Token,
			"ExpiresAt": st.ExpiresAt,
		})
	}
	return c.JSON(fiber.Map{
		"token":      st.Token,
		"expires_at": st.ExpiresAt,
		"questions":  questions,
	})
}

// Submit scores the answers posted for a served test.
func (mc *MockTestController) Submit(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}

	var token string
	form := map[string]string{}
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		var req mockTestSubmission
		if err := c.BodyParser(&req); err != nil {
			return fail(c, services.NewValidationError("body", "could not be read"), "/portal/mock-test")
		}
		token = req.Token
		for id, answer := range req.Answers {
			form[scoring.AnswerFieldPrefix+id] = answer
		}
	} else {
		form = formValues(c)
		token = form["token"]
	}
	if token == "" {
		return fail(c, services.NewValidationError("token", "is required"), "/portal/mock-test")
	}

	attempt, err := mc.tests.SubmitForm(c.UserContext(), userID, token, form)
	if err != nil {
		return fail(c, err, "/portal/mock-test")
	}
	middleware.LogActivity(c, "SUBMIT", "mock_tests", attempt.ID, fiber.Map{
		"correct": attempt.CorrectAnswers,
		"total":   attempt.TotalQuestions,
	})
	if middleware.WantsHTML(c) {
		return c.Redirect("/portal/mock-test/" + strconv.FormatUint(uint64(attempt.ID), 10))
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"attempt": attempt})
}

// Show displays one of the user's attempts with per-question feedback.
func (mc *MockTestController) Show(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return fail(c, err, "/portal/mock-test/history")
	}
	attempt, err := mc.tests.Attempt(c.UserContext(), id, userID)
	if err != nil {
		return fail(c, err, "/portal/mock-test/history")
	}
	if middleware.WantsHTML(c) {
		return render(c, "portal/mocktest_result", fiber.Map{"Title": "Mock test result", "Attempt": attempt})
	}
	return c.JSON(fiber.Map{"attempt": attempt})
}

// History lists the user's attempts.
func (mc *MockTestController) History(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	rows, err := mc.tests.History(c.UserContext(), userID)
	if err != nil {
		return fail(c, err, "/portal")
	}
	if middleware.WantsHTML(c) {
		return render(c, "portal/mocktest_history", fiber.Map{"Title": "Mock test history", "Attempts": rows})
	}
	return c.JSON(fiber.Map{"attempts": rows})
}
