package controllers

import (
	"errors"
	"sort"

	"jpjportal_go/middleware"
	"jpjportal_go/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const genericFailure = "Something went wrong. Please try again."

// businessErrors are shown to the user verbatim.
var businessErrors = []error{
	services.ErrDuplicateBooking,
	services.ErrSlotUnavailable,
	services.ErrSessionNotBookable,
	services.ErrTooLateToCancel,
	services.ErrAlreadyRegistered,
	services.ErrInvalidTransition,
	services.ErrBookingNotActive,
	services.ErrResultRecorded,
}

// classify maps a service error to an HTTP status and a user-facing message.
func classify(err error) (int, string) {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		return fiber.StatusUnprocessableEntity, "Please correct the highlighted fields"
	}
	if errors.Is(err, services.ErrNotFound) {
		return fiber.StatusNotFound, "The requested record was not found"
	}
	if errors.Is(err, services.ErrInvalidCredentials) {
		return fiber.StatusUnauthorized, err.Error()
	}
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return fiber.StatusConflict, target.Error()
		}
	}
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		return ferr.Code, ferr.Message
	}
	return fiber.StatusInternalServerError, genericFailure
}

// fail reports err to the caller: browsers get flash messages and a redirect
// to back, API clients get a JSON error body.
func fail(c *fiber.Ctx, err error, back string) error {
	status, msg := classify(err)
	if status >= fiber.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"error":  err.Error(),
			"path":   c.Path(),
			"method": c.Method(),
		}).Error("Request failed")
	}

	var verr *services.ValidationError
	errors.As(err, &verr)

	if middleware.WantsHTML(c) {
		if verr != nil {
			fields := make([]string, 0, len(verr.Fields))
			for f := range verr.Fields {
				fields = append(fields, f)
			}
			sort.Strings(fields)
			for _, f := range fields {
				middleware.SetFlash(c, middleware.FlashError, f+" "+verr.Fields[f])
			}
		} else {
			middleware.SetFlash(c, middleware.FlashError, msg)
		}
		return c.Redirect(back)
	}

	body := fiber.Map{"error": msg}
	if verr != nil {
		body["fields"] = verr.Fields
	}
	return c.Status(status).JSON(body)
}

// succeed flashes message and redirects browsers; API clients get payload
// plus the message.
func succeed(c *fiber.Ctx, status int, message, next string, payload fiber.Map) error {
	if middleware.WantsHTML(c) {
		middleware.SetFlash(c, middleware.FlashSuccess, message)
		return c.Redirect(next)
	}
	if payload == nil {
		payload = fiber.Map{}
	}
	payload["message"] = message
	return c.Status(status).JSON(payload)
}

// render draws a page inside the main layout with the current user and any
// pending flash messages.
func render(c *fiber.Ctx, view string, data fiber.Map) error {
	if data == nil {
		data = fiber.Map{}
	}
	data["Flashes"] = middleware.TakeFlashes(c)
	if user, err := middleware.GetCurrentUser(c); err == nil {
		data["CurrentUser"] = user
	}
	return c.Render(view, data, "layouts/main")
}

// formValues collects every posted form field.
func formValues(c *fiber.Ctx) map[string]string {
	out := map[string]string{}
	c.Request().PostArgs().VisitAll(func(k, v []byte) {
		out[string(k)] = string(v)
	})
	return out
}

func currentUserID(c *fiber.Ctx) (uint, error) {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}
