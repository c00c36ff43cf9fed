package controllers

import (
	"io"

	"jpjportal_go/middleware"
	"jpjportal_go/services"
	"jpjportal_go/utils"

	"github.com/gofiber/fiber/v2"
)

type MaterialController struct {
	materials *services.MaterialService
}

func NewMaterialController(materials *services.MaterialService) *MaterialController {
	return &MaterialController{materials: materials}
}

func (mc *MaterialController) List(c *fiber.Ctx) error {
	category := c.Query("category")
	rows, err := mc.materials.List(c.UserContext(), category)
	if err != nil {
		return fail(c, err, "/portal")
	}
	if middleware.WantsHTML(c) {
		return render(c, "portal/materials", fiber.Map{
			"Title":     "Learning materials",
			"Materials": rows,
			"Category":  category,
		})
	}
	return c.JSON(fiber.Map{"materials": rows})
}

// Upload stores a study material posted as multipart form data.
func (mc *MaterialController) Upload(c *fiber.Ctx) error {
	var req services.MaterialInput
	if err := c.BodyParser(&req); err != nil {
		return fail(c, services.NewValidationError("body", "could not be read"), "/portal/materials")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return fail(c, services.NewValidationError("file", "is required"), "/portal/materials")
	}
	f, err := fh.Open()
	if err != nil {
		return fail(c, err, "/portal/materials")
	}
	defer f.Close()
	body, err := io.ReadAll(f)
	if err != nil {
		return fail(c, err, "/portal/materials")
	}

	m, err := mc.materials.Upload(c.UserContext(), req, fh.Filename, body)
	if err != nil {
		return fail(c, err, "/portal/materials")
	}
	middleware.LogActivity(c, "CREATE", "materials", m.ID, fiber.Map{"title": m.Title, "category": m.Category})
	return succeed(c, fiber.StatusCreated, "Material uploaded", "/portal/materials", fiber.Map{"material": m})
}

func (mc *MaterialController) Delete(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return fail(c, err, "/portal/materials")
	}
	if err := mc.materials.Delete(c.UserContext(), id); err != nil {
		return fail(c, err, "/portal/materials")
	}
	middleware.LogActivity(c, "DELETE", "materials", id, nil)
	return succeed(c, fiber.StatusOK, "Material deleted", "/portal/materials", nil)
}
