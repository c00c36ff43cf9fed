package controllers

import (
	"jpjportal_go/middleware"
	"jpjportal_go/models"
	"jpjportal_go/services"
	"jpjportal_go/services/notifications"
	"jpjportal_go/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type NotificationController struct {
	db    *gorm.DB
	inbox *notifications.Service
}

func NewNotificationController(db *gorm.DB, inbox *notifications.Service) *NotificationController {
	return &NotificationController{db: db, inbox: inbox}
}

// GetNotifications returns notifications for the current user
func (nc *NotificationController) GetNotifications(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	rows, unread, err := nc.inbox.List(c.UserContext(), userID, limit, (page-1)*limit)
	if err != nil {
		return fail(c, err, "/portal")
	}
	dtos := make([]utils.NotificationDTO, 0, len(rows))
	for _, n := range rows {
		dtos = append(dtos, utils.ToNotificationDTO(n))
	}
	if middleware.WantsHTML(c) {
		return render(c, "portal/notifications", fiber.Map{
			"Title":         "Notifications",
			"Notifications": dtos,
			"Unread":        unread,
		})
	}
	return c.JSON(fiber.Map{
		"notifications": dtos,
		"unread_count":  unread,
		"pagination":    fiber.Map{"page": page, "limit": limit},
	})
}

// MarkAsRead marks a notification as read
func (nc *NotificationController) MarkAsRead(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return fail(c, err, "/portal/notifications")
	}
	if err := nc.inbox.MarkRead(c.UserContext(), userID, id); err != nil {
		return fail(c, err, "/portal/notifications")
	}
	return succeed(c, fiber.StatusOK, "Notification marked as read", "/portal/notifications", nil)
}

// MarkAllAsRead marks every notification of the user as read
func (nc *NotificationController) MarkAllAsRead(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	if err := nc.inbox.MarkRead(c.UserContext(), userID, 0); err != nil {
		return fail(c, err, "/portal/notifications")
	}
	return succeed(c, fiber.StatusOK, "All notifications marked as read", "/portal/notifications", nil)
}

type announcement struct {
	UserIDs []uint `json:"user_ids" form:"user_ids"`
	Role    string `json:"role" form:"role" validate:"omitempty,oneof=admin student"`
	Title   string `json:"title" form:"title" validate:"required,max=255"`
	Message string `json:"message" form:"message" validate:"required"`
	Type    string `json:"type" form:"type" validate:"required,oneof=info warning error success"`
}

// CreateNotification sends an announcement to listed users or to every
// active user with a role.
func (nc *NotificationController) CreateNotification(c *fiber.Ctx) error {
	var req announcement
	if err := c.BodyParser(&req); err != nil {
		return fail(c, services.NewValidationError("body", "could not be read"), "/admin/sessions")
	}
	req.Title = utils.SanitizeString(req.Title)
	req.Message = utils.SanitizeString(req.Message)
	if err := services.Validate(req); err != nil {
		return fail(c, err, "/admin/sessions")
	}

	userIDs := req.UserIDs
	if len(userIDs) == 0 {
		if req.Role == "" {
			return fail(c, services.NewValidationError("user_ids", "or role is required"), "/admin/sessions")
		}
		if err := nc.db.WithContext(c.UserContext()).Model(&models.User{}).
			Where("role = ? AND status = ?", req.Role, "active").
			Pluck("id", &userIDs).Error; err != nil {
			return fail(c, err, "/admin/sessions")
		}
	}
	if len(userIDs) == 0 {
		return fail(c, services.NewValidationError("role", "has no active users"), "/admin/sessions")
	}

	if err := nc.inbox.EnqueueOrCreate(c.UserContext(), userIDs, req.Title, req.Message, req.Type); err != nil {
		return fail(c, err, "/admin/sessions")
	}
	middleware.LogActivity(c, "CREATE", "notifications", 0, fiber.Map{
		"target_users": len(userIDs),
		"type":         req.Type,
		"title":        req.Title,
	})
	return succeed(c, fiber.StatusCreated, "Notifications sent", "/admin/sessions",
		fiber.Map{"target_users": len(userIDs)})
}
