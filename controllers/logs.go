package controllers

import (
	"encoding/json"
	"io"
	"time"

	"jpjportal_go/middleware"
	"jpjportal_go/models"
	"jpjportal_go/services"
	"jpjportal_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type LogController struct {
	db       *gorm.DB
	archives *services.LogArchiveService
}

func NewLogController(db *gorm.DB, archives *services.LogArchiveService) *LogController {
	return &LogController{db: db, archives: archives}
}

// LogResponse represents a log entry response
type LogResponse struct {
	ID         uint                   `json:"id"`
	UserID     uint                   `json:"user_id"`
	Action     string                 `json:"action"`
	Resource   string                 `json:"resource"`
	ResourceID uint                   `json:"resource_id"`
	Details    map[string]interface{} `json:"details,omitempty"`
	IPAddress  string                 `json:"ip_address"`
	CreatedAt  time.Time              `json:"created_at"`
}

var logTable = utils.DataTable{
	Sortable: map[string]string{
		"id":         "id",
		"created_at": "created_at",
		"action":     "action",
		"resource":   "resource",
	},
	Filterable: map[string]string{
		"user_id":  "user_id",
		"action":   "action",
		"resource": "resource",
	},
	Searchable:  []string{"action", "resource", "ip_address"},
	DefaultSort: "created_at",
	DefaultDesc: true,
}

// GetLogs retrieves paginated activity logs with filters
func (lc *LogController) GetLogs(c *fiber.Ctx) error {
	var rows []models.ActivityLog
	page, err := logTable.Fetch(lc.db.WithContext(c.UserContext()).Model(&models.ActivityLog{}), utils.ParseDataTableQuery(c), &rows)
	if err != nil {
		return fail(c, services.NewValidationError("sort", err.Error()), "/admin")
	}

	logs := make([]LogResponse, len(rows))
	for i, log := range rows {
		logs[i] = LogResponse{
			ID:         log.ID,
			UserID:     log.UserID,
			Action:     log.Action,
			Resource:   log.Resource,
			ResourceID: log.ResourceID,
			IPAddress:  log.IPAddress,
			CreatedAt:  log.CreatedAt,
		}
		if !log.Details.IsNull() {
			var details map[string]interface{}
			if err := json.Unmarshal(log.Details, &details); err == nil {
				logs[i].Details = details
			}
		}
	}
	page.Data = logs
	return c.JSON(page)
}

// FlushCachedLogs moves queued activity entries from Redis into the database
func (lc *LogController) FlushCachedLogs(c *fiber.Ctx) error {
	n, err := lc.archives.FlushCachedLogsToDatabase(c.UserContext(), 0)
	if err != nil {
		logrus.WithError(err).Error("Failed to flush cached logs")
		return fail(c, err, "/admin/logs")
	}
	return c.JSON(fiber.Map{"message": "Cached logs flushed", "flushed": n})
}

type archiveRequest struct {
	DaysOld int `json:"days_old" form:"days_old"`
}

// ArchiveLogs ships logs older than days_old to S3 and removes them locally
func (lc *LogController) ArchiveLogs(c *fiber.Ctx) error {
	req := archiveRequest{DaysOld: 30}
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return fail(c, services.NewValidationError("body", "could not be read"), "/admin/logs")
	}
	archive, err := lc.archives.ArchiveOldLogs(c.UserContext(), req.DaysOld)
	if err != nil {
		return fail(c, err, "/admin/logs")
	}
	if archive == nil {
		return succeed(c, fiber.StatusOK, "No logs old enough to archive", "/admin/logs", nil)
	}
	middleware.LogActivity(c, "ARCHIVE", "log_archives", archive.ID, fiber.Map{"records": archive.RecordCount})
	return succeed(c, fiber.StatusCreated, "Logs archived", "/admin/logs", fiber.Map{"archive": archive})
}

func (lc *LogController) ListArchives(c *fiber.Ctx) error {
	rows, err := lc.archives.GetArchivedLogs(c.UserContext())
	if err != nil {
		return fail(c, err, "/admin")
	}
	if middleware.WantsHTML(c) {
		return render(c, "admin/logs", fiber.Map{"Title": "Activity log archives", "Archives": rows})
	}
	return c.JSON(fiber.Map{"archives": rows})
}

func (lc *LogController) DownloadArchive(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return fail(c, err, "/admin/logs")
	}
	body, name, err := lc.archives.DownloadArchivedLogs(c.UserContext(), id)
	if err != nil {
		return fail(c, err, "/admin/logs")
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return fail(c, err, "/admin/logs")
	}
	c.Set(fiber.HeaderContentType, "application/zip")
	c.Attachment(name)
	return c.Send(data)
}
