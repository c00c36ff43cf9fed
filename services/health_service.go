package services

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"jpjportal_go/config"
	"jpjportal_go/models"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const (
	overallStatusOK       = "ok"
	overallStatusDegraded = "degraded"
	overallStatusCritical = "critical"

	dependencyStatusUp       = "up"
	dependencyStatusDown     = "down"
	dependencyStatusDisabled = "disabled"

	defaultServiceName = "JPJ Portal"
	defaultVersion     = "1.0.0"
	healthTimeout      = 1500 * time.Millisecond
)

// HealthService reports on the database, Redis and the booking backlog.
type HealthService struct {
	db          *gorm.DB
	redis       *redis.Client
	serviceName string
	version     string
	startTime   time.Time
	now         func() time.Time
}

// HealthReport is the body of GET /health.
type HealthReport struct {
	Status        string             `json:"status"`
	Service       string             `json:"service"`
	Version       string             `json:"version"`
	Environment   string             `json:"environment"`
	Time          time.Time          `json:"time"`
	UptimeSeconds float64            `json:"uptime_seconds"`
	Uptime        string             `json:"uptime"`
	Dependencies  []DependencyStatus `json:"dependencies"`
	Portal        *PortalStats       `json:"portal,omitempty"`
	Runtime       RuntimeStats       `json:"runtime"`
}

// DependencyStatus captures the health of a single external dependency.
type DependencyStatus struct {
	Name      string                 `json:"name"`
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// PortalStats summarises the work waiting on the portal.
type PortalStats struct {
	UpcomingSessions int64 `json:"upcoming_sessions"`
	OpenSlots        int64 `json:"open_slots"`
	PendingRenewals  int64 `json:"pending_renewals"`
}

type RuntimeStats struct {
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
	HeapBytes  uint64 `json:"heap_bytes"`
}

// NewHealthService creates a HealthService probing db and, when not nil, redis.
func NewHealthService(db *gorm.DB, rdb *redis.Client, serviceName, version string) *HealthService {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = defaultServiceName
	}
	if strings.TrimSpace(version) == "" {
		version = defaultVersion
	}
	return &HealthService{
		db:          db,
		redis:       rdb,
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		now:         time.Now,
	}
}

// GetHealthReport probes every dependency within a shared deadline.
func (s *HealthService) GetHealthReport(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	now := s.now()
	uptime := now.Sub(s.startTime)
	if uptime < 0 {
		uptime = 0
	}
	report := HealthReport{
		Status:        overallStatusOK,
		Service:       s.serviceName,
		Version:       s.version,
		Environment:   currentEnvironment(),
		Time:          now.UTC(),
		UptimeSeconds: uptime.Seconds(),
		Uptime:        humanizeDuration(uptime),
	}

	dbDep, dbStatus := s.checkDatabase(ctx)
	redisDep, redisStatus := s.checkRedis(ctx)
	report.Dependencies = []DependencyStatus{dbDep, redisDep}
	report.Status = combineStatus(combineStatus(report.Status, dbStatus), redisStatus)

	if dbDep.Status == dependencyStatusUp {
		stats, err := s.portalStats(ctx, now)
		if err != nil {
			report.Status = combineStatus(report.Status, overallStatusDegraded)
		} else {
			report.Portal = stats
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	report.Runtime = RuntimeStats{
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		HeapBytes:  mem.HeapAlloc,
	}
	return report
}

// HTTPStatusForOverall maps a health status to an HTTP status code.
func (s *HealthService) HTTPStatusForOverall(status string) int {
	if status == overallStatusCritical {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func (s *HealthService) checkDatabase(ctx context.Context) (DependencyStatus, string) {
	dep := DependencyStatus{Name: "database", Status: dependencyStatusDown}
	if s.db == nil {
		dep.Error = "database connection not initialised"
		return dep, overallStatusCritical
	}

	dep.Name = s.db.Dialector.Name()
	sqlDB, err := s.db.DB()
	if err != nil {
		dep.Error = fmt.Sprintf("sql DB handle error: %v", err)
		return dep, overallStatusCritical
	}

	start := time.Now()
	err = sqlDB.PingContext(ctx)
	dep.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		dep.Error = err.Error()
		return dep, overallStatusCritical
	}

	stats := sqlDB.Stats()
	dep.Status = dependencyStatusUp
	dep.Details = map[string]interface{}{
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"wait_count":       stats.WaitCount,
	}
	return dep, overallStatusOK
}

// checkRedis treats a missing Redis as degraded only when workflows were
// configured to live there.
func (s *HealthService) checkRedis(ctx context.Context) (DependencyStatus, string) {
	dep := DependencyStatus{Name: "redis"}
	required := config.AppConfig != nil && config.AppConfig.UseRedisWorkflow
	failed := overallStatusOK
	if required {
		failed = overallStatusDegraded
	}

	if s.redis == nil {
		if required {
			dep.Status = dependencyStatusDown
			dep.Error = "redis client not initialised"
		} else {
			dep.Status = dependencyStatusDisabled
		}
		return dep, failed
	}

	start := time.Now()
	err := s.redis.Ping(ctx).Err()
	dep.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		dep.Status = dependencyStatusDown
		dep.Error = err.Error()
		return dep, failed
	}

	dep.Status = dependencyStatusUp
	dep.Details = map[string]interface{}{"address": s.redis.Options().Addr}
	return dep, overallStatusOK
}

func (s *HealthService) portalStats(ctx context.Context, now time.Time) (*PortalStats, error) {
	db := s.db.WithContext(ctx)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var stats PortalStats
	upcoming := db.Model(&models.ExamSession{}).
		Where("status = ? AND exam_date >= ?", models.SessionScheduled, today)
	if err := upcoming.Count(&stats.UpcomingSessions).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.ExamSession{}).
		Where("status = ? AND exam_date >= ?", models.SessionScheduled, today).
		Select("COALESCE(SUM(available_slots), 0)").Scan(&stats.OpenSlots).Error; err != nil {
		return nil, err
	}

	for _, model := range []interface{}{&models.RoadTaxRenewal{}, &models.LicenseRenewal{}} {
		var n int64
		if err := db.Model(model).Where("status = ?", models.RenewalPending).Count(&n).Error; err != nil {
			return nil, err
		}
		stats.PendingRenewals += n
	}
	return &stats, nil
}

func currentEnvironment() string {
	if config.AppConfig == nil || strings.TrimSpace(config.AppConfig.AppEnv) == "" {
		return "unknown"
	}
	return config.AppConfig.AppEnv
}

func combineStatus(current, candidate string) string {
	order := map[string]int{
		overallStatusOK:       0,
		overallStatusDegraded: 1,
		overallStatusCritical: 2,
	}
	if _, ok := order[current]; !ok {
		current = overallStatusOK
	}
	if v, ok := order[candidate]; ok && v > order[current] {
		return candidate
	}
	return current
}

// humanizeDuration renders d as "1d 2h 3m".
func humanizeDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Round(time.Second)
	units := []struct {
		size   time.Duration
		suffix string
	}{{24 * time.Hour, "d"}, {time.Hour, "h"}, {time.Minute, "m"}, {time.Second, "s"}}

	var parts []string
	for _, u := range units {
		if n := d / u.size; n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
			d -= n * u.size
		}
	}
	return strings.Join(parts, " ")
}
