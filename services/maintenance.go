package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// maintenanceTimeout bounds a single job run.
const maintenanceTimeout = 5 * time.Minute

// MaintenanceJob is one periodic housekeeping task.
type MaintenanceJob struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Maintenance runs housekeeping jobs on cron schedules. A job that is still
// running when its next tick fires is skipped for that tick.
type Maintenance struct {
	cron *cron.Cron
	mu   sync.Mutex
	jobs map[string]MaintenanceJob
}

// cronLogger routes cron's own messages through logrus.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logrus.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logrus.WithError(err).WithFields(kvFields(keysAndValues)).Error("cron: " + msg)
}

func kvFields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}

// NewMaintenance creates a scheduler evaluating specs in loc.
func NewMaintenance(loc *time.Location) *Maintenance {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	return &Maintenance{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		jobs: map[string]MaintenanceJob{},
	}
}

// Add registers a job. Specs use the standard five-field syntax or descriptors
// such as "@every 15m".
func (m *Maintenance) Add(job MaintenanceJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.jobs[job.Name]; dup {
		return fmt.Errorf("maintenance job %q already registered", job.Name)
	}
	if _, err := m.cron.AddFunc(job.Spec, func() { _ = m.execute(job) }); err != nil {
		return fmt.Errorf("maintenance job %q: %w", job.Name, err)
	}
	m.jobs[job.Name] = job
	return nil
}

// RunNow executes a registered job synchronously.
func (m *Maintenance) RunNow(name string) error {
	m.mu.Lock()
	job, ok := m.jobs[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("maintenance job %q not registered", name)
	}
	return m.execute(job)
}

func (m *Maintenance) execute(job MaintenanceJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()

	start := time.Now()
	err := job.Run(ctx)
	entry := logrus.WithFields(logrus.Fields{"job": job.Name, "duration": time.Since(start).String()})
	if err != nil {
		maintenanceRuns.WithLabelValues(job.Name, "error").Inc()
		entry.WithError(err).Warn("Maintenance job failed")
		return err
	}
	maintenanceRuns.WithLabelValues(job.Name, "ok").Inc()
	entry.Debug("Maintenance job finished")
	return nil
}

// Start begins scheduling in the background.
func (m *Maintenance) Start() { m.cron.Start() }

// Stop halts scheduling and waits for running jobs to finish.
func (m *Maintenance) Stop() {
	<-m.cron.Stop().Done()
}

// PortalJobs bundles the services the standard job set needs. Nil members
// are skipped.
type PortalJobs struct {
	Ledger        *SlotLedger
	Renewals      *RenewalService
	Reminders     *ExamReminders
	WorkflowPurge func(ctx context.Context) (int64, error)
	Logs          *LogArchiveService
	LogFlushAge   time.Duration
	ArchiveDays   int
}

// RegisterPortalJobs adds the session completion sweep, the renewal expiry
// sweep, workflow purging and activity-log maintenance under spec. Exam
// reminders go out daily at 07:00.
func RegisterPortalJobs(m *Maintenance, spec string, jobs PortalJobs) error {
	var list []MaintenanceJob
	if jobs.Ledger != nil {
		list = append(list, MaintenanceJob{Name: "complete_sessions", Spec: spec, Run: func(ctx context.Context) error {
			n, err := jobs.Ledger.CompleteDueSessions(ctx)
			if n > 0 {
				logrus.WithField("sessions", n).Info("Completed past exam sessions")
			}
			return err
		}})
	}
	if jobs.Renewals != nil {
		list = append(list, MaintenanceJob{Name: "expire_renewals", Spec: spec, Run: func(ctx context.Context) error {
			n, err := jobs.Renewals.ExpireLapsed(ctx)
			if n > 0 {
				logrus.WithField("renewals", n).Info("Expired lapsed renewals")
			}
			return err
		}})
	}
	if jobs.Reminders != nil {
		list = append(list, MaintenanceJob{Name: "exam_reminders", Spec: "0 7 * * *", Run: func(ctx context.Context) error {
			_, err := jobs.Reminders.SendDailyReminders(ctx)
			return err
		}})
	}
	if jobs.WorkflowPurge != nil {
		list = append(list, MaintenanceJob{Name: "purge_workflows", Spec: spec, Run: func(ctx context.Context) error {
			_, err := jobs.WorkflowPurge(ctx)
			return err
		}})
	}
	if jobs.Logs != nil {
		if jobs.Logs.redis != nil {
			age := jobs.LogFlushAge
			list = append(list, MaintenanceJob{Name: "flush_activity_logs", Spec: spec, Run: func(ctx context.Context) error {
				_, err := jobs.Logs.FlushCachedLogsToDatabase(ctx, age)
				return err
			}})
		}
		if jobs.Logs.store != nil && jobs.ArchiveDays > 0 {
			days := jobs.ArchiveDays
			list = append(list, MaintenanceJob{Name: "archive_activity_logs", Spec: "@daily", Run: func(ctx context.Context) error {
				_, err := jobs.Logs.ArchiveOldLogs(ctx, days)
				return err
			}})
		}
	}

	for _, job := range list {
		if err := m.Add(job); err != nil {
			return err
		}
	}
	return nil
}
