package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-engine/internal/pkg/httputil"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthChecker reports on Postgres, Redis, the stats archive bucket and
// the follow-up backlog.
type HealthChecker struct {
	db          *sql.DB
	redisClient *redis.Client
	s3Client    *s3.Client
	s3Bucket    string
	startTime   time.Time
}

// NewHealthChecker creates a new HealthChecker.
// Any dependency can be nil; the check will report "not configured" for nil deps.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, s3Client *s3.Client, s3Bucket string) *HealthChecker {
	return &HealthChecker{
		db:          db,
		redisClient: redisClient,
		s3Client:    s3Client,
		s3Bucket:    s3Bucket,
		startTime:   time.Now(),
	}
}

const healthVersion = "1.0.0"

// HandleHealth returns the status of all components. It always answers
// 200; the body carries the verdict.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())

	httputil.OK(w, HealthStatus{
		Status:  determineOverallStatus(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleLiveness always returns 200 while the process runs.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness returns 503 when a critical dependency is down.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := determineOverallStatus(checks)

	ready := overall != "unhealthy"
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	httputil.JSON(w, status, map[string]any{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

// ---------------------------------------------------------------------------
// Individual component checks
// ---------------------------------------------------------------------------

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, 4)

	go func() { ch <- result{"database", hc.checkDatabase(ctx)} }()
	go func() { ch <- result{"redis", hc.checkRedis(ctx)} }()
	go func() { ch <- result{"s3", hc.checkS3(ctx)} }()
	go func() { ch <- result{"followups", hc.checkFollowUpBacklog(ctx)} }()

	checks := make(map[string]ComponentCheck, 4)
	for range 4 {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

// checkDatabase pings PostgreSQL with a 3-second timeout.
func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.db.PingContext(pingCtx)
	latency := time.Since(start)
	if err != nil {
		return ComponentCheck{Status: "down", Latency: latency.String(), Message: fmt.Sprintf("ping failed: %v", err)}
	}
	if latency > time.Second {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("slow response (%s)", latency)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}

// checkRedis pings Redis with a 2-second timeout.
func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redisClient == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.redisClient.Ping(pingCtx).Err()
	latency := time.Since(start)
	if err != nil {
		return ComponentCheck{Status: "down", Latency: latency.String(), Message: fmt.Sprintf("ping failed: %v", err)}
	}
	if latency > 500*time.Millisecond {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("slow response (%s)", latency)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}

// checkS3 verifies the stats archive bucket is reachable via HeadBucket.
func (hc *HealthChecker) checkS3(ctx context.Context) ComponentCheck {
	if hc.s3Client == nil || hc.s3Bucket == "" {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}

	s3Ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	_, err := hc.s3Client.HeadBucket(s3Ctx, &s3.HeadBucketInput{Bucket: &hc.s3Bucket})
	latency := time.Since(start)
	if err != nil {
		return ComponentCheck{Status: "down", Latency: latency.String(), Message: fmt.Sprintf("HeadBucket failed: %v", err)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: fmt.Sprintf("bucket %q accessible", hc.s3Bucket)}
}

// checkFollowUpBacklog counts pending follow-ups more than a day overdue
// as a proxy for sweeper health.
func (hc *HealthChecker) checkFollowUpBacklog(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}

	queryCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	var count int
	err := hc.db.QueryRowContext(queryCtx,
		`SELECT COUNT(*) FROM follow_ups WHERE status = 'pending' AND scheduled_date < CURRENT_DATE - 1`,
	).Scan(&count)
	latency := time.Since(start)
	if err != nil {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("backlog check failed: %v", err)}
	}
	if count > 0 {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("%d follow-ups overdue", count)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "no overdue follow-ups"}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// determineOverallStatus derives the aggregate status from individual checks.
//
// Rules:
//   - "unhealthy" if a configured database is down
//   - "degraded"  if any check is degraded or a configured non-critical check is down
//   - "healthy"   otherwise
func determineOverallStatus(checks map[string]ComponentCheck) string {
	if db, ok := checks["database"]; ok && db.Status == "down" && db.Message != "not configured" {
		return "unhealthy"
	}
	for _, c := range checks {
		if c.Status == "degraded" {
			return "degraded"
		}
		if c.Status == "down" && c.Message != "not configured" {
			return "degraded"
		}
	}
	return "healthy"
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
