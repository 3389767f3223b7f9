package services

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
)

type DiagnosticsReport struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Driver    string    `json:"driver"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckDatabase pings the database and translates common failures into
// something an operator can act on. Driver error text is never returned.
func CheckDatabase(ctx context.Context, db *gorm.DB, timeout time.Duration) DiagnosticsReport {
	report := DiagnosticsReport{Driver: db.Dialector.Name(), Timestamp: time.Now()}

	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err == nil {
		var one int
		err = db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error
	}
	if err != nil {
		report.Message = "Database connection failed"
		report.Error = classifyDBError(err)
		return report
	}

	report.Success = true
	report.Message = "Database connection successful"
	return report
}

func classifyDBError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"):
		return "database server refused the connection"
	case strings.Contains(msg, "password authentication failed"), strings.Contains(msg, "access denied"):
		return "database credentials were rejected"
	case strings.Contains(msg, "does not exist"), strings.Contains(msg, "unknown database"):
		return "database does not exist"
	case strings.Contains(msg, "ssl"), strings.Contains(msg, "tls"):
		return "database TLS negotiation failed"
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"):
		return "database did not respond in time"
	}
	return "unexpected database error"
}
