package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	RegisterRequestsTotal       metric.Int64Counter
	LoginAttemptsTotal          metric.Int64Counter
	PasswordResetRequestsTotal  metric.Int64Counter
	PasswordResetsTotal         metric.Int64Counter
	PasswordHashDurationSeconds metric.Float64Histogram
	SessionsCreatedTotal        metric.Int64Counter
	MailDeliveriesTotal         metric.Int64Counter
	DeletionsTotal              metric.Int64Counter
	DbQueryDurationSeconds      metric.Float64Histogram
	DbQueryErrorsTotal          metric.Int64Counter
}

var (
	// Global instance of AppMetrics (initialized once)
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metrics instruments ONLY ONCE.
// It gets the Meter from the globally configured MeterProvider, so it must
// run after tracer.InitTracingAndMetrics to export anything.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("ohms-auth")
		m := &AppMetrics{}

		m.RegisterRequestsTotal = counter(meter, "register_requests_total", "Total number of completed registrations", "{request}")
		m.LoginAttemptsTotal = counter(meter, "login_attempts_total", "Login attempts by outcome", "{attempt}")
		m.PasswordResetRequestsTotal = counter(meter, "password_reset_requests_total", "Password reset requests received", "{request}")
		m.PasswordResetsTotal = counter(meter, "password_resets_total", "Passwords changed through a reset token", "{reset}")
		m.SessionsCreatedTotal = counter(meter, "sessions_created_total", "Sessions established", "{session}")
		m.MailDeliveriesTotal = counter(meter, "mail_deliveries_total", "Outbound notification deliveries by outcome", "{message}")
		m.DeletionsTotal = counter(meter, "integrity_deletions_total", "Entities deleted under the integrity policy", "{entity}")
		m.DbQueryErrorsTotal = counter(meter, "db_query_errors_total", "Total number of database query errors", "{error}")

		m.PasswordHashDurationSeconds = histogram(meter, "password_hash_duration_seconds", "Time spent in bcrypt, including the wait for a hashing slot")
		m.DbQueryDurationSeconds = histogram(meter, "db_query_duration_seconds", "Duration of database queries in seconds")

		log.Println("Application metrics instruments initialized.")
		appMetrics = m
	})
}

func counter(meter metric.Meter, name, desc, unit string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		log.Fatalf("Metrics: Failed to create %s: %v", name, err)
	}
	return c
}

func histogram(meter metric.Meter, name, desc string) metric.Float64Histogram {
	h, err := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
	if err != nil {
		log.Fatalf("Metrics: Failed to create %s: %v", name, err)
	}
	return h
}

// Get returns the global AppMetrics, initializing it against whatever
// MeterProvider is installed (a no-op one in tests).
func Get() *AppMetrics {
	InitAppMetrics()
	return appMetrics
}
