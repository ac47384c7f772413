package runtime

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule yields the next activation time after a given time.
type Schedule interface {
	Next(time.Time) time.Time
}

// ParseSchedule parses a schedule string.
// Supports:
//   - Cron expressions: "0 */15 * * * *" (6-field) or "*/15 * * * *" (5-field)
//   - Descriptors: "@hourly", "@every 5m"
//   - Go duration strings: "15m", "2h", "1h30m"
func ParseSchedule(expr string) (Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("schedule string is empty")
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(expr)
	if err == nil {
		return sched, nil
	}

	duration, err := time.ParseDuration(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule as cron expression or duration: %w", err)
	}
	if duration < time.Second {
		return nil, fmt.Errorf("schedule interval %s is shorter than one second", duration)
	}
	return cron.Every(duration), nil
}
