package util

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Five fields (minute hour dom month dow), the dialect asynq's scheduler
// accepts for INVITE_PURGE_CRON.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func parseCron(expr string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// NextCronTime returns the first activation of expr after from, in UTC.
func NextCronTime(expr string, from time.Time) (time.Time, error) {
	schedule, err := parseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from.UTC()), nil
}

func ValidateCronExpr(expr string) error {
	_, err := parseCron(expr)
	return err
}
