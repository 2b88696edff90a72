package audit

import (
	cronlib "github.com/robfig/cron/v3"
)

// StartMaintenance schedules a periodic VACUUM of the audit database on
// a standard 5-field cron expression (default: daily at 03:00). VACUUM
// reclaims space left behind by the WAL checkpoint and keeps the file
// from growing unbounded under sustained session churn. It returns a
// stop function; calling it is safe even if scheduling failed.
func (s *Store) StartMaintenance(cronExpr string) (stop func(), err error) {
	if cronExpr == "" {
		cronExpr = "0 3 * * *"
	}

	c := cronlib.New()
	_, err = c.AddFunc(cronExpr, func() {
		if _, execErr := s.db.Exec("VACUUM;"); execErr != nil {
			s.logger.Error("audit: scheduled vacuum failed", "error", execErr)
			return
		}
		s.logger.Info("audit: vacuum complete")
	})
	if err != nil {
		return func() {}, err
	}

	c.Start()
	return func() { <-c.Stop().Done() }, nil
}
