package schedule

import (
	"fmt"
	"time"

	"github.com/reelmill/conduct"
	"github.com/reelmill/conduct/id"
	"github.com/reelmill/conduct/job"
	"github.com/reelmill/conduct/pipeline"
)

// Frequency names a schedule cadence.
type Frequency string

const (
	FreqHourly Frequency = "hourly"
	FreqDaily  Frequency = "daily"
	FreqWeekly Frequency = "weekly"
	// FreqCustom requires an explicit cron expression in Config.CronExpr.
	FreqCustom Frequency = "custom"
)

// Template describes one job to generate per tick.
type Template struct {
	Type         job.ContentType `json:"type"`
	Duration     int             `json:"duration"` // seconds
	Provider     string          `json:"provider"`
	Style        string          `json:"style,omitempty"`
	MusicSync    bool            `json:"music_sync,omitempty"`
	SubtitleLang string          `json:"subtitle_lang,omitempty"`
	Priority     int             `json:"priority,omitempty"` // defaults to 5
}

// Spec builds the job spec for one tick of this template.
func (t Template) Spec(now time.Time) job.Spec {
	priority := t.Priority
	if priority == 0 {
		priority = 5
	}
	return job.Spec{
		Type:         t.Type,
		Duration:     t.Duration,
		Provider:     t.Provider,
		Style:        t.Style,
		MusicSync:    t.MusicSync,
		SubtitleLang: t.SubtitleLang,
		Priority:     priority,
		CreatedAt:    now,
	}
}

// Config is a recurring generation schedule. Owned by the scheduler;
// callers create, update, pause, resume, and delete it through the
// scheduler's operations.
type Config struct {
	conduct.Entity

	ID        id.ScheduleID `json:"id"`
	Name      string        `json:"name"`
	Frequency Frequency     `json:"frequency"`

	// CronExpr is the cron expression for FreqCustom (5-field or
	// descriptors like "@every 30m"). Ignored for named frequencies.
	CronExpr string `json:"cron_expr,omitempty"`

	Templates []Template `json:"templates"`
	Platforms []string   `json:"platforms,omitempty"`

	// QualityThreshold is the visual-clarity gate applied to this
	// schedule's results. Zero means the pipeline default.
	QualityThreshold int `json:"quality_threshold,omitempty"`

	AutoPublish      bool `json:"auto_publish"`
	NotifyOnComplete bool `json:"notify_on_complete"`
	Enabled          bool `json:"enabled"`

	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}

// cadenceExpr maps the frequency to the cron expression that drives it.
func (c *Config) cadenceExpr() string {
	switch c.Frequency {
	case FreqHourly:
		return "@hourly"
	case FreqDaily:
		return "@daily"
	case FreqWeekly:
		return "@weekly"
	default:
		return c.CronExpr
	}
}

// Validate rejects malformed configs synchronously. All failures wrap
// conduct.ErrInvalidSchedule.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", conduct.ErrInvalidSchedule)
	}

	switch c.Frequency {
	case FreqHourly, FreqDaily, FreqWeekly:
	case FreqCustom:
		if c.CronExpr == "" {
			return fmt.Errorf("%w: custom frequency requires a cron expression", conduct.ErrInvalidSchedule)
		}
	default:
		return fmt.Errorf("%w: unknown frequency %q", conduct.ErrInvalidSchedule, c.Frequency)
	}

	if _, err := ParseCadence(c.cadenceExpr()); err != nil {
		return fmt.Errorf("%w: %v", conduct.ErrInvalidSchedule, err)
	}

	if len(c.Templates) == 0 {
		return fmt.Errorf("%w: at least one content template is required", conduct.ErrInvalidSchedule)
	}
	for i, t := range c.Templates {
		if err := t.Spec(time.Now().UTC()).Validate(); err != nil {
			return fmt.Errorf("%w: template %d: %v", conduct.ErrInvalidSchedule, i, err)
		}
	}

	if c.QualityThreshold < 0 || c.QualityThreshold > 100 {
		return fmt.Errorf("%w: quality threshold %d out of range [0, 100]", conduct.ErrInvalidSchedule, c.QualityThreshold)
	}
	return nil
}

// Threshold returns the schedule's quality gate, falling back to the
// pipeline default.
func (c *Config) Threshold() int {
	if c.QualityThreshold > 0 {
		return c.QualityThreshold
	}
	return pipeline.DefaultQualityThreshold
}
