package job

import "time"

// QualityMetrics holds five independent 0–100 scores computed by the
// pipeline's quality-assurance stage.
type QualityMetrics struct {
	VisualClarity        int `json:"visual_clarity"`
	AudioBalance         int `json:"audio_balance"`
	BrandConsistency     int `json:"brand_consistency"`
	CopyrightSafety      int `json:"copyright_safety"`
	EngagementPrediction int `json:"engagement_prediction"`
}

// Result is the immutable output of the content pipeline for one
// completed job. Produced only for jobs whose provider returned a
// non-empty raw asset URL.
type Result struct {
	AssetURL       string         `json:"asset_url"`
	ThumbnailURLs  []string       `json:"thumbnail_urls,omitempty"`
	Subtitled      bool           `json:"subtitled,omitempty"`
	Metrics        QualityMetrics `json:"metrics"`
	ProcessingTime time.Duration  `json:"processing_time"`

	// BelowThreshold flags results whose visual clarity missed the
	// configured quality gate. Non-fatal: the result is still attached
	// and the caller decides whether to regenerate.
	BelowThreshold bool `json:"below_threshold,omitempty"`
}
