package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reelmill/conduct/job"
)

// DefaultQualityThreshold is the visual-clarity score below which a
// result is flagged for regeneration.
const DefaultQualityThreshold = 70

// Pipeline drives a raw generated asset through preparation,
// post-processing, and quality assurance.
type Pipeline struct {
	threshold  int
	thumbnails int
	scorer     Scorer
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithQualityThreshold sets the visual-clarity gate.
func WithQualityThreshold(t int) Option {
	return func(p *Pipeline) { p.threshold = t }
}

// WithThumbnailCount sets how many thumbnail candidates post-processing
// produces.
func WithThumbnailCount(n int) Option {
	return func(p *Pipeline) { p.thumbnails = n }
}

// WithScorer replaces the default heuristic quality scorer.
func WithScorer(s Scorer) Option {
	return func(p *Pipeline) { p.scorer = s }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline with the default threshold, three thumbnail
// candidates, and the heuristic scorer.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		threshold:  DefaultQualityThreshold,
		thumbnails: 3,
		scorer:     HeuristicScorer{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Threshold returns the configured visual-clarity gate.
func (p *Pipeline) Threshold() int { return p.threshold }

// Process runs the raw asset for j through all stages, in order, and
// returns the result. rawURL must be non-empty: the queue only invokes
// the pipeline for jobs whose provider reported a result URL.
func (p *Pipeline) Process(ctx context.Context, j *job.Job, rawURL string) (*job.Result, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("pipeline: empty raw asset URL for job %s", j.ID)
	}

	start := time.Now()

	asset := p.prepare(j.Spec, rawURL)
	asset = p.postProcess(j.Spec, asset)

	metrics, err := p.scorer.Score(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("pipeline: quality scoring for job %s: %w", j.ID, err)
	}

	res := &job.Result{
		AssetURL:       asset.URL,
		ThumbnailURLs:  p.thumbnailCandidates(asset.URL),
		Subtitled:      asset.Subtitled,
		Metrics:        metrics,
		ProcessingTime: time.Since(start),
		BelowThreshold: metrics.VisualClarity < p.threshold,
	}

	if res.BelowThreshold {
		p.logger.Warn("asset below quality threshold",
			slog.String("job_id", j.ID.String()),
			slog.Int("visual_clarity", metrics.VisualClarity),
			slog.Int("threshold", p.threshold),
		)
	}

	return res, nil
}

// prepare normalizes resolution and metadata for the requested style.
func (p *Pipeline) prepare(spec job.Spec, rawURL string) Asset {
	w, h := resolutionForStyle(spec.Style)

	// Short-form clips come out of some providers at 720p; anything
	// under the target gets the upscale flag for the render farm.
	upscaled := spec.Duration <= 15 && h > 720

	return Asset{
		URL:      rawURL,
		Width:    w,
		Height:   h,
		Upscaled: upscaled,
	}
}

// postProcess applies color treatment, optional subtitles, and prepares
// the asset for thumbnail extraction.
func (p *Pipeline) postProcess(spec job.Spec, a Asset) Asset {
	a.ColorProfile = colorProfileForStyle(spec.Style)
	a.Subtitled = spec.SubtitleLang != ""
	return a
}

// thumbnailCandidates derives candidate thumbnail URLs from the asset URL.
func (p *Pipeline) thumbnailCandidates(assetURL string) []string {
	urls := make([]string, 0, p.thumbnails)
	for i := range p.thumbnails {
		urls = append(urls, fmt.Sprintf("%s/thumbs/%02d.jpg", assetURL, i+1))
	}
	return urls
}

// resolutionForStyle maps a visual-style tag to the target resolution.
func resolutionForStyle(style string) (w, h int) {
	switch style {
	case "cinematic":
		return 3840, 2160
	case "retro", "meme":
		return 1280, 720
	default:
		return 1920, 1080
	}
}

// colorProfileForStyle maps a visual-style tag to a color treatment.
func colorProfileForStyle(style string) string {
	switch style {
	case "cinematic":
		return "teal-orange"
	case "retro":
		return "vhs-fade"
	case "neon":
		return "high-saturation"
	default:
		return "standard"
	}
}
