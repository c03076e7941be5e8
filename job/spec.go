package job

import (
	"fmt"
	"time"

	"github.com/reelmill/conduct"
)

// ContentType classifies the kind of content a job generates.
type ContentType string

// Content classes supported by the generation backends.
const (
	TypeNFTShowcase      ContentType = "nft-showcase"
	TypeMarketUpdate     ContentType = "market-update"
	TypeProjectSpotlight ContentType = "project-spotlight"
	TypeEducational      ContentType = "educational"
	TypeMeme             ContentType = "meme"
)

// knownTypes is the closed set of valid content types.
var knownTypes = map[ContentType]struct{}{
	TypeNFTShowcase:      {},
	TypeMarketUpdate:     {},
	TypeProjectSpotlight: {},
	TypeEducational:      {},
	TypeMeme:             {},
}

// MaxDuration is the longest clip a spec may request, in seconds.
const MaxDuration = 300

// Spec is an immutable description of requested generation work.
// Created by the caller; never mutated after validation.
type Spec struct {
	Type         ContentType `json:"type"`
	Duration     int         `json:"duration"` // seconds
	Provider     string      `json:"provider"`
	Style        string      `json:"style,omitempty"`
	MusicSync    bool        `json:"music_sync,omitempty"`
	SubtitleLang string      `json:"subtitle_lang,omitempty"`
	Priority     int         `json:"priority"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Validate rejects malformed specs synchronously, before any job record
// is created. All failures wrap conduct.ErrInvalidSpec.
func (s Spec) Validate() error {
	if _, ok := knownTypes[s.Type]; !ok {
		return fmt.Errorf("%w: unknown content type %q", conduct.ErrInvalidSpec, s.Type)
	}
	if s.Duration <= 0 || s.Duration > MaxDuration {
		return fmt.Errorf("%w: duration %d out of range (0, %d]", conduct.ErrInvalidSpec, s.Duration, MaxDuration)
	}
	if s.Provider == "" {
		return fmt.Errorf("%w: provider is required", conduct.ErrInvalidSpec)
	}
	if s.Priority < 1 || s.Priority > 10 {
		return fmt.Errorf("%w: priority %d out of range [1, 10]", conduct.ErrInvalidSpec, s.Priority)
	}
	return nil
}

// EffectivePriority computes the dispatch priority for a spec:
// the caller-supplied priority plus a boost for time-sensitive content
// classes and a boost for short jobs (they clear the queue faster),
// clamped to [1, 10]. Ties are broken FIFO by the queue.
func EffectivePriority(s Spec) int {
	p := s.Priority

	switch s.Type {
	case TypeMarketUpdate:
		p += 2 // stale market content is worthless
	case TypeMeme:
		p += 1
	}

	switch {
	case s.Duration <= 15:
		p++
	case s.Duration >= 60:
		p--
	}

	if p < 1 {
		return 1
	}
	if p > 10 {
		return 10
	}
	return p
}
