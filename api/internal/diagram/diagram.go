package diagram

import (
	"context"
	"errors"
	"strings"
	"time"

	"physics-tutor/api/internal/logger"
	"physics-tutor/api/internal/util"
)

// Request is one image-generation call. N is always 1 for tutor diagrams.
type Request struct {
	Prompt  string
	Size    string // square, e.g. "1024x1024"
	Quality string // "standard" | "hd" | "low" | "medium" | "high"
	N       int
}

type Result struct {
	URL           string
	RevisedPrompt string
}

// Generator is the image-generation provider.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (Result, error)
}

var ErrEmptyPrompt = errors.New("image prompt required")

// Cache stores hosted image URLs. Get returns an error (store.ErrNotFound or similar)
// on a miss or when the entry is older than maxAge.
type Cache interface {
	Get(ctx context.Context, key string, maxAge time.Duration) (string, error)
	Put(ctx context.Context, key, url string) error
}

// Service turns a plain prompt into a square image URL, optionally through a cache.
type Service struct {
	gen     Generator
	cache   Cache
	size    string
	quality string
	model   string
	maxAge  time.Duration
	log     *logger.Logger
}

type Options struct {
	Size    string
	Quality string
	// Model only feeds the cache key; the generator owns the real model choice.
	Model  string
	MaxAge time.Duration
	Cache  Cache
	Log    *logger.Logger
}

const (
	DefaultSize    = "1024x1024"
	DefaultQuality = "standard"
	// Hosted image URLs expire after about an hour.
	DefaultMaxAge = 50 * time.Minute
)

func NewService(gen Generator, opt Options) *Service {
	s := &Service{
		gen:     gen,
		cache:   opt.Cache,
		size:    strings.TrimSpace(opt.Size),
		quality: strings.TrimSpace(opt.Quality),
		model:   opt.Model,
		maxAge:  opt.MaxAge,
		log:     logger.OrNop(opt.Log),
	}
	if s.size == "" {
		s.size = DefaultSize
	}
	if s.quality == "" {
		s.quality = DefaultQuality
	}
	if s.maxAge <= 0 {
		s.maxAge = DefaultMaxAge
	}
	return s
}

// CacheKey identifies a diagram by everything that changes the picture.
func CacheKey(prompt, model, size, quality string) string {
	return util.SHA256Hex(strings.TrimSpace(prompt), model, size, quality)
}

// GenerateDiagram implements tutor.DiagramGenerator. Cache failures are logged and
// otherwise ignored.
func (s *Service) GenerateDiagram(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	key := CacheKey(prompt, s.model, s.size, s.quality)
	if s.cache != nil {
		if url, err := s.cache.Get(ctx, key, s.maxAge); err == nil && url != "" {
			s.log.Debug("diagram cache hit", "key", key[:12])
			return url, nil
		}
	}

	start := time.Now()
	res, err := s.gen.Generate(ctx, Request{Prompt: prompt, Size: s.size, Quality: s.quality, N: 1})
	s.log.Info("image provider call", "provider", s.gen.Name(), "size", s.size,
		"elapsed_ms", time.Since(start).Milliseconds(), "error", err)
	if err != nil {
		return "", err
	}
	if res.RevisedPrompt != "" && res.RevisedPrompt != prompt {
		s.log.Debug("diagram prompt revised by provider", "revised_prompt", res.RevisedPrompt)
	}
	if s.cache != nil {
		if err := s.cache.Put(ctx, key, res.URL); err != nil {
			s.log.Warn("diagram cache put failed", "error", err)
		}
	}
	return res.URL, nil
}
