// Package upload stores images through an ordered list of strategies,
// falling through to the next one when a provider fails.
package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// MaxFileSize is the largest image accepted.
const MaxFileSize = 10 * 1024 * 1024

// ProviderDataURL is always available and always tried last.
const ProviderDataURL = "base64"

var (
	ErrTooLarge     = fmt.Errorf("file too large, maximum size is %dMB", MaxFileSize/1024/1024)
	ErrNotImage     = errors.New("only image files are allowed")
	ErrNoStrategies = errors.New("all upload providers failed")
)

type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// Result locates a stored image.
type Result struct {
	URL       string `json:"url"`
	Provider  string `json:"provider"`
	PublicID  string `json:"publicId,omitempty"`
	DeleteURL string `json:"deleteUrl,omitempty"`
}

type Strategy interface {
	Name() string
	Upload(ctx context.Context, img Image) (Result, error)
}

// Failure records one strategy that did not succeed.
type Failure struct {
	Provider string
	Err      error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s failed: %v", f.Provider, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Chain tries strategies in order.
type Chain struct {
	strategies []Strategy
	logger     *zap.Logger
}

// NewChain builds a chain. A data URL strategy is appended when the list
// does not already end with one.
func NewChain(logger *zap.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	if n := len(strategies); n == 0 || strategies[n-1].Name() != ProviderDataURL {
		strategies = append(strategies, DataURL{})
	}
	return &Chain{strategies: strategies, logger: logger}
}

// Providers lists strategy names in the order they are tried.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Upload validates img and stores it with the first strategy that succeeds.
// preferred == ProviderDataURL skips remote providers. onFailure, when set,
// is told about every strategy that fails before a fallback is tried.
func (c *Chain) Upload(ctx context.Context, img Image, preferred string, onFailure func(Failure)) (Result, error) {
	if len(img.Data) > MaxFileSize {
		return Result{}, ErrTooLarge
	}
	if img.ContentType == "" {
		img.ContentType = http.DetectContentType(img.Data)
	}
	if !strings.HasPrefix(img.ContentType, "image/") {
		return Result{}, ErrNotImage
	}

	strategies := c.strategies
	if preferred == ProviderDataURL {
		strategies = []Strategy{DataURL{}}
	}

	var failures []error
	for _, strategy := range strategies {
		result, err := strategy.Upload(ctx, img)
		if err == nil {
			return result, nil
		}
		failure := Failure{Provider: strategy.Name(), Err: err}
		failures = append(failures, failure)
		c.logger.Warn("upload provider failed, trying fallback",
			zap.String("provider", strategy.Name()), zap.Error(err))
		if onFailure != nil {
			onFailure(failure)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return Result{}, errors.Join(append([]error{ErrNoStrategies}, failures...)...)
}
