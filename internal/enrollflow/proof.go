package enrollflow

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// MaxProofBytes is the largest accepted proof of payment.
const MaxProofBytes = 5 * 1024 * 1024

// Artifact is a staged proof of payment.
type Artifact struct {
	Filename  string
	MediaType string
	Content   []byte
}

// Size returns the artifact length in bytes.
func (a Artifact) Size() int64 {
	return int64(len(a.Content))
}

// Preview is the locally derived thumbnail data for a staged image.
type Preview struct {
	Width   int
	Height  int
	DataURI string
}

// ProofCollector validates and stages at most one image artifact.
type ProofCollector struct {
	logger *zap.Logger

	mu         sync.Mutex
	artifact   *Artifact
	preview    *Preview
	previewErr error
	generation uint64
	pending    sync.WaitGroup
}

// NewProofCollector constructs an empty collector.
func NewProofCollector(logger *zap.Logger) *ProofCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProofCollector{logger: logger}
}

// Stage validates and stages content, replacing any previous artifact.
// A rejected file leaves the collector as it was.
func (p *ProofCollector) Stage(filename, mediaType string, content []byte) error {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if !strings.HasPrefix(mediaType, "image/") {
		return inputError(ErrInvalidFileType)
	}
	if len(content) > MaxProofBytes {
		return inputError(ErrFileTooLarge)
	}

	staged := Artifact{Filename: filename, MediaType: mediaType, Content: append([]byte(nil), content...)}

	p.mu.Lock()
	p.generation++
	gen := p.generation
	p.artifact = &staged
	p.preview = nil
	p.previewErr = nil
	p.pending.Add(1)
	p.mu.Unlock()

	go p.derivePreview(gen, staged)
	return nil
}

func (p *ProofCollector) derivePreview(gen uint64, staged Artifact) {
	defer p.pending.Done()

	preview, err := buildPreview(staged)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		return
	}
	if err != nil {
		p.previewErr = err
		p.logger.Debug("proof preview unavailable", zap.String("filename", staged.Filename), zap.Error(err))
		return
	}
	p.preview = preview
}

func buildPreview(staged Artifact) (*Preview, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(staged.Content))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	return &Preview{
		Width:   cfg.Width,
		Height:  cfg.Height,
		DataURI: "data:" + staged.MediaType + ";base64," + base64.StdEncoding.EncodeToString(staged.Content),
	}, nil
}

// Remove clears the artifact and its preview together.
func (p *ProofCollector) Remove() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation++
	p.artifact = nil
	p.preview = nil
	p.previewErr = nil
}

// Staged reports whether an artifact is ready for submission.
func (p *ProofCollector) Staged() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.artifact != nil
}

// Artifact returns a copy of the staged artifact.
func (p *ProofCollector) Artifact() (Artifact, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.artifact == nil {
		return Artifact{}, false
	}
	return *p.artifact, true
}

// Preview returns the derived preview once available.
func (p *ProofCollector) Preview() (Preview, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.preview == nil {
		return Preview{}, false
	}
	return *p.preview, true
}

// WaitPreview blocks until every started preview derivation has finished.
func (p *ProofCollector) WaitPreview() {
	p.pending.Wait()
}
