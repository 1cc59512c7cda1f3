package report

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zapcore"
)

type Outcome string

const (
	OutcomeSaved  Outcome = "saved"
	OutcomeFailed Outcome = "failed"
)

// Summary describes one fetch run. It is logged once at the end of the run.
type Summary struct {
	RunID        string
	URL          string
	OutputPath   string
	StatusCode   int
	Encoding     string
	Fallback     bool
	Outcome      Outcome
	FailureKind  string
	Requests     int64
	RequestTime  time.Duration
	Bytes        int
	Changed      bool
	LinesAdded   int
	LinesRemoved int
	StartedAt    time.Time
	FinishedAt   time.Time
}

func NewSummary(url, outputPath string) *Summary {
	return &Summary{
		RunID:      uuid.NewString(),
		URL:        url,
		OutputPath: outputPath,
		Outcome:    OutcomeFailed,
		StartedAt:  time.Now(),
	}
}

func (s *Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// MarshalLogObject lets the summary be logged with zap.Object.
func (s *Summary) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("run_id", s.RunID)
	enc.AddString("url", s.URL)
	enc.AddString("outcome", string(s.Outcome))
	if s.FailureKind != "" {
		enc.AddString("failure", s.FailureKind)
	}
	if s.StatusCode != 0 {
		enc.AddInt("status", s.StatusCode)
	}
	if s.Encoding != "" {
		enc.AddString("content_encoding", s.Encoding)
	}
	enc.AddBool("fallback", s.Fallback)
	enc.AddInt64("requests", s.Requests)
	enc.AddDuration("request_time", s.RequestTime)
	enc.AddDuration("elapsed", s.Duration())
	if s.Outcome == OutcomeSaved {
		enc.AddString("output", s.OutputPath)
		enc.AddInt("bytes", s.Bytes)
		enc.AddBool("changed", s.Changed)
		enc.AddInt("lines_added", s.LinesAdded)
		enc.AddInt("lines_removed", s.LinesRemoved)
	}
	return nil
}
