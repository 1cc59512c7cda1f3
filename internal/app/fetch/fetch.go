package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/elitecode/scraper/internal/app/output"
	"github.com/elitecode/scraper/internal/config"
	"github.com/elitecode/scraper/internal/engine"
	"github.com/elitecode/scraper/internal/report"
)

const acceptEncoding = "accept-encoding"

// Fetcher downloads one JSON document and stores it pretty-printed.
type Fetcher struct {
	cfg      *config.Config
	log      *zap.Logger
	redactor *report.Redactor
	client   *engine.Client
	target   engine.RequestDescriptor
}

func New(cfg *config.Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	redactor, err := report.NewRedactor(cfg.RedactionPatterns)
	if err != nil {
		return nil, err
	}

	opts := engine.ClientOptions{
		Timeout:      cfg.Timeout,
		MaxRequests:  cfg.MaxRequests,
		MaxRedirects: cfg.MaxRedirects,
		MaxBodyBytes: cfg.MaxBodyBytes,
	}
	if cfg.RestrictDomain {
		opts.AllowedRootDomain = engine.RootDomain(cfg.URL)
	}

	return &Fetcher{
		cfg:      cfg,
		log:      logger,
		redactor: redactor,
		client:   engine.NewClient(opts),
		target: engine.RequestDescriptor{
			URL:     cfg.URL,
			Headers: engine.NewHeaderSet(cfg.RequestHeaders()),
		},
	}, nil
}

// FetchAndSave performs the request, decodes the body and overwrites the
// output file. The returned summary is filled as far as the run got, also on
// error. The output file is only touched once the payload parsed as JSON.
func (f *Fetcher) FetchAndSave(ctx context.Context) (*report.Summary, error) {
	sum := report.NewSummary(f.redactor.URL(f.target.URL), f.cfg.Output)
	return sum, f.fetchAndSave(ctx, sum, f.runLogger(sum))
}

// runLogger tags every entry of one run with its id.
func (f *Fetcher) runLogger(sum *report.Summary) *zap.Logger {
	return f.log.With(zap.String("run_id", sum.RunID))
}

func (f *Fetcher) fetchAndSave(ctx context.Context, sum *report.Summary, log *zap.Logger) error {
	sess := f.client.NewSession()
	defer func() {
		sum.Requests, sum.RequestTime = sess.Stats()
		sum.FinishedAt = time.Now()
	}()

	resp, err := f.get(ctx, log, sess, f.target, "request")
	if err != nil {
		return err
	}
	sum.StatusCode = resp.StatusCode
	f.logResponse(log, resp)

	encoding := resp.ContentEncoding
	sum.Encoding = encoding
	log.Info("content encoding", zap.String("content_encoding", encoding))

	var payload []byte
	if engine.IndicatesBrotli(encoding) {
		log.Info("decompressing brotli-encoded response")
		payload, err = engine.DecompressBrotli(resp.Body, f.cfg.MaxBodyBytes)
		if err != nil {
			log.Warn("brotli decompression failed, retrying without accept-encoding",
				zap.String("kind", KindDecompression.String()),
				zap.Error(err),
			)
			sum.Fallback = true

			fallback := f.target.WithHeaders(f.target.Headers.Without(acceptEncoding))
			retry, err := f.get(ctx, log, sess, fallback, "fallback request")
			if err != nil {
				return err
			}
			sum.StatusCode = retry.StatusCode
			f.logResponse(log, retry)

			if engine.IndicatesBrotli(retry.ContentEncoding) {
				log.Warn("fallback response is still brotli-encoded, using it as plain text",
					zap.String("content_encoding", retry.ContentEncoding),
				)
			}
			payload = plainText(log, retry)
		}
	} else {
		log.Info("no brotli compression detected, using plain response")
		payload = plainText(log, resp)
	}

	change, err := output.SaveJSONDocument(f.cfg.Output, payload)
	if err != nil {
		if errors.Is(err, output.ErrInvalidJSON) {
			return newError(KindMalformedPayload, "parse", err)
		}
		return newError(KindUnclassified, "save", err)
	}
	log.Info("JSON parsed successfully")

	sum.Outcome = report.OutcomeSaved
	sum.Bytes = change.Bytes
	sum.Changed = change.Changed
	sum.LinesAdded = change.Added
	sum.LinesRemoved = change.Removed
	log.Info("data saved", zap.String("path", f.cfg.Output), zap.Bool("changed", change.Changed))

	return nil
}

// plainText decodes a body taken verbatim to UTF-8 using the response's
// declared charset.
func plainText(log *zap.Logger, resp *engine.Response) []byte {
	text := engine.DecodeText(resp.Body, resp.Headers.Get("Content-Type"))
	if !bytes.Equal(text, resp.Body) {
		log.Debug("response body re-encoded as UTF-8",
			zap.String("content_type", resp.Headers.Get("Content-Type")),
			zap.Int("raw_bytes", len(resp.Body)),
			zap.Int("text_bytes", len(text)),
		)
	}
	return text
}

func (f *Fetcher) get(ctx context.Context, log *zap.Logger, sess *engine.Session, desc engine.RequestDescriptor, stage string) (*engine.Response, error) {
	log.Debug("sending request",
		zap.String("stage", stage),
		zap.String("url", f.redactor.URL(desc.URL)),
		zap.Strings("headers", desc.Headers.Names()),
	)
	resp, err := sess.Get(ctx, desc)
	if err != nil {
		if errors.Is(err, engine.ErrBodyTooLarge) {
			return nil, newError(KindUnclassified, stage, err)
		}
		return nil, newError(KindNetwork, stage, err)
	}
	return resp, nil
}

func (f *Fetcher) logResponse(log *zap.Logger, resp *engine.Response) {
	log.Info("response received",
		zap.Int("status", resp.StatusCode),
		zap.Strings("headers", f.redactor.Headers(resp.Headers)),
	)
	if !resp.IsSuccess() {
		log.Warn("non-success status code, continuing", zap.Int("status", resp.StatusCode))
	}
}

// Run is the top-level boundary around FetchAndSave. Failures are logged and
// swallowed unless fail_on_error is set, in which case they are returned.
func (f *Fetcher) Run(ctx context.Context) (err error) {
	sum := report.NewSummary(f.redactor.URL(f.target.URL), f.cfg.Output)
	log := f.runLogger(sum)
	defer func() {
		if r := recover(); r != nil {
			err = newError(KindUnclassified, "run", fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			f.logFailure(log, err)
			sum.FailureKind = KindOf(err).String()
		}
		if sum.FinishedAt.IsZero() {
			sum.FinishedAt = time.Now()
		}
		log.Info("run finished", zap.Object("summary", sum))
		if !f.cfg.FailOnError {
			err = nil
		}
	}()

	if !f.cfg.HasCookie() {
		log.Warn("no session cookie configured; set SCRAPER_COOKIE or cookie in the config file")
	}

	return f.fetchAndSave(ctx, sum, log)
}

func (f *Fetcher) logFailure(log *zap.Logger, err error) {
	msg := f.redactor.Text(err.Error())
	switch KindOf(err) {
	case KindNetwork:
		log.Error("request failed", zap.String("error", msg))
	case KindMalformedPayload:
		log.Error("failed to parse JSON response", zap.String("error", msg))
	default:
		log.Error("an unexpected error occurred", zap.String("error", msg))
	}
}

// Describe returns a one-line, redacted description of err for terminal
// output.
func (f *Fetcher) Describe(err error) string {
	return strings.TrimSpace(f.redactor.Text(err.Error()))
}
