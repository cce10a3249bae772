// Package gateway orchestrates payload transfers between the marketplace
// and the storage network. An upload is validated, staged, content-addressed
// and deposited; a download is retrieved into staging and verified against
// its root before anything is returned.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aloksahay/fairbnb-sub000/config"
	"github.com/aloksahay/fairbnb-sub000/merkle"
	"github.com/aloksahay/fairbnb-sub000/retry"
	"github.com/aloksahay/fairbnb-sub000/staging"
	"go.uber.org/zap"
)

type (
	// A Backend moves payloads and deposits between the gateway and the
	// storage network.
	Backend interface {
		// Deposit commits the payload on the settlement ledger and pushes
		// its bytes to the storage nodes. It returns a transaction
		// reference.
		Deposit(ctx context.Context, payload io.Reader, length uint64, root merkle.Root) (string, error)
		// Retrieve writes the payload addressed by root to dst.
		Retrieve(ctx context.Context, root merkle.Root, dst io.Writer) error
		// Status probes the network once and reports what it saw.
		Status(ctx context.Context) NetworkStatus
		// Balance reads the settlement account state.
		Balance(ctx context.Context) (Balance, error)
	}

	// A RecordStore persists upload metadata. Records are a side-channel:
	// content addressing never depends on them.
	RecordStore interface {
		AddUpload(UploadRecord) error
		Upload(root merkle.Root) (UploadRecord, error)
		Uploads() ([]UploadRecord, error)
	}

	// A Gateway accepts payloads from the marketplace and moves them to and
	// from the storage network. All methods are safe for concurrent use.
	Gateway struct {
		backend Backend
		store   RecordStore
		stager  *staging.Stager
		log     *zap.Logger

		validation    config.Validation
		uploadRetry   retry.Policy
		downloadRetry retry.Policy
	}
)

func retryPolicy(cfg config.RetryPolicy) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseBackoff: cfg.BaseBackoff,
		Timeout:     cfg.AttemptTimeout,
	}
}

// New creates a Gateway.
func New(backend Backend, store RecordStore, stager *staging.Stager, cfg config.Config, log *zap.Logger) *Gateway {
	return &Gateway{
		backend: backend,
		store:   store,
		stager:  stager,
		log:     log,

		validation:    cfg.Validation,
		uploadRetry:   retryPolicy(cfg.Retry.Upload),
		downloadRetry: retryPolicy(cfg.Retry.Download),
	}
}

// Upload validates, stages, content-addresses and deposits a payload. The
// staged copy is always released before Upload returns, on every path.
func (g *Gateway) Upload(ctx context.Context, payload []byte, name, mimeType string) (UploadRecord, error) {
	log := g.log.Named("upload").With(zap.String("name", name), zap.Int("size", len(payload)))

	if err := validate(g.validation, name, uint64(len(payload)), mimeType); err != nil {
		return UploadRecord{}, err
	}

	h, err := g.stager.Stage(name, payload)
	if err != nil {
		return UploadRecord{}, fmt.Errorf("failed to stage payload: %w", err)
	}
	defer h.Release()

	root, err := merkle.Sum(payload)
	if err != nil {
		return UploadRecord{}, &HashingError{Err: err}
	}
	log = log.With(zap.Stringer("root", root))

	var txRef string
	err = retry.Do(ctx, g.uploadRetry, log, func(ctx context.Context) error {
		f, err := h.Open()
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to open staged payload: %w", err))
		}
		defer f.Close()

		ref, err := g.backend.Deposit(ctx, f, uint64(len(payload)), root)
		if err != nil {
			return err
		}
		txRef = ref
		return nil
	})
	if err != nil {
		var ee *retry.ExhaustedError
		if errors.As(err, &ee) {
			return UploadRecord{}, &UploadError{Attempts: ee.Attempts, Err: ee.Last}
		}
		return UploadRecord{}, err
	}

	record := UploadRecord{
		Root:        root,
		FileName:    name,
		MimeType:    mimeType,
		Size:        uint64(len(payload)),
		Transaction: txRef,
		UploadedAt:  time.Now().UTC(),
	}
	if err := g.store.AddUpload(record); err != nil {
		// the deposit already succeeded; losing the record only loses the
		// original file name and MIME type
		log.Warn("failed to record upload", zap.Error(err))
	}
	log.Info("uploaded payload", zap.String("tx", txRef))
	return record, nil
}

// Download retrieves the payload addressed by root, verifies it against the
// root, and restores its recorded metadata. name is used as the file name if
// no upload record exists. The staged destination is always released before
// Download returns.
func (g *Gateway) Download(ctx context.Context, root merkle.Root, name string) (DownloadResult, error) {
	log := g.log.Named("download").With(zap.Stringer("root", root))

	h, err := g.stager.Create(name)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("failed to stage destination: %w", err)
	}
	defer h.Release()

	err = retry.Do(ctx, g.downloadRetry, log, func(ctx context.Context) error {
		// recreate the destination so a failed attempt leaves no partial data
		f, err := os.Create(h.Path())
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to open destination: %w", err))
		}
		if err := g.backend.Retrieve(ctx, root, f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	if err != nil {
		var ee *retry.ExhaustedError
		if errors.As(err, &ee) {
			return DownloadResult{}, &DownloadError{Attempts: ee.Attempts, Err: ee.Last}
		}
		return DownloadResult{}, err
	}

	payload, err := os.ReadFile(h.Path())
	if err != nil {
		return DownloadResult{}, fmt.Errorf("failed to read destination: %w", err)
	}

	actual, err := merkle.Sum(payload)
	if err != nil {
		return DownloadResult{}, &HashingError{Err: err}
	} else if actual != root {
		log.Error("integrity violation", zap.Stringer("actual", actual))
		return DownloadResult{}, &IntegrityError{Expected: root, Actual: actual}
	}

	result := DownloadResult{
		Payload:  payload,
		FileName: name,
		MimeType: "application/octet-stream",
		Size:     uint64(len(payload)),
	}
	if record, err := g.store.Upload(root); err == nil {
		result.FileName = record.FileName
		result.MimeType = record.MimeType
	} else if !errors.Is(err, ErrNotFound) {
		log.Warn("failed to look up upload record", zap.Error(err))
	}
	if result.FileName == "" {
		result.FileName = root.String()
	}
	log.Info("downloaded payload", zap.Int("size", len(payload)))
	return result, nil
}

// ComputeRoot returns the root addressing the payload without touching the
// network.
func (g *Gateway) ComputeRoot(payload []byte) (merkle.Root, error) {
	root, err := merkle.Sum(payload)
	if err != nil {
		return merkle.Root{}, &HashingError{Err: err}
	}
	return root, nil
}

// NetworkStatus probes the backend once. There are no retries; an unhealthy
// network is a result, not an error.
func (g *Gateway) NetworkStatus(ctx context.Context) NetworkStatus {
	return g.backend.Status(ctx)
}

// AccountBalance reads the settlement account once, with no retries.
func (g *Gateway) AccountBalance(ctx context.Context) (Balance, error) {
	return g.backend.Balance(ctx)
}

// Uploads returns the recorded uploads.
func (g *Gateway) Uploads() ([]UploadRecord, error) {
	return g.store.Uploads()
}
