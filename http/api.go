// Package http serves the storaged API: uploads, downloads, hash-only
// calculation, upload records, network status and the settlement balance.
package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/aloksahay/fairbnb-sub000/api"
	"github.com/aloksahay/fairbnb-sub000/build"
	"github.com/aloksahay/fairbnb-sub000/config"
	"github.com/aloksahay/fairbnb-sub000/gateway"
	"github.com/aloksahay/fairbnb-sub000/merkle"
	"go.sia.tech/jape"
	"go.uber.org/zap"
)

type (
	apiServer struct {
		gw  *gateway.Gateway
		log *zap.Logger

		maxSize uint64
	}
)

// writeError maps the gateway's error taxonomy onto HTTP statuses: invalid
// input is 400, a root the network has never seen is 404, a corrupt payload
// is 422, exhausted retries are 503, and everything else is a bad gateway.
func (as *apiServer) writeError(jc jape.Context, err error) {
	var ve *gateway.ValidationError
	var he *gateway.HashingError
	var ie *gateway.IntegrityError
	var ue *gateway.UploadError
	var de *gateway.DownloadError

	var status int
	switch {
	case errors.As(err, &ve), errors.As(err, &he):
		status = http.StatusBadRequest
	case errors.Is(err, gateway.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &ie):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &ue), errors.As(err, &de):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusBadGateway
	}
	if status >= 500 {
		as.log.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	jc.Error(err, status)
}

func (as *apiServer) handleFilesUpload(jc jape.Context) {
	ctx := jc.Request.Context()

	var name, mimeType string
	if err := jc.DecodeForm("name", &name); err != nil {
		return
	} else if err := jc.DecodeForm("type", &mimeType); err != nil {
		return
	}
	if mimeType == "" {
		mimeType = jc.Request.Header.Get("Content-Type")
	}

	body := jc.Request.Body
	defer body.Close()

	// read at most one byte over the limit so an oversize body is rejected
	// by validation without being buffered whole
	r := io.Reader(body)
	if as.maxSize > 0 {
		r = io.LimitReader(body, int64(as.maxSize)+1)
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		jc.Error(fmt.Errorf("failed to read payload: %w", err), http.StatusBadRequest)
		return
	}

	record, err := as.gw.Upload(ctx, payload, name, mimeType)
	if err != nil {
		as.writeError(jc, err)
		return
	}
	jc.Encode(record)
}

func (as *apiServer) handleFilesDownload(jc jape.Context) {
	ctx := jc.Request.Context()

	var rootStr string
	if err := jc.DecodeParam("root", &rootStr); err != nil {
		return
	}
	root, err := merkle.ParseRoot(rootStr)
	if err != nil {
		jc.Error(err, http.StatusBadRequest)
		return
	}

	var name string
	if err := jc.DecodeForm("name", &name); err != nil {
		return
	}

	result, err := as.gw.Download(ctx, root, name)
	if err != nil {
		as.writeError(jc, err)
		return
	}

	jc.ResponseWriter.Header().Set("Content-Type", result.MimeType)
	jc.ResponseWriter.Header().Set("Content-Length", strconv.FormatUint(result.Size, 10))
	jc.ResponseWriter.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", result.FileName))
	if _, err := jc.ResponseWriter.Write(result.Payload); err != nil {
		as.log.Debug("failed to write payload", zap.Error(err))
	}
}

func (as *apiServer) handleFilesHash(jc jape.Context) {
	body := jc.Request.Body
	defer body.Close()

	payload, err := io.ReadAll(body)
	if err != nil {
		jc.Error(fmt.Errorf("failed to read payload: %w", err), http.StatusBadRequest)
		return
	}

	root, err := as.gw.ComputeRoot(payload)
	if err != nil {
		as.writeError(jc, err)
		return
	}
	jc.Encode(api.HashResp{
		Root: root,
		Size: uint64(len(payload)),
	})
}

func (as *apiServer) handleFiles(jc jape.Context) {
	records, err := as.gw.Uploads()
	if err != nil {
		as.writeError(jc, err)
		return
	}
	jc.Encode(records)
}

func (as *apiServer) handleStatus(jc jape.Context) {
	jc.Encode(api.StatusResp{
		Network:   as.gw.NetworkStatus(jc.Request.Context()),
		Version:   build.Version(),
		Commit:    build.Commit(),
		BuildTime: build.Time(),
	})
}

func (as *apiServer) handleBalance(jc jape.Context) {
	balance, err := as.gw.AccountBalance(jc.Request.Context())
	if err != nil {
		as.writeError(jc, err)
		return
	}
	jc.Encode(api.BalanceResp{
		Address: balance.Address,
		Wei:     balance.Wei.String(),
		Display: balance.Display,
	})
}

// NewAPIHandler returns a new http.Handler that handles requests to the api
func NewAPIHandler(gw *gateway.Gateway, cfg config.Config, log *zap.Logger) http.Handler {
	s := &apiServer{
		gw:  gw,
		log: log,

		maxSize: cfg.Validation.MaxSize,
	}
	return jape.Mux(map[string]jape.Handler{
		"GET /api/files":       s.handleFiles,
		"POST /api/files":      s.handleFilesUpload,
		"GET /api/files/:root": s.handleFilesDownload,
		"POST /api/files/hash": s.handleFilesHash,
		"GET /api/status":      s.handleStatus,
		"GET /api/balance":     s.handleBalance,
	})
}
