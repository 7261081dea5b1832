package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	models "MarketState/internal/domain/models"
	domrepo "MarketState/internal/domain/repository"
	"MarketState/internal/services/regime"
	"MarketState/internal/services/statevector"
	"MarketState/internal/usecase"
	xhttp "MarketState/pkg/http"
	xlogger "MarketState/pkg/logger"

	"github.com/labstack/echo/v4"
)

// StateService computes reports. Implemented by usecase.StateUseCase.
type StateService interface {
	State(ctx context.Context, p usecase.AnalyzeParams) (*models.Report, error)
	StateFromObservations(ctx context.Context, p usecase.AnalyzeParams, obs []models.Observation) (*models.Report, error)
}

// FitLimiter rations requests that may fit a regime model.
type FitLimiter interface {
	Allow(key string) (bool, time.Duration)
}

// StateEchoHandler serves the state and regime endpoints.
type StateEchoHandler struct {
	logger  *xlogger.Logger
	state   StateService
	limiter FitLimiter
}

var _ xhttp.Handler = (*StateEchoHandler)(nil)

// NewStateEchoHandler builds the handler. A nil limiter disables rate limiting.
func NewStateEchoHandler(logger *xlogger.Logger, state StateService, limiter FitLimiter) *StateEchoHandler {
	return &StateEchoHandler{logger: logger, state: state, limiter: limiter}
}

func (h *StateEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/state", h.State)
	g.POST("/state", h.StateFromObservations)
	g.GET("/regime", h.Regime)
}

// State handles GET /api/state.
func (h *StateEchoHandler) State(c echo.Context) error {
	req := &models.StateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if aerr := h.allowFit(c, req.Classifier == regime.ClassifierHMM); aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}

	p := usecase.AnalyzeParams{
		Symbol:           req.Symbol,
		N:                req.N,
		Timeframe:        domrepo.NormalizeTimeframe(req.TF),
		Classifier:       req.Classifier,
		PercentileWindow: req.Window,
		Hindsight:        req.Hindsight,
		IncludeVectors:   req.Vectors,
	}
	if req.From > 0 {
		p.From = time.Unix(req.From, 0).UTC()
	}
	if req.To > 0 {
		p.To = time.Unix(req.To, 0).UTC()
	}
	rep, err := h.state.State(c.Request().Context(), p)
	if err != nil {
		return h.fail(c, "state", req.Symbol, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.SuccessResponse(c, rep)
}

// StateFromObservations handles POST /api/state.
func (h *StateEchoHandler) StateFromObservations(c echo.Context) error {
	req := &models.ObservationsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if aerr := h.allowFit(c, req.Classifier == regime.ClassifierHMM); aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}

	rep, err := h.state.StateFromObservations(c.Request().Context(), usecase.AnalyzeParams{
		Symbol:           req.Symbol,
		Classifier:       req.Classifier,
		PercentileWindow: req.Window,
		Hindsight:        req.Hindsight,
		IncludeVectors:   true,
	}, req.Observations)
	if err != nil {
		return h.fail(c, "state from observations", req.Symbol, err)
	}
	return xhttp.SuccessResponse(c, rep)
}

// Regime handles GET /api/regime. It always uses the fitted model.
func (h *StateEchoHandler) Regime(c echo.Context) error {
	req := &models.RegimeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if aerr := h.allowFit(c, true); aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}

	rep, err := h.state.State(c.Request().Context(), usecase.AnalyzeParams{
		Symbol:     req.Symbol,
		N:          req.N,
		Timeframe:  domrepo.NormalizeTimeframe(req.TF),
		Classifier: regime.ClassifierHMM,
		Refit:      req.Refit,
	})
	if err != nil {
		return h.fail(c, "regime", req.Symbol, err)
	}
	if rep.Regime == nil {
		msg := rep.Errors["regime"]
		if msg == "" {
			msg = "regime unavailable"
		}
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_REGIME_UNAVAILABLE", "", msg, http.StatusUnprocessableEntity))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, &models.RegimeResponse{
		Symbol:    rep.Symbol,
		RunID:     rep.RunID,
		Timestamp: rep.Timestamp,
		Latest:    rep.Latest,
		Regime:    rep.Regime,
		Model:     rep.Model,
	})
}

// allowFit charges the client's fit budget when the request may fit a model.
func (h *StateEchoHandler) allowFit(c echo.Context, fits bool) *xhttp.AppError {
	if !fits || h.limiter == nil {
		return nil
	}
	ok, wait := h.limiter.Allow(c.RealIP())
	if ok {
		return nil
	}
	h.logger.Warn("fit rate limited", xlogger.String("client", c.RealIP()), xlogger.String("path", c.Path()))
	return xhttp.TooManyRequestsError("too many model fits, retry later", wait)
}

func (h *StateEchoHandler) fail(c echo.Context, op, symbol string, err error) error {
	aerr := mapError(err)
	if aerr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" usecase error", xlogger.String("symbol", symbol), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, aerr)
}

func mapError(err error) *xhttp.AppError {
	switch {
	case errors.Is(err, statevector.ErrInvalidObservation):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrNoObservation):
		return xhttp.NotFoundError("no observations for symbol").WithError(err)
	case errors.Is(err, usecase.ErrSuperseded):
		return xhttp.ConflictError("superseded by a newer request").WithError(err)
	case errors.Is(err, usecase.ErrNoSource):
		return xhttp.UnavailableError("observation source not configured").WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.GatewayTimeoutError("analysis timed out").WithError(err)
	case errors.Is(err, context.Canceled):
		return xhttp.UnavailableError("request cancelled").WithError(err)
	default:
		return xhttp.InternalError("analysis failed").WithError(err)
	}
}
