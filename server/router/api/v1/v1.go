package v1

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	evalerrors "github.com/hrygo/verdict/internal/errors"
	"github.com/hrygo/verdict/internal/profile"
	"github.com/hrygo/verdict/plugin/ai/trace"
	"github.com/hrygo/verdict/server/service/evaluation"
)

// APIV1Service serves the recording and evaluation API.
type APIV1Service struct {
	Profile    *profile.Profile
	Recorders  *trace.Registry
	Evaluation *evaluation.Service
}

func NewAPIV1Service(profile *profile.Profile, recorders *trace.Registry, evaluationService *evaluation.Service) *APIV1Service {
	return &APIV1Service{
		Profile:    profile,
		Recorders:  recorders,
		Evaluation: evaluationService,
	}
}

// RegisterRoutes registers the v1 API under /api/v1.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo, middlewares ...echo.MiddlewareFunc) {
	g := e.Group("/api/v1", middlewares...)

	g.GET("/executions", s.ListExecutions)
	g.POST("/executions", s.BeginExecution)
	g.GET("/executions/active", s.ListActiveExecutions)
	g.POST("/executions/:id/events", s.RecordEvents)
	g.POST("/executions/:id/end", s.EndExecution)
	g.GET("/executions/:id/trace", s.GetTrace)
	g.GET("/executions/:id/evaluation", s.GetLatestEvaluation)
	g.GET("/executions/:id/evaluation/report", s.GetEvaluationReport)
	g.GET("/executions/:id/evaluations", s.ListEvaluations)

	g.POST("/evaluations", s.CreateEvaluation)

	g.GET("/system/metrics/overview", s.GetMetricsOverview)
	g.GET("/system/judge", s.GetJudgeSelection)
}

// errorResponse is the JSON body of a failed request.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// httpStatus maps an error code to an HTTP status.
func httpStatus(code evalerrors.ErrorCode) int {
	switch code {
	case evalerrors.ErrCodeValidation:
		return http.StatusBadRequest
	case evalerrors.ErrCodeNotFound:
		return http.StatusNotFound
	case evalerrors.ErrCodePartialResult:
		return http.StatusUnprocessableEntity
	case evalerrors.ErrCodeProviderUnavailable:
		return http.StatusServiceUnavailable
	case evalerrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case evalerrors.ErrCodeContextCanceled:
		// nginx's "client closed request"
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, err error) error {
	code := evalerrors.GetCodeFromError(err, evalerrors.ErrCodeInternal)
	status := httpStatus(code)
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request().Context(), "request failed", "path", c.Path(), "error", err)
		message = "internal error"
	}
	return c.JSON(status, errorResponse{Code: string(code), Message: message})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Code: string(evalerrors.ErrCodeValidation), Message: message})
}

func timeoutContext(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.Request().Context()), d)
}
