package v1

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	evalerrors "github.com/hrygo/verdict/internal/errors"
	"github.com/hrygo/verdict/plugin/ai/timeout"
	"github.com/hrygo/verdict/plugin/ai/trace"
	"github.com/hrygo/verdict/server/internal/observability"
	"github.com/hrygo/verdict/server/service/evaluation"
)

// CreateEvaluationRequest asks for an evaluation of an execution's output.
type CreateEvaluationRequest struct {
	ExecutionID string    `json:"execution_id"`
	Output      string    `json:"output"`
	References  []string  `json:"references"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Strict      bool      `json:"strict"`
	// Trace is used as is. Without it the stored trace of the execution is loaded, if any.
	Trace *trace.NormalizedTrace `json:"trace,omitempty"`
}

// CreateEvaluation runs the pipeline.
// POST /api/v1/evaluations
func (s *APIV1Service) CreateEvaluation(c echo.Context) error {
	var req CreateEvaluationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.ExecutionID == "" {
		return badRequest(c, "execution_id is required")
	}

	var reqCtx *observability.RequestContext
	if requestID := c.Response().Header().Get(echo.HeaderXRequestID); requestID != "" {
		reqCtx = observability.NewRequestContextWithID(slog.Default(), requestID, "evaluate", req.ExecutionID)
	} else {
		reqCtx = observability.NewRequestContext(slog.Default(), "evaluate", req.ExecutionID)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout.EvaluationTimeout)
	defer cancel()
	ctx = observability.WithRequestContext(ctx, reqCtx)

	t := req.Trace
	if t == nil {
		loaded, err := s.Recorders.LoadTrace(ctx, req.ExecutionID)
		switch {
		case err == nil:
			t = loaded
		case evalerrors.IsCode(err, evalerrors.ErrCodeNotFound), errors.Is(err, trace.ErrStoreNotConfigured):
			reqCtx.Debug("no stored trace, graph tier skipped")
		default:
			return writeError(c, err)
		}
	}

	report, err := s.Evaluation.Evaluate(ctx, &evaluation.Request{
		ExecutionID: req.ExecutionID,
		Output:      req.Output,
		References:  req.References,
		Trace:       t,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Strict:      req.Strict,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// GetLatestEvaluation returns the most recent report of an execution.
// GET /api/v1/executions/:id/evaluation
func (s *APIV1Service) GetLatestEvaluation(c echo.Context) error {
	report, err := s.Evaluation.Latest(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// ListEvaluations returns the stored reports of an execution.
// GET /api/v1/executions/:id/evaluations?limit=20
func (s *APIV1Service) ListEvaluations(c echo.Context) error {
	limit, err := parseLimit(c.QueryParam("limit"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	reports, err := s.Evaluation.List(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string][]*evaluation.Report{"evaluations": reports})
}

// GetEvaluationReport renders the most recent report of an execution as HTML.
// GET /api/v1/executions/:id/evaluation/report
func (s *APIV1Service) GetEvaluationReport(c echo.Context) error {
	report, err := s.Evaluation.Latest(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	html, err := evaluation.RenderHTML(report)
	if err != nil {
		return writeError(c, err)
	}
	return c.HTMLBlob(http.StatusOK, html)
}

// GetJudgeSelection reports the resolved judge provider.
// GET /api/v1/system/judge
func (s *APIV1Service) GetJudgeSelection(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Evaluation.JudgeSelection())
}
