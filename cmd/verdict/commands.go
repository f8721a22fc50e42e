package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	evalerrors "github.com/hrygo/verdict/internal/errors"
	"github.com/hrygo/verdict/internal/profile"
	"github.com/hrygo/verdict/plugin/ai"
	"github.com/hrygo/verdict/plugin/ai/trace"
	apiv1 "github.com/hrygo/verdict/server/router/api/v1"
	"github.com/hrygo/verdict/server/service/evaluation"
	"github.com/hrygo/verdict/store"
)

const (
	formatYAML     = "yaml"
	formatJSON     = "json"
	formatMarkdown = "markdown"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate an agent output against references and the stored trace",
	Example: `  verdict evaluate --execution-id 7c1e... --output-file answer.txt \
    --reference "expected answer" --format markdown`,
	RunE: runEvaluate,
}

var executionsCmd = &cobra.Command{
	Use:   "executions",
	Short: "List recorded executions, most recent first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
			executions, err := trace.NewRecorder(st).ListExecutions(ctx, limit)
			if err != nil {
				return err
			}
			summaries := make([]apiv1.ExecutionSummary, 0, len(executions))
			for _, e := range executions {
				summaries = append(summaries, apiv1.NewExecutionSummary(e))
			}
			return writeOutput(cmd.OutOrStdout(), formatYAML, summaries)
		})
	},
}

var traceCmd = &cobra.Command{
	Use:   "trace [execution-id]",
	Short: "Print the normalized trace of an execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
			t, err := trace.NewRecorder(st).LoadTrace(ctx, args[0])
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), format, t)
		})
	},
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Record a sample three-agent execution and evaluate it",
	RunE:  runDemo,
}

func init() {
	evaluateCmd.Flags().String("execution-id", "", "execution to evaluate (required)")
	evaluateCmd.Flags().String("output", "", "agent output text")
	evaluateCmd.Flags().String("output-file", "", "read the agent output from a file")
	evaluateCmd.Flags().StringArray("reference", nil, "reference answer, may be repeated")
	evaluateCmd.Flags().String("start", "", "task start time (RFC3339)")
	evaluateCmd.Flags().String("end", "", "task end time (RFC3339)")
	evaluateCmd.Flags().Bool("strict", false, "fail unless every tier produces a result")
	evaluateCmd.Flags().String("format", formatYAML, "output format: yaml, json or markdown")
	_ = evaluateCmd.MarkFlagRequired("execution-id")

	executionsCmd.Flags().Int("limit", 20, "maximum number of executions")
	traceCmd.Flags().String("format", formatYAML, "output format: yaml or json")
	demoCmd.Flags().String("format", formatMarkdown, "output format: yaml, json or markdown")
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	executionID, _ := flags.GetString("execution-id")
	output, _ := flags.GetString("output")
	outputFile, _ := flags.GetString("output-file")
	references, _ := flags.GetStringArray("reference")
	strict, _ := flags.GetBool("strict")
	format, _ := flags.GetString("format")

	if outputFile != "" {
		body, err := os.ReadFile(outputFile)
		if err != nil {
			return errors.Wrap(err, "failed to read output file")
		}
		output = string(body)
	}
	start, err := parseTimeFlag(cmd, "start")
	if err != nil {
		return err
	}
	end, err := parseTimeFlag(cmd, "end")
	if err != nil {
		return err
	}

	return withPipeline(cmd.Context(), func(ctx context.Context, st *store.Store, svc *evaluation.Service) error {
		t, err := trace.NewRecorder(st).LoadTrace(ctx, executionID)
		if err != nil {
			if !evalerrors.IsCode(err, evalerrors.ErrCodeNotFound) {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "no stored trace for %s, graph analysis skipped\n", executionID)
			t = nil
		}

		report, err := svc.Evaluate(ctx, &evaluation.Request{
			ExecutionID: executionID,
			Output:      output,
			References:  references,
			Trace:       t,
			StartTime:   start,
			EndTime:     end,
			Strict:      strict,
		})
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), format, report)
	})
}

func runDemo(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")

	return withPipeline(cmd.Context(), func(ctx context.Context, st *store.Store, svc *evaluation.Service) error {
		executionID := uuid.NewString()
		start := time.Now()

		// 1. 记录一次三个 agent 协作的执行
		recorder := trace.NewRecorder(st)
		recorder.BeginExecution(executionID)
		recorder.RecordCoordination("planner", "plan", []string{"researcher", "writer"}, map[string]any{"goal": "summarize release notes"})
		recorder.RecordInteraction("planner", "researcher", trace.InteractionDelegation, map[string]any{"task": "collect changes"})
		recorder.RecordToolCall("researcher", "git_log", true, 120*time.Millisecond, nil)
		recorder.RecordToolCall("researcher", "search", false, 800*time.Millisecond, map[string]any{"error": "rate limited"})
		recorder.RecordToolCall("researcher", "search", true, 450*time.Millisecond, nil)
		recorder.RecordInteraction("researcher", "writer", "message", map[string]any{"items": 7})
		recorder.RecordToolCall("writer", "draft", true, 300*time.Millisecond, nil)
		recorder.RecordInteraction("writer", "planner", "review", nil)

		t, err := recorder.EndExecution(ctx)
		if err != nil {
			return err
		}

		// 2. 评估
		report, err := svc.Evaluate(ctx, &evaluation.Request{
			ExecutionID: executionID,
			Output:      "Release 1.4 adds trace retention, fixes judge failover and speeds up graph analysis.",
			References: []string{
				"Version 1.4 introduces trace retention, fixes the judge failover and makes graph analysis faster.",
			},
			Trace:     t,
			StartTime: start,
			EndTime:   time.Now(),
		})
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), format, report)
	})
}

func parseTimeFlag(cmd *cobra.Command, name string) (time.Time, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid --%s", name)
	}
	return t, nil
}

func withStore(ctx context.Context, fn func(context.Context, *store.Store) error) error {
	instanceProfile, err := loadProfile()
	if err != nil {
		return err
	}
	return withProfileStore(ctx, instanceProfile, fn)
}

func withProfileStore(ctx context.Context, instanceProfile *profile.Profile, fn func(context.Context, *store.Store) error) error {
	st, err := openStore(ctx, instanceProfile)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}

// withPipeline opens the store and builds the evaluation service from the profile and config file.
func withPipeline(ctx context.Context, fn func(context.Context, *store.Store, *evaluation.Service) error) error {
	instanceProfile, err := loadProfile()
	if err != nil {
		return err
	}
	config, err := loadEvaluationConfig()
	if err != nil {
		return err
	}
	aiConfig := ai.NewConfigFromProfile(instanceProfile)
	if err := aiConfig.Validate(); err != nil {
		return errors.Wrap(err, "invalid AI configuration")
	}
	return withProfileStore(ctx, instanceProfile, func(ctx context.Context, st *store.Store) error {
		return fn(ctx, st, evaluation.New(ctx, config, aiConfig, st))
	})
}

func writeReport(w io.Writer, format string, report *evaluation.Report) error {
	if format == formatMarkdown {
		_, err := w.Write(evaluation.RenderMarkdown(report))
		return err
	}
	return writeOutput(w, format, report)
}

// writeOutput encodes v as json or yaml. Yaml keys follow the json field names.
func writeOutput(w io.Writer, format string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	switch format {
	case formatJSON:
		var indented any
		if err := json.Unmarshal(body, &indented); err != nil {
			return err
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(indented)
	case formatYAML, "":
		var generic any
		if err := json.Unmarshal(body, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(generic)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
