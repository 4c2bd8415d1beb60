package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strings"
	"time"
	"unicode"

	"github.com/flowguard/flowguard/internal/logger"
	"github.com/flowguard/flowguard/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPredictTimeout = 30 * time.Second
	DefaultTrainTimeout   = 30 * time.Minute

	maxCapturedOutput = 4096
)

var (
	errNoPayload        = errors.New("no JSON object at end of output")
	errMalformedPayload = errors.New("trailing JSON object is malformed")
)

// ProcessScorer runs the engine as a child process per call:
//
//	<command> <args...> predict <modelPath> <featuresJSON>
//	<command> <args...> train <datasetPath> <algorithm> <outputPath>
//
// The engine may print diagnostics; only the final JSON object on stdout is read.
type ProcessScorer struct {
	Command        string
	Args           []string
	PredictTimeout time.Duration
	TrainTimeout   time.Duration
}

func NewProcessScorer(command string, args ...string) *ProcessScorer {
	return &ProcessScorer{
		Command:        command,
		Args:           args,
		PredictTimeout: DefaultPredictTimeout,
		TrainTimeout:   DefaultTrainTimeout,
	}
}

type predictPayload struct {
	Prediction  *int     `json:"prediction"`
	Probability *float64 `json:"probability"`
	Timestamp   string   `json:"timestamp"`
}

func (p *ProcessScorer) Predict(ctx context.Context, modelPath string, features models.FeatureMap) (Result, error) {
	arg, err := json.Marshal(features)
	if err != nil {
		return Result{}, fmt.Errorf("inference predict: encode features: %w", err)
	}
	out, err := p.run(ctx, "predict", p.PredictTimeout, modelPath, string(arg))
	if err != nil {
		return Result{}, err
	}
	return decodePrediction(out)
}

func (p *ProcessScorer) BatchPredict(ctx context.Context, modelPath string, batch []models.FeatureMap) ([]Result, error) {
	return predictEach(ctx, p.Predict, modelPath, batch), nil
}

func (p *ProcessScorer) Train(ctx context.Context, req TrainRequest) (*TrainingOutcome, error) {
	out, err := p.run(ctx, "train", p.TrainTimeout, req.DatasetPath, req.Algorithm, req.OutputPath)
	if err != nil {
		return nil, err
	}
	payload, err := trailingJSON(out)
	if err != nil {
		return nil, &ProtocolError{Op: "train", Output: clip(out), Err: err}
	}
	var outcome TrainingOutcome
	if err := json.Unmarshal(payload, &outcome); err != nil {
		return nil, &ProtocolError{Op: "train", Output: clip(out), Err: err}
	}
	return &outcome, nil
}

func (p *ProcessScorer) run(ctx context.Context, op string, timeout time.Duration, args ...string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	argv := make([]string, 0, len(p.Args)+1+len(args))
	argv = append(argv, p.Args...)
	argv = append(argv, op)
	argv = append(argv, args...)

	cmd := exec.CommandContext(ctx, p.Command, argv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Don't hang on grandchildren that inherited the pipes after the engine is killed.
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	logger.Log().WithFields(logrus.Fields{
		"op":       op,
		"duration": time.Since(start).String(),
	}).Debug("inference engine finished")

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, &TimeoutError{Op: op, After: timeout}
			}
			return nil, fmt.Errorf("inference %s: %w", op, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ProcessError{
				Op:       op,
				ExitCode: exitErr.ExitCode(),
				Stderr:   clip(bytes.TrimSpace(stderr.Bytes())),
				Err:      err,
			}
		}
		return nil, &ProcessError{Op: op, ExitCode: -1, Err: err}
	}
	return stdout.Bytes(), nil
}

func decodePrediction(out []byte) (Result, error) {
	payload, err := trailingJSON(out)
	if err != nil {
		return Result{}, &ProtocolError{Op: "predict", Output: clip(out), Err: err}
	}
	var wire predictPayload
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Result{}, &ProtocolError{Op: "predict", Output: clip(out), Err: err}
	}
	if wire.Prediction == nil || wire.Probability == nil {
		return Result{}, &ProtocolError{Op: "predict", Output: clip(out), Err: errors.New("prediction and probability are required")}
	}

	var verdict Verdict
	switch *wire.Prediction {
	case 0:
		verdict = VerdictNormal
	case 1:
		verdict = VerdictAnomaly
	default:
		return Result{}, &ProtocolError{Op: "predict", Output: clip(out), Err: fmt.Errorf("prediction must be 0 or 1, got %d", *wire.Prediction)}
	}
	prob := *wire.Probability
	if math.IsNaN(prob) || prob < 0 || prob > 1 {
		return Result{}, &ProtocolError{Op: "predict", Output: clip(out), Err: fmt.Errorf("probability out of range: %v", prob)}
	}

	return Result{
		Prediction:  verdict,
		Probability: prob,
		Timestamp:   parseTimestamp(wire.Timestamp),
	}, nil
}

// trailingJSON returns the last complete JSON object at the end of out.
// Candidates are tried from the leftmost '{' so the longest valid suffix wins.
func trailingJSON(out []byte) ([]byte, error) {
	trimmed := bytes.TrimRightFunc(out, unicode.IsSpace)
	if len(trimmed) == 0 || trimmed[len(trimmed)-1] != '}' {
		return nil, errNoPayload
	}
	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] != '{' {
			continue
		}
		if candidate := trimmed[i:]; json.Valid(candidate) {
			return candidate, nil
		}
	}
	return nil, errMalformedPayload
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp accepts RFC 3339 and naive ISO-8601 stamps; anything else becomes now.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Now()
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Now()
}

func clip(b []byte) string {
	if len(b) > maxCapturedOutput {
		b = b[len(b)-maxCapturedOutput:]
	}
	return string(b)
}
