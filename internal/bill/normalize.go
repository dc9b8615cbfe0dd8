package bill

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// State is a step of the normalization pipeline
type State string

const (
	StateRaw          State = "raw"
	StateParsed       State = "parsed"
	StateValidated    State = "validated"
	StateDeduplicated State = "deduplicated"
	StateFinalized    State = "finalized"
)

// Options configures a Normalizer
type Options struct {
	// Tolerance defaults to DefaultTolerance when nil. A zero Tolerance
	// demands exact amounts.
	Tolerance *Tolerance
	Logger    *slog.Logger
}

// Normalizer turns free-form model output into a validated, de-duplicated
// Record. It holds no per-request state and is safe for concurrent use.
type Normalizer struct {
	schema    *jsonschema.Schema
	tolerance Tolerance
	logger    *slog.Logger
}

// NewNormalizer compiles the output schema and returns a Normalizer
func NewNormalizer(opts Options) (*Normalizer, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	tolerance := DefaultTolerance
	if opts.Tolerance != nil {
		tolerance = *opts.Tolerance
	}
	if tolerance.Absolute < 0 || tolerance.Relative < 0 {
		return nil, fmt.Errorf("tolerance must not be negative: %+v", tolerance)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Normalizer{
		schema:    schema,
		tolerance: tolerance,
		logger:    opts.Logger,
	}, nil
}

// Normalize runs raw -> parsed -> validated -> deduplicated -> finalized.
// Parse and schema failures are terminal and returned as *ParseError and
// *SchemaValidationError.
func (n *Normalizer) Normalize(text string) (*Record, error) {
	return n.NormalizeWithLogger(text, n.logger)
}

// NormalizeWithLogger is Normalize logging through logger, such as one
// carrying a request id
func (n *Normalizer) NormalizeWithLogger(text string, logger *slog.Logger) (*Record, error) {
	logger.Debug("bill.normalize.state", "state", StateRaw, "bytes", len(text))

	data, err := parseResponse(text)
	if err != nil {
		return nil, err
	}
	logger.Debug("bill.normalize.state", "state", StateParsed)

	rec, err := n.validate(data, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("bill.normalize.state", "state", StateValidated, "line_items", len(rec.LineItems))

	summaries := removeSummaryRows(rec, n.tolerance)
	duplicates := collapseDuplicates(rec)
	if summaries > 0 || duplicates > 0 {
		logger.Info("bill.normalize.deduplicated",
			"summary_rows_removed", summaries,
			"duplicate_rows_removed", duplicates,
			"line_items", len(rec.LineItems),
		)
	}
	logger.Debug("bill.normalize.state", "state", StateDeduplicated)

	reconcile(rec, n.tolerance)
	for _, w := range rec.Warnings {
		logger.Warn("bill.normalize.warning", "code", w.Code, "message", w.Message)
	}
	logger.Debug("bill.normalize.state", "state", StateFinalized, "item_count", rec.ItemCount)

	return rec, nil
}

func (n *Normalizer) validate(data map[string]any, logger *slog.Logger) (*Record, error) {
	c := &coercer{}
	shaped := c.record(data)
	if len(c.repairs) > 0 {
		logger.Debug("bill.normalize.repairs", "repairs", c.repairs)
	}
	if len(c.problems) > 0 {
		return nil, &SchemaValidationError{Problems: c.problems}
	}

	b, err := json.Marshal(shaped)
	if err != nil {
		return nil, fmt.Errorf("encoding coerced record: %w", err)
	}
	problems, err := schemaProblems(n.schema, b)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		return nil, &SchemaValidationError{Problems: problems}
	}

	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decoding coerced record: %w", err)
	}
	if rec.LineItems == nil {
		rec.LineItems = []LineItem{}
	}
	return &rec, nil
}
