package search

import (
	"time"

	"github.com/akhaire21/marktools/internal/catalog"
	"github.com/akhaire21/marktools/internal/decompose"
	"github.com/akhaire21/marktools/internal/embed"
	"github.com/akhaire21/marktools/internal/index"
	"github.com/akhaire21/marktools/internal/logging"
	"github.com/akhaire21/marktools/internal/scorer"
)

const (
	// DefaultScoreThresholdGood is the relevance score at which a direct
	// match is accepted without decomposition.
	DefaultScoreThresholdGood = 0.85
	// DefaultImprovementEpsilon is the margin a composite plan must beat the
	// direct match by before it is preferred.
	DefaultImprovementEpsilon = 0.1
	// DefaultMinAcceptableScore is the quality gate used when a caller
	// requires a close match.
	DefaultMinAcceptableScore = 0.6
	// DefaultMaxDepth bounds recursive refinement.
	DefaultMaxDepth = 2
	// DefaultMaxDepthLimit caps the depth a caller may request. Every level
	// costs a decomposition and a round of scoring calls.
	DefaultMaxDepthLimit = 5
	// DefaultTopK is the number of broad search candidates retrieved.
	DefaultTopK = 5
	// DefaultSubtaskTopK is the number of candidates scored per subtask.
	DefaultSubtaskTopK = 3
)

// RequiredConfig contains the dependencies an Orchestrator cannot run
// without. All fields are required.
type RequiredConfig struct {
	// Catalog resolves index hits to workflows.
	Catalog *catalog.Catalog
	// Index is the hybrid workflow and node index built from Catalog.
	Index index.Index
	// Scorer judges task to workflow relevance.
	Scorer scorer.Scorer
	// Decomposer splits weak matches into subtasks.
	Decomposer decompose.Decomposer
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*options)

type options struct {
	embedder      embed.Embedder
	logger        logging.Logger
	goodThreshold float64
	epsilon       float64
	minAcceptable float64
	maxDepth      int
	maxDepthLimit int
	topK          int
	subtaskTopK   int
	minSubtasks   int
	maxSubtasks   int
	parallel      bool
	timeout       time.Duration
}

func defaultOptions() options {
	return options{
		goodThreshold: DefaultScoreThresholdGood,
		epsilon:       DefaultImprovementEpsilon,
		minAcceptable: DefaultMinAcceptableScore,
		maxDepth:      DefaultMaxDepth,
		maxDepthLimit: DefaultMaxDepthLimit,
		topK:          DefaultTopK,
		subtaskTopK:   DefaultSubtaskTopK,
		minSubtasks:   decompose.DefaultMinSubtasks,
		maxSubtasks:   decompose.DefaultMaxSubtasks,
		parallel:      true,
	}
}

// WithEmbedder sets the query embedder. Without one, searches are
// keyword-only.
func WithEmbedder(e embed.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithLogger sets the debug logger.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithScoreThresholdGood sets the early-accept threshold.
func WithScoreThresholdGood(s float64) Option {
	return func(o *options) {
		if s > 0 {
			o.goodThreshold = s
		}
	}
}

// WithImprovementEpsilon sets the composite-over-direct margin.
func WithImprovementEpsilon(eps float64) Option {
	return func(o *options) {
		if eps >= 0 {
			o.epsilon = eps
		}
	}
}

// WithMinAcceptableScore sets the quality gate threshold.
func WithMinAcceptableScore(s float64) Option {
	return func(o *options) {
		if s >= 0 {
			o.minAcceptable = s
		}
	}
}

// WithMaxDepth sets the default recursion ceiling.
func WithMaxDepth(d int) Option {
	return func(o *options) {
		if d >= 0 {
			o.maxDepth = d
		}
	}
}

// WithMaxDepthLimit caps every requested depth, including the default.
func WithMaxDepthLimit(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxDepthLimit = n
		}
	}
}

// WithTopK sets the number of broad search candidates.
func WithTopK(k int) Option {
	return func(o *options) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithSubtaskTopK sets the number of candidates scored per subtask.
func WithSubtaskTopK(k int) Option {
	return func(o *options) {
		if k > 0 {
			o.subtaskTopK = k
		}
	}
}

// WithSubtaskBounds sets the expected decomposition size. Decompositions
// outside the bounds are logged, and those above max are truncated.
func WithSubtaskBounds(min, max int) Option {
	return func(o *options) {
		if min > 0 && max >= min {
			o.minSubtasks = min
			o.maxSubtasks = max
		}
	}
}

// WithParallel toggles concurrent per-subtask searches.
func WithParallel(b bool) Option {
	return func(o *options) { o.parallel = b }
}

// WithTimeout bounds the wall-clock time of a whole Search call.
// Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}
