package topics

import "errors"

// The sampler distinguishes three failure classes. Callers test with
// errors.Is; everything the package returns wraps one of these.
var (
	// ErrInvalidConfig reports an unusable sampler configuration: a topic
	// count below one, non-positive priors, or an empty corpus or
	// vocabulary. Raised at construction, never during a run.
	ErrInvalidConfig = errors.New("invalid sampler configuration")

	// ErrIndexContract reports a forward index that broke its contract
	// mid-run: duplicate or out-of-range document ids, postings that do not
	// sum to the reported document size, or sizes that change between
	// sweeps. Fatal; the chain cannot continue on shifting ground.
	ErrIndexContract = errors.New("forward index contract violation")

	// ErrCountInvariant reports an attempt to decrement an absent or zero
	// count. This is an internal bug, not a caller mistake.
	ErrCountInvariant = errors.New("count invariant violation")

	// ErrSamplerFailed is returned by Run after any fatal failure; the
	// sampler's state is indeterminate and must be discarded.
	ErrSamplerFailed = errors.New("sampler is unusable after a failed run")
)
