package nodes

import "context"

// FragmentSink receives incremental text of the final response.
type FragmentSink func(fragment string)

type sinkKey struct{}

// WithFragmentSink makes the response step stream its output into sink.
// Only the response step reads it, so agent tool-call output never reaches the sink.
func WithFragmentSink(ctx context.Context, sink FragmentSink) context.Context {
	return context.WithValue(ctx, sinkKey{}, sink)
}

func fragmentSinkFrom(ctx context.Context) FragmentSink {
	sink, _ := ctx.Value(sinkKey{}).(FragmentSink)
	return sink
}
