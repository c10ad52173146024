/*
Package tool defines the tools a model can call during a generation.

A tool has a name, a description, an input schema and, optionally, a function
that executes it. The schema is sent to the model; when the model calls the
tool, the input is validated against the schema before the function runs.
Tools without an executor are advertised to the model, and their calls are
returned to the caller unanswered.

# Key Concepts

 1. Typed tools
    New reflects the input schema from a Go type and decodes validated input
    into that type before calling the function.

 2. Streaming tools
    NewStream wraps a function that yields Output values. Outputs marked
    Preliminary are progress updates; the last final output is the result.

 3. Dynamic tools
    Dynamic accepts any schema.Schema and passes the decoded JSON value to
    the function unchanged.

 4. Configuration Options
    Tools are configured using functional options:
    - Name customization
    - Description setting
    - Schema override

# Usage Examples

Typed tool:

	type weatherInput struct {
		City string `json:"city" jsonschema:"description=City to look up"`
	}

	weather := tool.Must("weather",
		func(ctx context.Context, in weatherInput, _ tool.CallOptions) (string, error) {
			return "sunny in " + in.City, nil
		},
		tool.Description("Get the current weather for a city"),
	)

Streaming tool:

	search, err := tool.NewStream("search",
		func(ctx context.Context, in searchInput, _ tool.CallOptions) iter.Seq2[tool.Output, error] {
			return func(yield func(tool.Output, error) bool) {
				if !yield(tool.Output{Value: "searching", Preliminary: true}, nil) {
					return
				}
				yield(tool.Output{Value: results(in.Query)}, nil)
			}
		},
	)

A Set groups definitions by name and describes them to a model:

	tools := tool.NewSet(weather, search)
	fts := tools.FunctionTools()
*/
package tool
