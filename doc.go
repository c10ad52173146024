/*
Package weft calls generative AI models through one provider independent
surface: text, structured objects, tool calls, embeddings, reranking and
media generation.

Models implement the contracts of the provider package. The openai
subpackage adapts the OpenAI API and the mock subpackage scripts responses
for tests.

# Streaming

StreamText and StreamObject start the provider call immediately and return a
result handle. The call runs once; its events are kept in an append-only log
and every view reads the log with its own cursor:

	res := weft.StreamText(ctx, model,
		weft.WithPrompt("Write a haiku about the sea"),
	)

	for chunk := range res.TextStream() {
		fmt.Print(chunk)
	}

	usage, err := res.TotalUsage(ctx)

Views can be read concurrently or one after another and each sees every
event from the start. The deferred accessors (Text, Usage, FinishReason,
Object and friends) block until the call ends and settle exactly once.

# Tools

Tools run while the model is still streaming. Their results are merged into
the same event stream, and the terminal Finish event is held back until
every started tool has settled:

	weather := tool.Must("weather",
		func(ctx context.Context, in struct{ City string }, _ tool.CallOptions) (string, error) {
			return "sunny", nil
		},
		tool.Description("Get the weather for a city"),
	)

	res := weft.StreamText(ctx, model,
		weft.WithPrompt("What's the weather in Paris?"),
		weft.WithTools(weather),
		weft.WithMaxSteps(3),
	)

Tool failures become error results that are fed back to the model; they do
not end the call.

# Structured output

StreamObject re-parses the accumulated JSON text on every delta and publishes
each distinct partial value. The final value is validated against the schema
reflected from the type parameter:

	type Recipe struct {
		Name        string   `json:"name"`
		Ingredients []string `json:"ingredients"`
	}

	res := weft.StreamObject[Recipe](ctx, model, weft.WithPrompt("A lasagna recipe"))
	for partial := range res.PartialObjectStream() {
		render(partial)
	}
	recipe, err := res.Object(ctx)

StreamArray, StreamEnum and StreamJSON select the other output modes.

# Errors

Provider failures end a stream with an Error event and reject every deferred
result. A final object that fails validation rejects only Object, with a
*NoObjectGeneratedError carrying the raw text. Cancelling the context ends
the stream with an *AbortError.
*/
package weft
