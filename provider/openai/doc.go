/*
Package openai serves OpenAI chat and embedding models through the
provider contracts, using the official openai-go client.

	p := openai.New(option.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
	res := weft.StreamText(ctx, p.Chat(openai.ChatModelGPT4oMini), weft.WithPrompt("Hello"))

A Provider caches its models by id, so repeated lookups return the same
instance. It plugs into the registry package under the name "openai":

	registry.Register(openai.Name, p)
	model, err := registry.LanguageModel("openai:gpt-4o-mini")

# Streaming

Chat streams are requested with usage reporting enabled. Text arrives as
TextDelta events. Tool call arguments arrive as ToolCallDelta events keyed by
the call index and a ToolCall is emitted as soon as the accumulated arguments
form a complete JSON document. The stream ends with a single Finish event, or
with an Error wrapping a *provider.StreamError when the connection breaks.

# Errors

Failed requests surface as *provider.APICallError. Status 408, 409, 429 and
5xx are marked retryable. The client's own retries are disabled by default so
retry policy lives in one place; pass option.WithMaxRetries to override.

# Provider options

Entries under ProviderOptions["openai"] are merged into the request body,
for example {"user": "u-123"} or {"parallel_tool_calls": false}.
*/
package openai
