// Package provider defines the contract between weft and model providers.
//
// Every model kind (language, embedding, image, speech, transcription,
// reranking and video) is a small interface tagged with a specification
// version. Callers use Check to dispatch on that tag before driving a model,
// so a provider built against an older contract is rejected up front instead
// of misbehaving mid-call.
//
// Streaming calls produce StreamEvent values on a channel:
//
//	resp, err := model.Stream(ctx, provider.CallOptions{
//	    Prompt: []provider.Message{provider.UserMessage("hello")},
//	})
//	if err != nil {
//	    return err
//	}
//	for event := range resp.Stream {
//	    switch e := event.(type) {
//	    case provider.TextDelta:
//	        fmt.Print(e.Text)
//	    case provider.Finish:
//	        fmt.Println(e.FinishReason, e.Usage.TotalTokens)
//	    case provider.Error:
//	        return e.Err
//	    }
//	}
//
// A stream holds at most one Finish, and it is always the last event. An
// Error may appear instead of Finish and terminates the stream.
//
// Events carry their own JSON encoding with a "type" discriminator, so they
// can cross process boundaries; EventToJSON and EventFromJSON round trip any
// event.
//
// The package also hosts the error taxonomy shared by the whole module:
// provider failures (APICallError, StreamError, AbortError, RetryError),
// tool failures (NoSuchToolError, InvalidToolInputError) and structured
// output failures (NoObjectGeneratedError).
package provider
