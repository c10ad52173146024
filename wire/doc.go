// Package wire writes result streams to HTTP responses and message buses.
//
// PipeTextStream sends only the generated text. PipeDataStream sends every
// event as a line frame "<code>:<json>\n" in the data stream protocol:
//
//	0  text delta             "Hello"
//	b  tool call start        {"toolCallId","toolName"}
//	c  tool call args delta   {"toolCallId","argsTextDelta"}
//	9  tool call              {"toolCallId","toolName","args"}
//	a  tool result            {"toolCallId","result"}
//	2  custom data            [...]
//	8  message annotations    [...]
//	3  error                  "An error occurred."
//	f  step start             {"messageId"}
//	e  step finish            {"finishReason","usage","isContinued"}
//	d  finish                 {"finishReason","usage"}
//
// Error details are masked unless WithErrorMessage supplies a formatter.
package wire
