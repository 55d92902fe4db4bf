package observers

import (
	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"
)

// maxLogChars caps message previews written to debug logs.
const maxLogChars = 200

// NewAllCallbacks aggregates the model, prompt and tool observers into one callbacks.Handler.
func NewAllCallbacks() einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		Tool(newToolHandler()).
		ChatModel(newModelHandler()).
		Prompt(newPromptHandler()).
		Handler()
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= maxLogChars {
		return s
	}
	return string(r[:maxLogChars]) + "..."
}
