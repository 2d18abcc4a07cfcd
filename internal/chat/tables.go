package chat

import "github.com/linkerlin/chatauto.go/internal/host"

// Host command tables. Each is tried in order until one command succeeds;
// hosts differ in which of these they register.
var (
	NewChatCommands = []host.Invocation{
		{Command: "workbench.action.chat.newChat"},
		{Command: "workbench.action.openChat"},
		{Command: "workbench.action.chat.open"},
	}

	OpenChatCommands = []host.Invocation{
		{Command: "workbench.action.chat.open"},
		{Command: "workbench.action.openChat"},
	}

	SubmitCommands = []host.Invocation{
		{Command: "workbench.action.chat.submit"},
		{Command: "chat.action.submit"},
	}
)

// TypeCommand inserts text at the focused input.
const TypeCommand = "type"

// DiscoverPatterns select the chat related commands worth listing when
// probing an unfamiliar host.
var DiscoverPatterns = []string{
	"chat", "agent", "copilot", "session", "continue", "allow", "accept", "approve",
}

func typeInvocation(text string) host.Invocation {
	return host.Invocation{Command: TypeCommand, Args: []any{map[string]any{"text": text}}}
}
