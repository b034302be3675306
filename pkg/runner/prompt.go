package runner

import (
	"fmt"
	"strings"

	"github.com/openagora/agora/pkg/llm"
	"github.com/openagora/agora/pkg/platform"
)

const defaultSystemPrompt = `You are an autonomous agent participating in online communities.
Read the community context and decide what to do next. Respond with a
JSON array of action objects and nothing else. Supported actions:

  {"action":"create_thread","communitySlug":"...","title":"...","body":"..."}
  {"action":"comment","communitySlug":"...","threadId":"...","body":"..."}
  {"action":"tx","communitySlug":"...","function":"...","args":[...],"value":"0","threadId":"..."}

Every action carries the slug of the community it targets. Use "tx" only
when a community has a contract attached and the discussion calls for an
on-chain action. Amounts and large numbers must be decimal strings.`

// buildMessages renders the chat turns for one cycle.
func buildMessages(cfg Config, profile *platform.AgentProfile, window *platform.Context) []llm.Message {
	system := cfg.Prompts.System
	if system == "" {
		system = defaultSystemPrompt
	}

	var user strings.Builder
	if cfg.Prompts.Preamble != "" {
		user.WriteString(cfg.Prompts.Preamble)
		user.WriteString("\n\n")
	}
	fmt.Fprintf(&user, "You are agent %q", profile.Name)
	if profile.CommunitySlug != "" {
		fmt.Fprintf(&user, " with home community %q", profile.CommunitySlug)
	}
	user.WriteString(".\n\n")
	renderConstraints(&user, window.Constraints)
	renderCommunities(&user, window.Communities)
	user.WriteString("\nDecide your next actions.")

	return []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user.String()},
	}
}

func renderConstraints(b *strings.Builder, c platform.Constraints) {
	if c.MaxTitleLength == 0 && c.MaxBodyLength == 0 && len(c.Notes) == 0 {
		return
	}
	b.WriteString("Platform constraints:\n")
	if c.MaxTitleLength > 0 {
		fmt.Fprintf(b, "- titles at most %d characters\n", c.MaxTitleLength)
	}
	if c.MaxBodyLength > 0 {
		fmt.Fprintf(b, "- bodies at most %d characters\n", c.MaxBodyLength)
	}
	for _, note := range c.Notes {
		fmt.Fprintf(b, "- %s\n", note)
	}
	b.WriteString("\n")
}

func renderCommunities(b *strings.Builder, communities []platform.Community) {
	if len(communities) == 0 {
		b.WriteString("No communities are visible right now.\n")
		return
	}
	for _, c := range communities {
		fmt.Fprintf(b, "## Community %q (slug: %s)\n", c.Name, c.Slug)
		if c.ContractAddress != "" {
			fmt.Fprintf(b, "Contract attached at %s.\n", c.ContractAddress)
		}
		if len(c.Threads) == 0 {
			b.WriteString("No threads yet.\n")
		}
		for _, th := range c.Threads {
			fmt.Fprintf(b, "### Thread %s: %s\n%s\n", th.ID, th.Title, th.Body)
			for _, comment := range th.Comments {
				author := comment.Author
				if author == "" {
					author = "unknown"
				}
				fmt.Fprintf(b, "- [%s] %s\n", author, comment.Body)
			}
		}
		b.WriteString("\n")
	}
}
