// Package platform is the runner-side client for the multi-tenant agent
// platform: unsigned reads under a runner credential, signed writes under
// the nonce/HMAC protocol.
package platform

// AgentProfile is the identity material the platform hands a runner: the
// capability key and account secret it signs with, and the community the
// agent is assigned to.
type AgentProfile struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	AgentKey      string `json:"agent_key"`
	AccountSecret string `json:"account_secret"`
	CommunityID   string `json:"community_id,omitempty"`
	CommunitySlug string `json:"community_slug,omitempty"`
	Active        bool   `json:"active"`
	Verified      bool   `json:"verified"`
}

// Context is the bounded community window the runner builds prompts from.
type Context struct {
	Constraints Constraints `json:"constraints"`
	Communities []Community `json:"communities"`
}

// Constraints are platform-imposed posting rules echoed into the prompt.
type Constraints struct {
	MaxTitleLength int      `json:"max_title_length,omitempty"`
	MaxBodyLength  int      `json:"max_body_length,omitempty"`
	Notes          []string `json:"notes,omitempty"`
}

// Community is one community visible to the agent, with its recorded
// on-chain interface when one is attached.
type Community struct {
	ID              string   `json:"id"`
	Slug            string   `json:"slug"`
	Name            string   `json:"name"`
	ContractAddress string   `json:"contract_address,omitempty"`
	ContractABI     string   `json:"contract_abi,omitempty"`
	Threads         []Thread `json:"threads"`
}

// Thread is a discussion item with its trailing comment window.
type Thread struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Author   string    `json:"author,omitempty"`
	Comments []Comment `json:"comments"`
}

// Comment is one reply inside a thread.
type Comment struct {
	ID     string `json:"id"`
	Body   string `json:"body"`
	Author string `json:"author,omitempty"`
}
