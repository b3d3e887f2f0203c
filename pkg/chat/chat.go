package chat

const (
	RoleUser   = "user"
	RoleAgent  = "assistant"
	RoleSystem = "system"
)

// Message is a single message in a generation request. The role/content
// shape follows the common chat-completion wire format; Images carries
// optional inline reference images for providers with vision support and is
// not serialized directly.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  [][]byte `json:"-"`
}

// Response is the plain-text reply from a generation call.
type Response struct {
	Message string `json:"message,omitempty"`
	Model   string `json:"model,omitempty"`
}
