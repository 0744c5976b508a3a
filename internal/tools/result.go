package tools

import "github.com/yolodolo42/chatd/internal/llm"

// Kind tags a Result
type Kind int

const (
	// KindAborted means the call produced nothing and no turn is appended
	KindAborted Kind = iota
	// KindDelivered results are appended to the transcript and sent to the model
	KindDelivered
	// KindSuppressed results are shown and persisted but never sent to the model
	KindSuppressed
)

func (k Kind) String() string {
	switch k {
	case KindDelivered:
		return "delivered"
	case KindSuppressed:
		return "suppressed"
	default:
		return "aborted"
	}
}

// Result is the shaped outcome of one tool call. Only the constructors below
// create values, so a delivered result always carries a role.
type Result struct {
	kind Kind
	role llm.Role
	part llm.Part
}

// Delivered returns a result the caller must send back to the model
func Delivered(role llm.Role, part llm.Part) Result {
	return Result{kind: KindDelivered, role: role, part: part}
}

// Suppressed returns a fire-and-forget result
func Suppressed(role llm.Role, part llm.Part) Result {
	return Result{kind: KindSuppressed, role: role, part: part}
}

// Aborted returns the empty result
func Aborted() Result {
	return Result{kind: KindAborted}
}

func (r Result) Kind() Kind     { return r.kind }
func (r Result) SendBack() bool { return r.kind == KindDelivered }
func (r Result) Role() llm.Role { return r.role }

// Part returns the payload; ok is false for aborted results
func (r Result) Part() (llm.Part, bool) {
	if r.kind == KindAborted {
		return llm.Part{}, false
	}
	return r.part, true
}

// Content wraps the payload in a single-part turn
func (r Result) Content() (llm.Content, bool) {
	part, ok := r.Part()
	if !ok {
		return llm.Content{}, false
	}
	return llm.Content{Role: r.role, Parts: []llm.Part{part}}, true
}

// respond builds the Delivered function-response for the invoked tool name
func respond(name string, output any) Result {
	return Delivered(llm.RoleUser, llm.FunctionResponsePart(name, output))
}
