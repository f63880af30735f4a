package schema

// Operation identifies the CRUD context a document is processed in.
// Field policies (writability, requiredness, validator applicability)
// are always evaluated against the active operation; the operation is
// passed explicitly through every call and never stored on a schema.
type Operation int

const (
	// OpRead is the default context: encoding a resource for a response.
	OpRead Operation = iota
	// OpCreate is the context of POST /{type}.
	OpCreate
	// OpUpdate is the context of PATCH /{type}/{id} and of all
	// relationship mutations.
	OpUpdate
	// OpDelete is the context of DELETE /{type}/{id}.
	OpDelete
)

// String returns the lowercase name of the operation.
func (o Operation) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Policy describes in which CRUD contexts a per-field rule applies.
// It is used for three independent concerns: when a field is writable,
// when its wire member is required, and when a registered validator
// runs.
type Policy int

const (
	// Never applies in no context.
	Never Policy = iota
	// OnCreate applies while a resource is created.
	OnCreate
	// OnUpdate applies while a resource or relationship is updated.
	OnUpdate
	// Always applies on both create and update.
	Always
)

// String returns the lowercase name of the policy.
func (p Policy) String() string {
	switch p {
	case Never:
		return "never"
	case OnCreate:
		return "on-create"
	case OnUpdate:
		return "on-update"
	case Always:
		return "always"
	default:
		return "unknown"
	}
}

// Applies reports whether the policy is in effect under op.
func (p Policy) Applies(op Operation) bool {
	switch p {
	case Always:
		return op == OpCreate || op == OpUpdate
	case OnCreate:
		return op == OpCreate
	case OnUpdate:
		return op == OpUpdate
	default:
		return false
	}
}

// Phase distinguishes the two validation passes of the decode
// pipeline.
type Phase int

const (
	// PreDecode validators run on the raw wire value, before Decode.
	PreDecode Phase = iota
	// PostDecode validators run on the decoded value, after Decode.
	PostDecode
)

// String returns the name of the phase.
func (p Phase) String() string {
	if p == PreDecode {
		return "pre-decode"
	}
	return "post-decode"
}
