package shared

// Result is the uniform outcome returned by posting operations. Errors never
// cross this boundary raw: a failed Result carries its Kind and a message, and
// Err keeps the original cause for logging.
type Result[T any] struct {
	Value   T       `json:"value"`
	Kind    Kind    `json:"kind,omitempty"`
	Message string  `json:"message,omitempty"`
	Events  []Event `json:"events,omitempty"`
	Err     error   `json:"-"`
}

// OK reports whether the operation succeeded.
func (r Result[T]) OK() bool { return r.Kind == "" }

// Success wraps a committed value and the events raised while producing it.
func Success[T any](value T, events []Event) Result[T] {
	return Result[T]{Value: value, Events: events}
}

// Failure converts err into a failed Result.
func Failure[T any](err error) Result[T] {
	kind := KindOf(err)
	if kind == "" {
		kind = KindInfrastructure
	}
	return Result[T]{Kind: kind, Message: err.Error(), Err: err}
}
