package fault

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Kind is the closed set of fault classes. [KindUnknown] is the default arm
// for anything that could not be classified.
type Kind int

const (
	// KindUnknown is the catch-all class.
	KindUnknown Kind = iota
	// KindParse indicates malformed structured input.
	KindParse
	// KindResource indicates a missing or unreadable external resource.
	KindResource
	// KindSimulated indicates a fault deliberately injected for demonstration.
	KindSimulated
	// KindCustom indicates a user-defined fault, discriminated by Name.
	KindCustom
)

// String returns the class name, e.g. "ParseFault".
func (k Kind) String() string {
	switch k {
	case KindParse:
		return "ParseFault"
	case KindResource:
		return "ResourceFault"
	case KindSimulated:
		return "SimulatedFault"
	case KindCustom:
		return "CustomFault"
	default:
		return "Fault"
	}
}

// Reasons attached to resource faults.
const (
	ReasonNotFound   = "not found"
	ReasonPermission = "permission denied"
	ReasonUnreadable = "unreadable"
)

// Sentinels for use with [errors.Is]. A [*Fault] matches the sentinel of its
// Kind.
var (
	ErrParse     error = &Fault{kind: KindParse, name: KindParse.String(), Message: "parse fault", Position: -1}
	ErrResource  error = &Fault{kind: KindResource, name: KindResource.String(), Message: "resource fault", Position: -1}
	ErrSimulated error = &Fault{kind: KindSimulated, name: KindSimulated.String(), Message: "simulated fault", Position: -1}
	ErrCustom    error = &Fault{kind: KindCustom, name: KindCustom.String(), Message: "custom fault", Position: -1}
)

var sentinels = [...]error{ErrParse, ErrResource, ErrSimulated, ErrCustom}

// Fault is an error value with a message and a discriminant.
//
// The kind and name are fixed at construction. The remaining fields describe
// the failure and are populated depending on the kind.
type Fault struct {
	// Cause is the underlying error, if any.
	Cause error

	// Message is the human-readable description.
	Message string

	// Op and Resource identify the failed operation and its target, for
	// resource faults (e.g. "open", "non_existent_file.txt").
	Op       string
	Resource string
	// Reason is a short classification of a resource fault, e.g. "not found".
	Reason string

	name string

	// Position is the zero-based byte offset of a parse fault, or -1.
	Position int
	// Line and Column are one-based, or 0 when unknown.
	Line   int
	Column int

	kind Kind
}

// New returns a fault of the given kind. The name defaults to the kind's name.
func New(kind Kind, message string) *Fault {
	return &Fault{kind: kind, name: kind.String(), Message: message, Position: -1}
}

// Newf is [New] with a format string.
func Newf(kind Kind, format string, args ...any) *Fault {
	return New(kind, fmt.Sprintf(format, args...))
}

// Simulated returns a deliberately injected fault.
func Simulated(message string) *Fault {
	return New(KindSimulated, message)
}

// Custom returns a user-defined fault discriminated by name, e.g.
// Custom("ValidationError", "age must be positive").
func Custom(name, message string) *Fault {
	if name == "" {
		name = KindCustom.String()
	}
	return &Fault{kind: KindCustom, name: name, Message: message, Position: -1}
}

// Parse returns a parse fault at the given zero-based position (-1 if
// unknown).
func Parse(message string, position int) *Fault {
	f := New(KindParse, message)
	f.Position = position
	return f
}

// Resource returns a resource fault for op on resource, classifying cause.
func Resource(op, resource string, cause error) *Fault {
	reason := resourceReason(cause)
	return &Fault{
		kind:     KindResource,
		name:     KindResource.String(),
		Message:  fmt.Sprintf("%s %s: %s", op, resource, reason),
		Op:       op,
		Resource: resource,
		Reason:   reason,
		Cause:    cause,
		Position: -1,
	}
}

func resourceReason(err error) string {
	switch {
	case err == nil:
		return ReasonUnreadable
	case errors.Is(err, fs.ErrNotExist):
		return ReasonNotFound
	case errors.Is(err, fs.ErrPermission):
		return ReasonPermission
	default:
		return ReasonUnreadable
	}
}

// Kind returns the fault's class. A nil fault is [KindUnknown].
func (f *Fault) Kind() Kind {
	if f == nil {
		return KindUnknown
	}
	return f.kind
}

// Name returns the discriminant name, e.g. "ParseFault" or, for custom
// faults, the caller-provided name.
func (f *Fault) Name() string {
	if f == nil {
		return ""
	}
	if f.name == "" {
		return f.kind.String()
	}
	return f.name
}

// Error implements the error interface, formatted as "Name: Message".
func (f *Fault) Error() string {
	if f == nil {
		return "<nil>"
	}
	if f.Message == "" {
		return f.Name()
	}
	return f.Name() + ": " + f.Message
}

// Unwrap returns the cause.
func (f *Fault) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Cause
}

// Is reports whether target is the kind sentinel ([ErrParse] etc.) of f, or
// a [KindCustom] fault carrying the same explicit name. Other faults match
// only themselves.
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	if !ok || f == nil || t == nil {
		return false
	}
	if f.kind != t.kind {
		return false
	}
	for _, s := range sentinels {
		if target == s {
			return true
		}
	}
	return f.kind == KindCustom && f.name != KindCustom.String() && f.name == t.name
}

// Format supports %+v, which includes the position or resource details.
func (f *Fault) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			var b strings.Builder
			b.WriteString(f.Error())
			if f != nil && f.Position >= 0 {
				fmt.Fprintf(&b, " [position=%d line=%d column=%d]", f.Position, f.Line, f.Column)
			}
			if f != nil && f.Resource != "" {
				fmt.Fprintf(&b, " [op=%s resource=%s reason=%s]", f.Op, f.Resource, f.Reason)
			}
			if f != nil && f.Cause != nil {
				fmt.Fprintf(&b, ": %+v", f.Cause)
			}
			_, _ = s.Write([]byte(b.String()))
			return
		}
		fallthrough
	case 's':
		_, _ = s.Write([]byte(f.Error()))
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", f.Error())
	}
}

// Wrap converts err into a fault. A *Fault anywhere in the chain is returned
// as-is, preserving identity. Nil returns nil.
func Wrap(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return Resource(pathErr.Op, pathErr.Path, err)
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return Resource("access", "", err)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		p := Parse(syntaxErr.Error(), int(syntaxErr.Offset)-1)
		p.Cause = err
		return p
	}
	return &Fault{kind: KindUnknown, name: KindUnknown.String(), Message: err.Error(), Cause: err, Position: -1}
}

// Classify returns the kind of err, see [Wrap].
func Classify(err error) Kind {
	return Wrap(err).Kind()
}

// FromPanic converts a recovered panic value into a fault.
func FromPanic(r any) *Fault {
	if err, ok := r.(error); ok {
		return Wrap(err)
	}
	return &Fault{kind: KindUnknown, name: KindUnknown.String(), Message: fmt.Sprint(r), Position: -1}
}
