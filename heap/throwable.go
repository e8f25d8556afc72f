package heap

import (
	"errors"
	"fmt"
)

// ThrowableState is the payload of a throwable object.
type ThrowableState struct {
	Message    string
	HasMessage bool
	Cause      *Object
}

// Throwable is a managed exception travelling as a Go error.
type Throwable struct {
	Object *Object
}

func (t *Throwable) Error() string {
	name := t.Object.class.SourceName()
	if st, ok := t.Object.Payload.(*ThrowableState); ok && st.HasMessage {
		return name + ": " + st.Message
	}
	return name
}

// AsThrowable extracts a managed exception from err.
func AsThrowable(err error) (*Throwable, bool) {
	var t *Throwable
	if errors.As(err, &t) {
		return t, true
	}
	return nil, false
}

// NewThrowable allocates an instance of throwable class c carrying msg.
func (u *Universe) NewThrowable(c *Class, msg string) *Object {
	o := u.newInstance(c)
	o.Payload = &ThrowableState{Message: msg, HasMessage: true}
	return o
}

// Throw builds a Throwable error of class c with a formatted message.
func (u *Universe) Throw(c *Class, format string, args ...any) error {
	return &Throwable{Object: u.NewThrowable(c, fmt.Sprintf(format, args...))}
}

// IsThrowable reports whether o is an instance of java/lang/Throwable.
func (u *Universe) IsThrowable(o *Object) bool {
	return o != nil && o.class.IsSubclassOf(u.ThrowableClass)
}

// MessageOf returns the detail message of a throwable object, if any.
func MessageOf(o *Object) (string, bool) {
	if st, ok := o.Payload.(*ThrowableState); ok && st.HasMessage {
		return st.Message, true
	}
	return "", false
}
