package native

import (
	"bytes"
	"io"
	"runtime"
	"strings"
	"testing"

	"github.com/chazu/boundary/config"
	"github.com/chazu/boundary/handles"
	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/linker"
	"github.com/chazu/boundary/word"
)

// fixture is a VM with the test goroutine attached as thread "main" and a
// small class hierarchy to call into.
type fixture struct {
	t    *testing.T
	u    *heap.Universe
	vm   *VM
	env  *Env
	calc *heap.Class
	sub  *heap.Class
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, config.Default())
}

func newFixtureWith(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	return newLinkedFixture(t, cfg, nil)
}

// newLinkedFixture is newFixtureWith for a VM that loads libraries through
// l.
func newLinkedFixture(t *testing.T, cfg *config.Config, l *linker.Linker) *fixture {
	t.Helper()
	u := heap.NewUniverse()
	vm := newVM(t, cfg, u, l, nil)
	vm.SetDiagnosticOutput(io.Discard)
	env, rc := vm.AttachCurrentThread("main")
	if rc != OK {
		t.Fatalf("AttachCurrentThread = %d", rc)
	}
	t.Cleanup(func() {
		if rc := vm.DetachCurrentThread(env); rc != OK {
			t.Errorf("DetachCurrentThread = %d", rc)
		}
	})
	f := &fixture{t: t, u: u, vm: vm, env: env}
	f.calc, f.sub = defineCalc(u)
	return f
}

// newVM builds a VM that is closed when the test ends.
func newVM(t *testing.T, cfg *config.Config, u *heap.Universe, l *linker.Linker, natives NativeSource) *VM {
	t.Helper()
	vm, err := NewVM(cfg, u, l, natives)
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	t.Cleanup(func() {
		if err := vm.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return vm
}

func defineCalc(u *heap.Universe) (*heap.Class, *heap.Class) {
	var count *heap.Field
	void := func(*heap.Object, []heap.Value) (heap.Value, error) { return heap.Void, nil }
	calc := u.System.MustDefine(heap.ClassDef{
		Name: "test/Calc",
		Fields: []heap.FieldDef{
			{Name: "count", Descriptor: "I"},
			{Name: "next", Descriptor: "Ltest/Calc;"},
			{Name: "label", Descriptor: "Ljava/lang/String;", Static: true},
			{Name: "ratio", Descriptor: "D", Static: true},
		},
		Methods: []heap.MethodDef{
			{Name: "<init>", Descriptor: "()V", Impl: void},
			{Name: "<init>", Descriptor: "(I)V", Impl: func(r *heap.Object, a []heap.Value) (heap.Value, error) {
				return heap.Void, r.SetField(count, a[0])
			}},
			{Name: "get", Descriptor: "()I", Impl: func(r *heap.Object, _ []heap.Value) (heap.Value, error) {
				return r.Field(count), nil
			}},
			{Name: "twice", Descriptor: "(I)I", Flags: heap.MethodStatic, Impl: func(_ *heap.Object, a []heap.Value) (heap.Value, error) {
				return heap.Int(2 * a[0].AsInt()), nil
			}},
			{Name: "mix", Descriptor: "(BZJFD)D", Flags: heap.MethodStatic, Impl: func(_ *heap.Object, a []heap.Value) (heap.Value, error) {
				sum := float64(a[0].AsByte()) + float64(a[2].AsLong()) + float64(a[3].AsFloat()) + a[4].AsDouble()
				if a[1].AsBoolean() {
					sum = -sum
				}
				return heap.Double(sum), nil
			}},
			{Name: "divide", Descriptor: "(II)I", Flags: heap.MethodStatic, Impl: func(_ *heap.Object, a []heap.Value) (heap.Value, error) {
				if a[1].AsInt() == 0 {
					return heap.Void, u.Throw(u.ArithmeticException, "/ by zero")
				}
				return heap.Int(a[0].AsInt() / a[1].AsInt()), nil
			}},
			{Name: "add", Descriptor: "(II)I", Flags: heap.MethodStatic | heap.MethodNative},
			{Name: "echo", Descriptor: "(Ljava/lang/Object;)Ljava/lang/Object;", Flags: heap.MethodNative},
		},
	})
	count = calc.FindField("count", "I")
	sub := u.System.MustDefine(heap.ClassDef{
		Name:  "test/SubCalc",
		Super: calc,
		Methods: []heap.MethodDef{
			{Name: "<init>", Descriptor: "()V", Impl: void},
			{Name: "get", Descriptor: "()I", Impl: func(*heap.Object, []heap.Value) (heap.Value, error) {
				return heap.Int(100), nil
			}},
		},
	})
	return calc, sub
}

// cstr places a NUL-terminated copy of s in native memory.
func (f *fixture) cstr(s string) word.Word {
	f.t.Helper()
	p, err := f.vm.mem.AllocateBytes(append([]byte(s), 0))
	if err != nil {
		f.t.Fatal(err)
	}
	return p.AsWord()
}

// alloc returns n zeroed bytes of native memory.
func (f *fixture) alloc(n int) word.Pointer {
	f.t.Helper()
	p, err := f.vm.mem.Allocate(n)
	if err != nil {
		f.t.Fatal(err)
	}
	return p
}

// jvalues builds a jvalue array from raw slot contents.
func (f *fixture) jvalues(slots ...uint64) word.Pointer {
	f.t.Helper()
	p := f.alloc(max(len(slots), 1) * JValueSize)
	for i, s := range slots {
		p.WriteInt64(i*JValueSize, int64(s))
	}
	return p
}

func (f *fixture) local(o *heap.Object) handles.Handle {
	f.t.Helper()
	h, err := f.env.NewLocal(o)
	if err != nil {
		f.t.Fatal(err)
	}
	return h
}

func (f *fixture) classHandle(c *heap.Class) handles.Handle { return f.local(c.Mirror()) }

func (f *fixture) resolve(w word.Word) *heap.Object {
	f.t.Helper()
	o, err := f.env.Resolve(handles.FromWord(w))
	if err != nil {
		f.t.Fatalf("resolve %#x: %v", w, err)
	}
	return o
}

func (f *fixture) methodID(c *heap.Class, name, desc string) word.Word {
	f.t.Helper()
	m := c.FindMethod(name, desc)
	if m == nil {
		m = c.DeclaredMethod(name, desc)
	}
	if m == nil {
		f.t.Fatalf("no method %s.%s%s", c.Name, name, desc)
	}
	return f.u.MethodID(m)
}

// expectPending takes the pending exception and checks its class.
func (f *fixture) expectPending(want *heap.Class) *heap.Object {
	f.t.Helper()
	ex := f.env.TakePending()
	if ex == nil {
		f.t.Fatalf("no pending exception, want %s", want.SourceName())
	}
	if ex.Class() != want {
		msg, _ := heap.MessageOf(ex)
		f.t.Fatalf("pending %s (%s), want %s", ex.Class().SourceName(), msg, want.SourceName())
	}
	return ex
}

func (f *fixture) noPending() {
	f.t.Helper()
	if ex := f.env.TakePending(); ex != nil {
		msg, _ := heap.MessageOf(ex)
		f.t.Fatalf("unexpected pending %s: %s", ex.Class().SourceName(), msg)
	}
}

// ---------------------------------------------------------------------------
// Threads and the VM pointer
// ---------------------------------------------------------------------------

func TestAttachIsIdempotent(t *testing.T) {
	f := newFixture(t)
	again, rc := f.vm.AttachCurrentThread("other")
	if rc != OK || again != f.env {
		t.Fatalf("second attach = %v, %d; want the existing env", again, rc)
	}
	if f.vm.CurrentEnv() != f.env {
		t.Error("CurrentEnv should return the attached env")
	}
	if got := len(f.vm.Threads()); got != 1 {
		t.Errorf("Threads = %d, want 1", got)
	}
}

func TestGetEnv(t *testing.T) {
	f := newFixture(t)
	if e, rc := f.vm.GetEnv(config.Version1_2); rc != OK || e != f.env {
		t.Errorf("GetEnv = %v, %d", e, rc)
	}
	if _, rc := f.vm.GetEnv(f.vm.Version() + 1); rc != EVersion {
		t.Errorf("GetEnv(newer) = %d, want EVersion", rc)
	}
}

func TestGetEnvOnDetachedThread(t *testing.T) {
	u := heap.NewUniverse()
	vm := newVM(t, nil, u, nil, nil)
	done := make(chan int)
	go func() {
		_, rc := vm.GetEnv(config.Version1_2)
		done <- rc
	}()
	if rc := <-done; rc != EDetached {
		t.Errorf("GetEnv on unattached thread = %d, want EDetached", rc)
	}
}

func TestDetachTwice(t *testing.T) {
	u := heap.NewUniverse()
	vm := newVM(t, nil, u, nil, nil)
	e, rc := vm.AttachCurrentThread("once")
	if rc != OK {
		t.Fatalf("attach = %d", rc)
	}
	if rc := vm.DetachCurrentThread(e); rc != OK {
		t.Fatalf("detach = %d", rc)
	}
	if rc := vm.DetachCurrentThread(e); rc != EDetached {
		t.Errorf("second detach = %d, want EDetached", rc)
	}
	if vm.CurrentEnv() != nil {
		t.Error("detached thread should have no env")
	}
}

func TestDetachFreesEnvCell(t *testing.T) {
	vm := newVM(t, nil, heap.NewUniverse(), nil, nil)
	before := vm.mem.Live()
	e, rc := vm.AttachCurrentThread("cell")
	if rc != OK {
		t.Fatalf("attach = %d", rc)
	}
	if vm.mem.Live() != before+1 {
		t.Errorf("attach allocated %d blocks, want 1", vm.mem.Live()-before)
	}
	if rc := vm.DetachCurrentThread(e); rc != OK {
		t.Fatalf("detach = %d", rc)
	}
	if vm.mem.Live() != before || !e.Pointer().IsZero() {
		t.Errorf("after detach: %d live blocks, env pointer %s", vm.mem.Live(), e.Pointer())
	}
}

func TestCloseReleasesNativeMemory(t *testing.T) {
	var obj *heap.Object
	func() {
		vm, err := NewVM(nil, heap.NewUniverse(), nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		e, rc := vm.AttachCurrentThread("left attached")
		if rc != OK {
			t.Fatalf("attach = %d", rc)
		}
		arr := e.Call("NewIntArray", 4)
		if obj, err = e.Resolve(handles.FromWord(arr)); err != nil {
			t.Fatal(err)
		}
		if e.Call("GetPrimitiveArrayCritical", arr, 0) == 0 {
			t.Fatal("critical access failed")
		}

		if err := vm.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if vm.mem.Live() != 0 || vm.code.Len() != 0 {
			t.Errorf("after close: %d blocks, %d code entries", vm.mem.Live(), vm.code.Len())
		}
		if vm.CurrentEnv() != nil || len(vm.Threads()) != 0 {
			t.Error("threads still attached after close")
		}
		if err := vm.Close(); err != nil {
			t.Errorf("second Close: %v", err)
		}
	}()
	if obj.IsPinned() {
		t.Error("critical pin survived Close")
	}
	// Dropped pinners that still hold pins abort the process from the
	// finalizer goroutine; a closed VM must leave none behind.
	for range 3 {
		runtime.GC()
	}
}

func TestCloseShutsDownLinker(t *testing.T) {
	l := newTestLinker(t, linker.NewFake(nil))
	vm, err := NewVM(nil, heap.NewUniverse(), l, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := vm.Close(); err != nil {
		t.Fatal(err)
	}
	if l.IsInitialized() {
		t.Error("linker still usable after the VM closed")
	}
}

func TestVersionAndVMPointerThroughTable(t *testing.T) {
	f := newFixture(t)
	if got := f.env.GetVersion(); got != config.Version1_6 {
		t.Errorf("GetVersion = %#x, want %#x", got, config.Version1_6)
	}
	pp := f.alloc(word.Size)
	if rc := f.env.GetJavaVM(pp); rc != OK {
		t.Fatalf("GetJavaVM = %d", rc)
	}
	if got := pp.ReadWord(0).AsPointer(); got != f.vm.Pointer() {
		t.Errorf("GetJavaVM stored %s, want %s", got, f.vm.Pointer())
	}
	if rc := f.env.GetJavaVM(0); rc != Err {
		t.Errorf("GetJavaVM(null) = %d, want Err", rc)
	}
	// The VM pointer and the env pointer both lead to the table base.
	if f.vm.Pointer().ReadWord(0).AsPointer() != f.vm.Table().Base() {
		t.Error("VM pointer does not hold the table base")
	}
	if f.env.Pointer().ReadWord(0).AsPointer() != f.vm.Table().Base() {
		t.Error("env pointer does not hold the table base")
	}
}

// ---------------------------------------------------------------------------
// Transitions
// ---------------------------------------------------------------------------

func TestUpcallRestoresAnchorAndState(t *testing.T) {
	f := newFixture(t)
	base := f.env.Anchor()
	if f.env.State() != StateNative {
		t.Fatalf("attached thread state = %s, want native", f.env.State())
	}
	f.env.Call("GetArrayLength", 0)
	f.expectPending(f.u.NullPointerException)
	if f.env.Anchor() != base {
		t.Error("upcall did not restore the anchor")
	}
	if f.env.State() != StateNative {
		t.Errorf("state after upcall = %s", f.env.State())
	}
}

// Every managed slot, called with null or stale arguments, must report
// failure through a pending exception and its sentinel, never by panicking
// into native code, and must leave the anchor and thread state as it found
// them.
func TestEveryManagedSlotFailsSafely(t *testing.T) {
	var aborted *FatalError
	prev := SetAbortHandler(func(e *FatalError) { aborted = e })
	defer SetAbortHandler(prev)

	// Operations that read a C string or a record array from native memory.
	decoding := map[string]bool{
		"DefineClass": true, "FindClass": true, "ThrowNew": true,
		"GetMethodID": true, "GetFieldID": true,
		"GetStaticMethodID": true, "GetStaticFieldID": true,
		"RegisterNatives": true,
	}
	// Reference-taking operations that must reject either argument shape.
	rejecting := []string{
		"GetObjectClass", "GetArrayLength", "GetStringLength",
		"MonitorEnter", "MonitorExit", "CallIntMethodA", "GetIntField",
	}
	for _, name := range rejecting {
		decoding[name] = true
	}

	stale := handles.Encode(handles.Local, 500).Word()
	for _, tt := range []struct {
		name string
		arg  word.Word
	}{
		{"null", 0},
		{"stale", stale},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			base := f.env.Anchor()
			args := make([]word.Word, 8)
			for i := range args {
				args[i] = tt.arg
			}
			for _, name := range SlotNames() {
				if IsNativeSlot(name) || name == "FatalError" {
					continue
				}
				aborted = nil
				f.env.SetPending(nil)

				var got word.Word
				escaped := func() (r any) {
					defer func() { r = recover() }()
					got = f.env.Call(name, args...)
					return nil
				}()
				if escaped != nil || aborted != nil {
					t.Errorf("%s: escaped %v (abort %v)", name, escaped, aborted)
					continue
				}
				if f.env.Anchor() != base || f.env.State() != StateNative {
					t.Errorf("%s: anchor or state not restored (state %s)", name, f.env.State())
				}
				pending := f.env.Pending() != nil
				if pending && got != 0 && !got.IsAllOnes() {
					t.Errorf("%s: returned %#x with an exception pending", name, got)
				}
				if decoding[name] && !pending {
					t.Errorf("%s: no pending exception", name)
				}
			}
			f.env.SetPending(nil)
		})
	}
}

func TestUpcallWithoutAnchorIsFatal(t *testing.T) {
	var got *FatalError
	prev := SetAbortHandler(func(e *FatalError) { got = e })
	defer SetAbortHandler(prev)

	u := heap.NewUniverse()
	vm := newVM(t, nil, u, nil, nil)
	e, _ := vm.AttachCurrentThread("lost")
	vm.DetachCurrentThread(e)

	func() {
		defer func() {
			r := recover()
			if _, ok := r.(*FatalError); !ok {
				t.Errorf("recovered %v, want *FatalError", r)
			}
		}()
		e.ExceptionCheck()
	}()
	if got == nil || !strings.Contains(got.Msg, "no anchor") {
		t.Errorf("abort handler got %v", got)
	}
}

func TestFatalErrorOperationAborts(t *testing.T) {
	f := newFixture(t)
	var got *FatalError
	prev := SetAbortHandler(func(e *FatalError) { got = e })
	defer SetAbortHandler(prev)

	func() {
		defer func() { recover() }()
		f.env.Call("FatalError", f.cstr("boom"))
	}()
	if got == nil || !strings.Contains(got.Msg, "boom") {
		t.Fatalf("abort handler got %v", got)
	}
	// The fatal panic unwound through the epilogue.
	if f.env.Anchor().Prev != nil {
		t.Error("anchor not restored after fatal unwind")
	}
}

func TestTraceLines(t *testing.T) {
	f := newFixture(t)
	if got := f.env.traceLine("-->", "FindClass", f.env.Anchor()); got != `[Thread "main" --> upcall: FindClass, called from attached native thread]` {
		t.Errorf("trace line = %s", got)
	}
	m := f.calc.DeclaredMethod("add", "(II)I")
	a := &Anchor{Prev: f.env.Anchor(), Method: m}
	want := `[Thread "main" <-- upcall: GetVersion, last down call: test/Calc.add(II)I]`
	if got := f.env.traceLine("<--", "GetVersion", &Anchor{Prev: a}); got != want {
		t.Errorf("trace line = %s, want %s", got, want)
	}
}

func TestExceptionDescribe(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	f.vm.SetDiagnosticOutput(&buf)

	f.env.SetPending(f.u.NewThrowable(f.u.IllegalArgumentException, "bad"))
	f.env.Call("ExceptionDescribe")
	if !strings.HasPrefix(buf.String(), `Exception in thread "main" java.lang.IllegalArgumentException: bad`) {
		t.Errorf("description = %q", buf.String())
	}
	if f.env.ExceptionCheck() {
		t.Error("ExceptionDescribe should clear the exception")
	}
}

func TestThrowAndThrowNew(t *testing.T) {
	f := newFixture(t)
	ex := f.local(f.u.NewThrowable(f.u.ArithmeticException, "x"))
	if rc := int32(f.env.Call("Throw", ex.Word())); rc != OK {
		t.Fatalf("Throw = %d", rc)
	}
	if !f.env.ExceptionCheck() {
		t.Fatal("ExceptionCheck should be true")
	}
	occurred := f.resolve(f.env.Call("ExceptionOccurred"))
	if occurred.Class() != f.u.ArithmeticException {
		t.Errorf("ExceptionOccurred = %s", occurred.Class().Name)
	}
	f.env.Call("ExceptionClear")
	f.noPending()

	cls := f.classHandle(f.u.IllegalArgumentException)
	if rc := int32(f.env.Call("ThrowNew", cls.Word(), f.cstr("no good"))); rc != OK {
		t.Fatalf("ThrowNew = %d", rc)
	}
	thrown := f.expectPending(f.u.IllegalArgumentException)
	if msg, ok := heap.MessageOf(thrown); !ok || msg != "no good" {
		t.Errorf("message = %q, %v", msg, ok)
	}

	// A non-throwable object cannot be thrown.
	str := f.local(f.u.NewString("not an exception"))
	if rc := int32(f.env.Call("Throw", str.Word())); rc != Err {
		t.Errorf("Throw(string) = %d, want Err", rc)
	}
	f.expectPending(f.u.IllegalArgumentException)
}
