package native

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/chazu/boundary/config"
	"github.com/chazu/boundary/handles"
	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/linker"
	"github.com/chazu/boundary/memory"
	"github.com/chazu/boundary/word"
)

func newTestLinker(t *testing.T, fake *linker.Fake) *linker.Linker {
	t.Helper()
	scratch, err := memory.NewScratch(0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { scratch.Close() })
	l := linker.New(fake, scratch, linker.Options{})
	if err := l.Initialize(fake.Bootstrap()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return l
}

// addImpl is a native implementation of Calc.add.
func addImpl(_ *Env, a []word.Word) word.Word {
	return word.FromInt(int32(a[1]) + int32(a[2]))
}

func (f *fixture) callAdd(x, y int32) int32 {
	f.t.Helper()
	add := f.methodID(f.calc, "add", "(II)I")
	args := f.jvalues(uint64(uint32(x)), uint64(uint32(y)))
	return int32(f.env.Call("CallStaticIntMethodA", f.classHandle(f.calc).Word(), add, args.AsWord()))
}

func TestDowncallThroughRegisteredNative(t *testing.T) {
	f := newFixture(t)
	add := f.calc.DeclaredMethod("add", "(II)I")

	var (
		state ThreadState
		trace []*heap.Method
		self  handles.Handle
	)
	_, err := f.vm.RegisterNative(add, func(e *Env, a []word.Word) word.Word {
		state, trace, self = e.State(), e.StackTrace(), handles.FromWord(a[0])
		if o, err := e.Resolve(self); err != nil || o != f.calc.Mirror() {
			t.Errorf("static native received %v, %v; want the class mirror", o, err)
		}
		return addImpl(e, a)
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := f.callAdd(40, -2); got != 38 {
		t.Errorf("add(40, -2) = %d", got)
	}
	f.noPending()
	if state != StateNative {
		t.Errorf("native code ran in state %s", state)
	}
	if len(trace) == 0 || trace[0] != add {
		t.Errorf("stack trace = %v", trace)
	}
	if self.Kind() != handles.Stack {
		t.Errorf("class parameter is a %s handle", self.Kind())
	}
	if f.env.State() != StateNative || f.env.Anchor().Prev != nil {
		t.Error("thread not restored after the downcall")
	}

	if _, err := f.vm.RegisterNative(f.calc.DeclaredMethod("twice", "(I)I"), addImpl); err == nil {
		t.Error("RegisterNative accepted a non-native method")
	}
}

func TestDowncallReleasesLocalsAndKeepsResult(t *testing.T) {
	f := newFixture(t)
	echo := f.calc.DeclaredMethod("echo", "(Ljava/lang/Object;)Ljava/lang/Object;")
	var made word.Word
	if _, err := f.vm.RegisterNative(echo, func(e *Env, a []word.Word) word.Word {
		e.Call("NewStringUTF", f.cstr("first"))
		made = e.Call("NewStringUTF", f.cstr("second"))
		return a[1]
	}); err != nil {
		t.Fatal(err)
	}

	obj := f.local(f.mustAlloc(f.calc)).Word()
	arg := f.local(f.u.NewString("ping"))
	res := f.env.Call("CallObjectMethodA", obj, f.u.MethodID(echo), f.jvalues(uint64(arg.Word())).AsWord())
	if got := f.resolve(res); got.GoString() != "ping" {
		t.Errorf("echo = %q", got.GoString())
	}
	if handles.FromWord(res).Kind() != handles.Local {
		t.Errorf("result handle kind = %s", handles.FromWord(res).Kind())
	}
	if made == 0 {
		t.Fatal("native code could not create a local")
	}
	// The result reuses the frame's first slot; the second is gone.
	if _, err := f.env.Resolve(handles.FromWord(made)); err == nil {
		t.Error("local created by native code survived the downcall")
	}
}

func TestDowncallReleasesFramesLeftOpen(t *testing.T) {
	f := newFixture(t)
	echo := f.calc.DeclaredMethod("echo", "(Ljava/lang/Object;)Ljava/lang/Object;")
	var inner word.Word
	if _, err := f.vm.RegisterNative(echo, func(e *Env, a []word.Word) word.Word {
		if rc := e.Call("PushLocalFrame", 4); rc != OK {
			t.Errorf("PushLocalFrame = %d", int32(rc))
		}
		e.Call("NewStringUTF", f.cstr("a"))
		inner = e.Call("NewStringUTF", f.cstr("b"))
		return a[1]
	}); err != nil {
		t.Fatal(err)
	}

	obj := f.local(f.mustAlloc(f.calc)).Word()
	arg := f.local(f.u.NewString("ping"))
	local := f.env.Local()
	top, depth := local.Top(), local.Depth()

	res := f.env.Call("CallObjectMethodA", obj, f.u.MethodID(echo), f.jvalues(uint64(arg.Word())).AsWord())
	if f.resolve(res).GoString() != "ping" {
		t.Error("echo lost its result")
	}
	if local.Depth() != depth || local.Top() != top+1 {
		t.Errorf("after downcall: top = %d, depth = %d; want %d, %d", local.Top(), local.Depth(), top+1, depth)
	}
	if _, err := f.env.Resolve(handles.FromWord(inner)); err == nil {
		t.Error("local in an unpopped frame survived the downcall")
	}
}

func TestDowncallCannotPopCallerFrames(t *testing.T) {
	f := newFixture(t)
	echo := f.calc.DeclaredMethod("echo", "(Ljava/lang/Object;)Ljava/lang/Object;")
	if _, err := f.vm.RegisterNative(echo, func(e *Env, a []word.Word) word.Word {
		for range 3 {
			e.Call("PopLocalFrame", 0)
		}
		return a[1]
	}); err != nil {
		t.Fatal(err)
	}

	if rc := f.env.Call("PushLocalFrame", 4); rc != OK {
		t.Fatalf("PushLocalFrame = %d", int32(rc))
	}
	keep := f.local(f.u.NewString("keep"))
	obj := f.local(f.mustAlloc(f.calc)).Word()
	depth := f.env.Local().Depth()

	f.env.Call("CallObjectMethodA", obj, f.u.MethodID(echo), f.jvalues(uint64(keep.Word())).AsWord())
	f.noPending()
	if f.env.Local().Depth() != depth {
		t.Errorf("depth = %d, want %d", f.env.Local().Depth(), depth)
	}
	if got := f.resolve(keep.Word()); got == nil || got.GoString() != "keep" {
		t.Error("native code released a handle of its caller")
	}
}

func TestNativeExceptionBecomesPending(t *testing.T) {
	f := newFixture(t)
	var checked word.Word
	add := f.calc.DeclaredMethod("add", "(II)I")
	if _, err := f.vm.RegisterNative(add, func(e *Env, _ []word.Word) word.Word {
		cls := e.Call("FindClass", f.cstr("java/lang/ArithmeticException"))
		e.Call("ThrowNew", cls, f.cstr("from native"))
		checked = e.Call("ExceptionCheck")
		return word.FromInt(99)
	}); err != nil {
		t.Fatal(err)
	}

	if got := f.callAdd(1, 2); got != 0 {
		t.Errorf("failed call returned %d", got)
	}
	if checked != 1 {
		t.Error("ExceptionCheck inside native code = false")
	}
	ex := f.expectPending(f.u.ArithmeticException)
	if msg, _ := heap.MessageOf(ex); msg != "from native" {
		t.Errorf("message = %q", msg)
	}

	// Managed callers see the same exception as an error.
	_, err := add.Invoke(nil, []heap.Value{heap.Int(1), heap.Int(2)})
	if th, ok := heap.AsThrowable(err); !ok || th.Object.Class() != f.u.ArithmeticException {
		t.Errorf("Invoke error = %v", err)
	}
}

// nativeRecords lays out RegisterNatives records in native memory.
func (f *fixture) nativeRecords(methods ...NativeMethod) word.Pointer {
	f.t.Helper()
	p := f.alloc(max(len(methods), 1) * nativeMethodWords * word.Size)
	for i, m := range methods {
		rec := i * nativeMethodWords
		p.SetWord(0, rec, f.cstr(m.Name))
		p.SetWord(0, rec+1, f.cstr(m.Signature))
		p.SetWord(0, rec+2, m.Entry.AsWord())
	}
	return p
}

func TestRegisterNatives(t *testing.T) {
	f := newFixture(t)
	calc := f.classHandle(f.calc).Word()
	add := f.calc.DeclaredMethod("add", "(II)I")
	entry := f.vm.Code().MustRegister("add", addImpl)

	recs := f.nativeRecords(NativeMethod{Name: "add", Signature: "(II)I", Entry: entry})
	if rc := int32(f.env.Call("RegisterNatives", calc, recs.AsWord(), 1)); rc != OK {
		t.Fatalf("RegisterNatives = %d", rc)
	}
	if add.NativeEntry() != entry {
		t.Errorf("entry = %s, want %s", add.NativeEntry(), entry)
	}
	if got := f.callAdd(2, 3); got != 5 {
		t.Errorf("add(2, 3) = %d", got)
	}

	for _, tc := range []struct {
		name string
		m    NativeMethod
		want *heap.Class
	}{
		{"not native", NativeMethod{Name: "twice", Signature: "(I)I", Entry: entry}, f.u.NoSuchMethodError},
		{"not declared", NativeMethod{Name: "add", Signature: "(JJ)J", Entry: entry}, f.u.NoSuchMethodError},
		{"null entry", NativeMethod{Name: "add", Signature: "(II)I"}, f.u.NullPointerException},
	} {
		recs := f.nativeRecords(tc.m)
		if rc := int32(f.env.Call("RegisterNatives", calc, recs.AsWord(), 1)); rc != Err {
			t.Errorf("%s: RegisterNatives = %d", tc.name, rc)
		}
		f.expectPending(tc.want)
	}
	if rc := int32(f.env.Call("RegisterNatives", calc, 0, 1)); rc != Err {
		t.Errorf("null records: RegisterNatives = %d", rc)
	}
	f.expectPending(f.u.NullPointerException)
}

func TestUnregisterNatives(t *testing.T) {
	f := newFixture(t)
	add := f.calc.DeclaredMethod("add", "(II)I")
	if _, err := f.vm.RegisterNative(add, addImpl); err != nil {
		t.Fatal(err)
	}
	// Unregistering through a subclass reaches the inherited natives.
	if rc := int32(f.env.Call("UnregisterNatives", f.classHandle(f.sub).Word())); rc != OK {
		t.Fatalf("UnregisterNatives = %d", rc)
	}
	if add.NativeEntry() != 0 {
		t.Error("add still bound")
	}
	// Without a linker nothing can bind it again.
	f.callAdd(1, 1)
	f.expectPending(f.u.UnsatisfiedLinkError)
}

func TestForeignEntryIsUnsatisfiedLink(t *testing.T) {
	f := newFixture(t)
	recs := f.nativeRecords(NativeMethod{Name: "add", Signature: "(II)I", Entry: 0x1234})
	if rc := int32(f.env.Call("RegisterNatives", f.classHandle(f.calc).Word(), recs.AsWord(), 1)); rc != OK {
		t.Fatalf("RegisterNatives = %d", rc)
	}
	f.callAdd(1, 1)
	ex := f.expectPending(f.u.UnsatisfiedLinkError)
	if msg, _ := heap.MessageOf(ex); !strings.Contains(msg, "cannot call") {
		t.Errorf("message = %q", msg)
	}
}

func TestLazyLinkThroughLoadedLibrary(t *testing.T) {
	fake := linker.NewFake(nil)
	f := newLinkedFixture(t, config.Default(), newTestLinker(t, fake))
	add := f.calc.DeclaredMethod("add", "(II)I")

	f.callAdd(1, 1)
	ex := f.expectPending(f.u.UnsatisfiedLinkError)
	if msg, _ := heap.MessageOf(ex); !strings.Contains(msg, "Java_test_Calc_add") {
		t.Errorf("message = %q", msg)
	}

	entry := f.vm.Code().MustRegister("Java_test_Calc_add", addImpl)
	fake.AddLibrary("/lib/libcalc.so", map[string]word.Address{
		linker.MangleName("test/Calc", "add", "(II)I", false): entry,
	})
	if _, err := f.vm.LoadLibrary(f.u.System, "/lib/libcalc.so"); err != nil {
		t.Fatalf("LoadLibrary: %v", err)
	}
	if got := f.callAdd(20, 22); got != 42 {
		t.Errorf("add(20, 22) = %d", got)
	}
	if add.NativeEntry() != entry {
		t.Errorf("add bound to %s, want %s", add.NativeEntry(), entry)
	}
}

func TestLoadLibraryWithoutLinker(t *testing.T) {
	f := newFixture(t)
	if _, err := f.vm.LoadLibrary(f.u.System, "calc"); !errors.Is(err, linker.ErrNotInitialized) {
		t.Errorf("LoadLibrary = %v", err)
	}
}

// ---------------------------------------------------------------------------
// Argument marshalling
// ---------------------------------------------------------------------------

func TestPackArguments(t *testing.T) {
	f := newFixture(t)
	kinds := []heap.Kind{heap.KindBoolean, heap.KindFloat, heap.KindLong, heap.KindReference}
	p, done, err := f.vm.PackArguments(kinds, []word.Word{
		0x101, word.Word(math.Float64bits(1.5)), word.FromLong(-9), 0x41,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer done()
	if !p.ReadBool(0) {
		t.Error("boolean slot")
	}
	if got := p.ReadFloat32(JValueSize); got != 1.5 {
		t.Errorf("float slot = %v", got)
	}
	if got := p.ReadInt64(2 * JValueSize); got != -9 {
		t.Errorf("long slot = %d", got)
	}
	if got := p.ReadWord(3 * JValueSize); got != 0x41 {
		t.Errorf("reference slot = %s", got)
	}

	_, _, err = f.vm.PackArguments(kinds, []word.Word{1})
	if th, ok := heap.AsThrowable(err); !ok || th.Object.Class() != f.u.IllegalArgumentException {
		t.Errorf("short argument list: %v", err)
	}
	_, _, err = f.vm.PackArgumentList(kinds, 0)
	if th, ok := heap.AsThrowable(err); !ok || th.Object.Class() != f.u.NullPointerException {
		t.Errorf("null va_list: %v", err)
	}
}

func TestPackArgumentsFreesArray(t *testing.T) {
	f := newFixture(t)
	live := f.vm.mem.Live()
	_, done, err := f.vm.PackArguments([]heap.Kind{heap.KindInt}, []word.Word{7})
	if err != nil {
		t.Fatal(err)
	}
	if got := f.vm.mem.Live(); got != live+1 {
		t.Fatalf("Live() after pack = %d, want %d", got, live+1)
	}
	done()
	if got := f.vm.mem.Live(); got != live {
		t.Errorf("Live() after done = %d, want %d", got, live)
	}
	// A second release is logged and leaves the heap alone.
	done()
	if got := f.vm.mem.Live(); got != live {
		t.Errorf("Live() after second done = %d, want %d", got, live)
	}
}

func TestPackArgumentList(t *testing.T) {
	f := newFixture(t)
	list := f.alloc(2 * word.Size)
	list.SetWord(0, 0, word.FromInt(-3))
	list.SetWord(0, 1, word.Word(math.Float64bits(0.25)))
	p, done, err := f.vm.PackArgumentList([]heap.Kind{heap.KindShort, heap.KindDouble}, list)
	if err != nil {
		t.Fatal(err)
	}
	defer done()
	if got := p.ReadInt16(0); got != -3 {
		t.Errorf("short slot = %d", got)
	}
	if got := p.ReadFloat64(JValueSize); got != 0.25 {
		t.Errorf("double slot = %v", got)
	}
}

func TestReadArguments(t *testing.T) {
	f := newFixture(t)
	mix := f.calc.DeclaredMethod("mix", "(BZJFD)D")
	args := f.jvalues(0x17F, 1, uint64(1)<<40, uint64(math.Float32bits(-1.5)), math.Float64bits(3))
	values, err := f.env.ReadArguments(mix, args)
	if err != nil {
		t.Fatal(err)
	}
	if values[0].AsByte() != 0x7F || !values[1].AsBoolean() || values[2].AsLong() != 1<<40 {
		t.Errorf("integral arguments = %v", values[:3])
	}
	if values[3].AsFloat() != -1.5 || values[4].AsDouble() != 3 {
		t.Errorf("floating arguments = %v", values[3:])
	}

	echo := f.calc.DeclaredMethod("echo", "(Ljava/lang/Object;)Ljava/lang/Object;")
	s := f.local(f.u.NewString("arg"))
	values, err = f.env.ReadArguments(echo, f.jvalues(uint64(s.Word())))
	if err != nil || values[0].AsObject().GoString() != "arg" {
		t.Errorf("reference argument = %v, %v", values, err)
	}

	_, err = f.env.ReadArguments(mix, 0)
	if th, ok := heap.AsThrowable(err); !ok || th.Object.Class() != f.u.NullPointerException {
		t.Errorf("null argument array: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Bootstrap from a support library
// ---------------------------------------------------------------------------

func TestBootstrapFromLinker(t *testing.T) {
	symbols := make(map[string]word.Address)
	for i, name := range NativeSlotNames() {
		symbols["jni_"+name] = word.Address(0x90000 + 16*i)
	}
	l := newTestLinker(t, linker.NewFake(symbols))
	vm := newVM(t, nil, heap.NewUniverse(), l, BootstrapFromLinker(l))
	for _, name := range NativeSlotNames() {
		i, _ := SlotIndex(name)
		if got := vm.Table().Entry(i); got != symbols["jni_"+name] {
			t.Errorf("slot %s = %s, want %s", name, got, symbols["jni_"+name])
		}
	}
}

func TestBootstrapFromLinkerMissingSymbols(t *testing.T) {
	l := newTestLinker(t, linker.NewFake(nil))
	_, err := NewVM(nil, heap.NewUniverse(), l, BootstrapFromLinker(l))
	if err == nil {
		t.Fatal("NewVM succeeded without native entries")
	}
	for _, want := range []string{"jni_GetVersion", "jni_CallStaticVoidMethodV"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s: %v", want, err)
		}
	}
}
