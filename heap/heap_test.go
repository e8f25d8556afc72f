package heap

import (
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// Descriptors
// ---------------------------------------------------------------------------

func TestParseSignature(t *testing.T) {
	sig, err := ParseSignature("(IJ[Ljava/lang/String;DLjava/lang/Object;Z)V")
	if err != nil {
		t.Fatal(err)
	}
	want := []Kind{KindInt, KindLong, KindReference, KindDouble, KindReference, KindBoolean}
	if len(sig.ParamKinds) != len(want) {
		t.Fatalf("got %d params, want %d", len(sig.ParamKinds), len(want))
	}
	for i, k := range want {
		if sig.ParamKinds[i] != k {
			t.Errorf("param %d = %s, want %s", i, sig.ParamKinds[i], k)
		}
	}
	if sig.Params[2] != "[Ljava/lang/String;" {
		t.Errorf("param 2 = %q", sig.Params[2])
	}
	if sig.ReturnKind != KindVoid {
		t.Errorf("return = %s", sig.ReturnKind)
	}
}

func TestParseSignatureErrors(t *testing.T) {
	for _, desc := range []string{"", "I", "(I", "(V)V", "(Ljava/lang/String)V", "()", "()II", "([V)V", "(Q)V"} {
		if _, err := ParseSignature(desc); err == nil {
			t.Errorf("ParseSignature(%q) should fail", desc)
		}
	}
}

func TestParseField(t *testing.T) {
	tests := []struct {
		desc string
		want Kind
	}{
		{"I", KindInt},
		{"Z", KindBoolean},
		{"[I", KindReference},
		{"Ljava/lang/Object;", KindReference},
		{"W", KindWord},
	}
	for _, tt := range tests {
		got, err := ParseField(tt.desc)
		if err != nil || got != tt.want {
			t.Errorf("ParseField(%q) = %s, %v", tt.desc, got, err)
		}
	}
	if _, err := ParseField("V"); err == nil {
		t.Error("void field should fail")
	}
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

func TestValueConvert(t *testing.T) {
	v, err := Byte(-3).Convert(KindLong)
	if err != nil || v.AsLong() != -3 {
		t.Errorf("byte -> long = %v, %v", v, err)
	}
	v, _ = Long(1<<40 + 5).Convert(KindInt)
	if v.AsInt() != 5 {
		t.Errorf("long -> int = %d", v.AsInt())
	}
	v, _ = Int(7).Convert(KindDouble)
	if v.AsDouble() != 7 {
		t.Errorf("int -> double = %v", v.AsDouble())
	}
	v, _ = Char(0xFFFF).Convert(KindInt)
	if v.AsInt() != 0xFFFF {
		t.Errorf("char -> int = %d", v.AsInt())
	}
	if _, err := Int(1).Convert(KindReference); err == nil {
		t.Error("int -> reference should fail")
	}
}

func TestFromRawRoundTrip(t *testing.T) {
	for _, v := range []Value{Boolean(true), Byte(-1), Char(0x1234), Short(-2), Int(-3), Long(-4), Float(1.25), Double(-8.5)} {
		got := FromRaw(v.Kind(), v.Raw())
		if got != v {
			t.Errorf("FromRaw(%s, %#x) = %v, want %v", v.Kind(), v.Raw(), got, v)
		}
	}
}

// ---------------------------------------------------------------------------
// Classes and members
// ---------------------------------------------------------------------------

func defineShapes(t *testing.T, u *Universe) (shape, circle, drawable *Class) {
	t.Helper()
	drawable = u.System.MustDefine(ClassDef{
		Name:  "app/Drawable",
		Flags: ClassInterface,
		Methods: []MethodDef{
			{Name: "draw", Descriptor: "()I", Flags: MethodAbstract},
		},
	})
	shape = u.System.MustDefine(ClassDef{
		Name:  "app/Shape",
		Flags: ClassAbstract,
		Fields: []FieldDef{
			{Name: "id", Descriptor: "I"},
			{Name: "count", Descriptor: "J", Static: true},
		},
		Methods: []MethodDef{
			{Name: "area", Descriptor: "()D", Flags: MethodAbstract},
			{Name: "name", Descriptor: "()Ljava/lang/String;", Impl: func(*Object, []Value) (Value, error) {
				return Ref(u.NewString("shape")), nil
			}},
		},
	})
	circle = u.System.MustDefine(ClassDef{
		Name:       "app/Circle",
		Super:      shape,
		Interfaces: []*Class{drawable},
		Fields:     []FieldDef{{Name: "r", Descriptor: "D"}},
		Methods: []MethodDef{
			{Name: "area", Descriptor: "()D", Impl: func(r *Object, _ []Value) (Value, error) {
				f := r.Class().FindField("r", "D")
				rad := r.Field(f).AsDouble()
				return Double(3 * rad * rad), nil
			}},
			{Name: "draw", Descriptor: "()I", Impl: func(*Object, []Value) (Value, error) { return Int(1), nil }},
		},
	})
	return
}

func TestAssignability(t *testing.T) {
	u := NewUniverse()
	shape, circle, drawable := defineShapes(t, u)

	tests := []struct {
		to, from *Class
		want     bool
	}{
		{shape, circle, true},
		{circle, shape, false},
		{drawable, circle, true},
		{u.ObjectClass, drawable, true},
		{u.ObjectClass, u.PrimitiveArrayClass(KindInt), true},
		{shape.ArrayClass(), circle.ArrayClass(), true},
		{circle.ArrayClass(), shape.ArrayClass(), false},
		{u.PrimitiveArrayClass(KindInt), u.PrimitiveArrayClass(KindLong), false},
		{u.ThrowableClass, u.NullPointerException, true},
	}
	for _, tt := range tests {
		if got := tt.to.IsAssignableFrom(tt.from); got != tt.want {
			t.Errorf("%s.IsAssignableFrom(%s) = %v, want %v", tt.to, tt.from, got, tt.want)
		}
	}
}

func TestMethodLookupAndDispatch(t *testing.T) {
	u := NewUniverse()
	shape, circle, drawable := defineShapes(t, u)

	abstract := shape.FindMethod("area", "()D")
	if abstract == nil || !abstract.IsAbstract() {
		t.Fatal("expected abstract Shape.area")
	}
	impl := circle.SelectVirtual(abstract)
	if impl == nil || impl.Holder != circle {
		t.Fatalf("SelectVirtual = %v", impl)
	}
	if inherited := circle.FindMethod("name", "()Ljava/lang/String;"); inherited == nil || inherited.Holder != shape {
		t.Error("FindMethod should find inherited Shape.name")
	}
	if m := drawable.FindMethod("draw", "()I"); m == nil || circle.SelectVirtual(m).Holder != circle {
		t.Error("interface dispatch failed")
	}

	obj, err := u.AllocObject(circle)
	if err != nil {
		t.Fatal(err)
	}
	if err := obj.SetField(circle.FindField("r", "D"), Int(2)); err != nil {
		t.Fatal(err)
	}
	got, err := impl.Invoke(obj, nil)
	if err != nil || got.AsDouble() != 12 {
		t.Errorf("area = %v, %v", got, err)
	}

	_, err = abstract.Invoke(obj, nil)
	if th, ok := AsThrowable(err); !ok || th.Object.Class() != u.AbstractMethodError {
		t.Errorf("invoking abstract method = %v", err)
	}
}

func TestAllocObjectRejectsAbstract(t *testing.T) {
	u := NewUniverse()
	shape, _, _ := defineShapes(t, u)
	_, err := u.AllocObject(shape)
	th, ok := AsThrowable(err)
	if !ok || th.Object.Class() != u.InstantiationException {
		t.Fatalf("AllocObject(abstract) = %v", err)
	}
}

func TestStaticsAndInitialization(t *testing.T) {
	u := NewUniverse()
	runs := 0
	c := u.System.MustDefine(ClassDef{
		Name:   "app/Counter",
		Fields: []FieldDef{{Name: "n", Descriptor: "I", Static: true}},
		Methods: []MethodDef{
			{Name: "<clinit>", Descriptor: "()V", Flags: MethodStatic, Impl: func(*Object, []Value) (Value, error) {
				runs++
				return Void, nil
			}},
		},
	})
	if err := c.Initialize(); err != nil {
		t.Fatal(err)
	}
	_ = c.Initialize()
	if runs != 1 {
		t.Errorf("<clinit> ran %d times", runs)
	}
	f := c.FindStaticField("n", "I")
	if err := c.SetStatic(f, Int(9)); err != nil {
		t.Fatal(err)
	}
	if c.Static(f).AsInt() != 9 {
		t.Errorf("static n = %v", c.Static(f))
	}
	if err := c.SetStatic(f, Null); err == nil {
		t.Error("storing a reference into an int field should fail")
	}
}

func TestLoaderDelegation(t *testing.T) {
	u := NewUniverse()
	app := u.NewClassLoader("app", nil)
	c := app.MustDefine(ClassDef{Name: "app/Main"})

	if got, err := app.LoadClass("java/lang/String"); err != nil || got != u.StringClass {
		t.Errorf("LoadClass(String) = %v, %v", got, err)
	}
	if got, err := app.LoadClass("app/Main"); err != nil || got != c {
		t.Errorf("LoadClass(app/Main) = %v, %v", got, err)
	}
	if _, err := u.System.LoadClass("app/Main"); err == nil {
		t.Error("system loader should not see child classes")
	}
	arr, err := app.LoadClass("[[Lapp/Main;")
	if err != nil || arr.Component != c.ArrayClass() {
		t.Errorf("LoadClass(array) = %v, %v", arr, err)
	}
	if prim, _ := app.LoadClass("[I"); prim != u.PrimitiveArrayClass(KindInt) {
		t.Error("[I should be the shared primitive array class")
	}
	if _, err := app.Define(ClassDef{Name: "app/Main"}); err == nil {
		t.Error("duplicate definition should fail")
	}
}

// ---------------------------------------------------------------------------
// Arrays and strings
// ---------------------------------------------------------------------------

func TestPrimitiveArrayAccess(t *testing.T) {
	u := NewUniverse()
	arr, err := u.NewPrimitiveArray(KindShort, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := arr.Set(2, Int(-5)); err != nil {
		t.Fatal(err)
	}
	v, _ := arr.Get(2)
	if v.Kind() != KindShort || v.AsShort() != -5 {
		t.Errorf("element 2 = %v", v)
	}
	if len(arr.Data()) != 8 {
		t.Errorf("payload is %d bytes", len(arr.Data()))
	}
	_, err = arr.Get(4)
	if th, ok := AsThrowable(err); !ok || th.Object.Class() != u.ArrayIndexOutOfBoundsException {
		t.Errorf("out of bounds = %v", err)
	}
	if _, err := u.NewPrimitiveArray(KindInt, -1); err == nil {
		t.Error("negative size should fail")
	}
}

func TestObjectArrayStoreCheck(t *testing.T) {
	u := NewUniverse()
	arr, err := u.NewObjectArray(u.StringClass, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := arr.SetElement(0, u.NewString("ok")); err != nil {
		t.Fatal(err)
	}
	err = arr.SetElement(1, u.NewThrowable(u.ThrowableClass, "no"))
	if th, ok := AsThrowable(err); !ok || th.Object.Class() != u.ArrayStoreException {
		t.Errorf("store of wrong type = %v", err)
	}
}

func TestStrings(t *testing.T) {
	u := NewUniverse()
	s := u.NewString("héllo \U0001F600")
	if s.Length() != 8 {
		t.Errorf("UTF-16 length = %d, want 8", s.Length())
	}
	if s.GoString() != "héllo \U0001F600" {
		t.Errorf("round trip = %q", s.GoString())
	}
}

func TestPinNesting(t *testing.T) {
	u := NewUniverse()
	arr, _ := u.NewPrimitiveArray(KindInt, 3)
	p1 := arr.Pin()
	p2 := arr.Pin()
	if p1 != p2 || p1.IsZero() {
		t.Error("nested pins should yield the same address")
	}
	arr.Unpin()
	if !arr.IsPinned() {
		t.Error("still pinned once")
	}
	arr.Unpin()
	if arr.IsPinned() {
		t.Error("should be unpinned")
	}
}

// ---------------------------------------------------------------------------
// Weak references and collection
// ---------------------------------------------------------------------------

func TestCollectClearsUnreachableWeakRefs(t *testing.T) {
	u := NewUniverse()
	kept := u.NewString("kept")
	dropped := u.NewString("dropped")
	viaField, _ := u.NewObjectArray(u.ObjectClass, 1, nil)
	inner := u.NewString("inner")
	_ = viaField.SetElement(0, inner)

	wKept := u.Weak.New(kept)
	wDropped := u.Weak.New(dropped)
	wInner := u.Weak.New(inner)

	var finalized *Object
	wDropped.SetFinalizer(func(o *Object) { finalized = o })

	stats := NewCollector(u).Collect(RootFunc(func(fn func(*Object)) {
		fn(kept)
		fn(viaField)
	}))

	if !wKept.IsAlive() || !wInner.IsAlive() {
		t.Error("reachable targets should survive")
	}
	if wDropped.IsAlive() {
		t.Error("unreachable target should be cleared")
	}
	if finalized != dropped {
		t.Error("finalizer should receive the cleared target")
	}
	if stats.WeakCleared != 1 || stats.Roots != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestCollectTreatsStaticsAsRoots(t *testing.T) {
	u := NewUniverse()
	c := u.System.MustDefine(ClassDef{
		Name:   "app/Holder",
		Fields: []FieldDef{{Name: "cache", Descriptor: "Ljava/lang/Object;", Static: true}},
	})
	obj := u.NewString("cached")
	_ = c.SetStatic(c.FindStaticField("cache", "Ljava/lang/Object;"), Ref(obj))
	w := u.Weak.New(obj)
	NewCollector(u).Collect()
	if !w.IsAlive() {
		t.Error("object held by a static field should survive")
	}
}

// ---------------------------------------------------------------------------
// Monitors and IDs
// ---------------------------------------------------------------------------

func TestMonitorReentrancy(t *testing.T) {
	m := NewMonitor()
	a, b := new(int), new(int)
	m.Enter(a)
	m.Enter(a)
	if err := m.Exit(b); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Exit by non-owner = %v", err)
	}
	_ = m.Exit(a)
	if owner, n := m.Owner(); owner != a || n != 1 {
		t.Errorf("owner = %v, count = %d", owner, n)
	}
	_ = m.Exit(a)

	done := make(chan struct{})
	go func() {
		m.Enter(b)
		_ = m.Exit(b)
		close(done)
	}()
	<-done
}

func TestMemberIDs(t *testing.T) {
	u := NewUniverse()
	m := u.ObjectClass.FindMethod("hashCode", "()I")
	id := u.MethodID(m)
	if id == 0 || u.MethodID(m) != id {
		t.Error("method IDs should be non-zero and stable")
	}
	if got, ok := u.MethodByID(id); !ok || got != m {
		t.Error("MethodByID round trip")
	}
	if _, ok := u.MethodByID(0); ok {
		t.Error("zero ID should not resolve")
	}
	f := u.System.MustDefine(ClassDef{Name: "app/F", Fields: []FieldDef{{Name: "x", Descriptor: "I"}}}).FindField("x", "I")
	if got, ok := u.FieldByID(u.FieldID(f)); !ok || got != f {
		t.Error("FieldByID round trip")
	}
}
