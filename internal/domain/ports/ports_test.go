package ports

import (
	"context"
	"reflect"
	"testing"

	"streamcast/internal/domain"
)

func TestTransportInterface(t *testing.T) {
	typ := reflect.TypeOf((*Transport)(nil)).Elem()

	assertMethod(t, typ, "Kind", nil, []reflect.Type{reflect.TypeOf(domain.TransportKind(""))})
	assertMethod(t, typ, "Available", []reflect.Type{contextType()}, []reflect.Type{errorType()})
	assertMethod(t, typ, "Start", []reflect.Type{
		contextType(),
		reflect.TypeOf(""),
		reflect.TypeOf(domain.StartOptions{}),
	}, []reflect.Type{
		reflect.TypeOf(domain.StreamID("")),
		errorType(),
	})
	assertMethod(t, typ, "Subscribe", []reflect.Type{
		reflect.TypeOf(domain.StreamID("")),
		reflect.TypeOf(SnapshotFunc(nil)),
	}, []reflect.Type{
		reflect.TypeOf(func() {}),
		errorType(),
	})
	assertMethod(t, typ, "Stop", []reflect.Type{contextType(), reflect.TypeOf(domain.StreamID(""))}, []reflect.Type{errorType()})
	assertMethod(t, typ, "Pause", []reflect.Type{contextType(), reflect.TypeOf(domain.StreamID(""))}, []reflect.Type{errorType()})
	assertMethod(t, typ, "Resume", []reflect.Type{contextType(), reflect.TypeOf(domain.StreamID(""))}, []reflect.Type{errorType()})
	assertMethod(t, typ, "VideoCandidates", []reflect.Type{contextType(), reflect.TypeOf(domain.StreamID(""))}, []reflect.Type{
		reflect.SliceOf(reflect.TypeOf(domain.VideoCandidate{})),
		errorType(),
	})
	assertMethod(t, typ, "SelectFile", []reflect.Type{contextType(), reflect.TypeOf(domain.StreamID("")), reflect.TypeOf(0)}, []reflect.Type{errorType()})
}

func TestHostEngineInterface(t *testing.T) {
	typ := reflect.TypeOf((*HostEngine)(nil)).Elem()

	assertMethod(t, typ, "Start", []reflect.Type{
		contextType(),
		reflect.TypeOf(""),
		reflect.TypeOf(domain.StartOptions{}),
	}, []reflect.Type{errorType()})
	assertMethod(t, typ, "Stop", []reflect.Type{contextType()}, []reflect.Type{errorType()})
	assertMethod(t, typ, "Pause", []reflect.Type{contextType()}, []reflect.Type{errorType()})
	assertMethod(t, typ, "Resume", []reflect.Type{contextType()}, []reflect.Type{errorType()})
	assertMethod(t, typ, "Files", []reflect.Type{contextType()}, []reflect.Type{
		reflect.SliceOf(reflect.TypeOf(domain.VideoCandidate{})),
		errorType(),
	})
	assertMethod(t, typ, "SelectFile", []reflect.Type{contextType(), reflect.TypeOf(0)}, []reflect.Type{errorType()})
	assertMethod(t, typ, "Events", nil, []reflect.Type{reflect.TypeOf((<-chan EngineEvent)(nil))})
	assertMethod(t, typ, "Close", nil, []reflect.Type{errorType()})
}

func assertMethod(t *testing.T, typ reflect.Type, name string, in []reflect.Type, out []reflect.Type) {
	t.Helper()
	method, ok := typ.MethodByName(name)
	if !ok {
		t.Fatalf("missing method %s", name)
	}

	if method.Type.NumIn() != len(in) {
		t.Fatalf("%s NumIn = %d, want %d", name, method.Type.NumIn(), len(in))
	}
	for i, typIn := range in {
		if got := method.Type.In(i); got != typIn {
			t.Fatalf("%s In[%d] = %s, want %s", name, i, got, typIn)
		}
	}

	if method.Type.NumOut() != len(out) {
		t.Fatalf("%s NumOut = %d, want %d", name, method.Type.NumOut(), len(out))
	}
	for i, typOut := range out {
		if got := method.Type.Out(i); got != typOut {
			t.Fatalf("%s Out[%d] = %s, want %s", name, i, got, typOut)
		}
	}
}

func contextType() reflect.Type {
	return reflect.TypeOf((*context.Context)(nil)).Elem()
}

func errorType() reflect.Type {
	return reflect.TypeOf((*error)(nil)).Elem()
}
