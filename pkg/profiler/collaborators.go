package profiler

import "fmt"

// EventSink receives host execution events one at a time, in true execution
// order. The host must serialize deliveries; the sink is never re-entered.
type EventSink interface {
	ProcessEvent(ev Event) error
}

// EventSource is the host-side hook the engine attaches to on Start and
// detaches from on Stop.
type EventSource interface {
	Attach(sink EventSink) error
	Detach() error
}

// SourceLocator resolves a compiled-code identity into its display name and
// source lines. Called once per CodeID, at first-call time. A resolution
// failure is fatal for that function's registration only.
type SourceLocator interface {
	Locate(code CodeID) (FunctionSource, error)
}

// NameResolver turns a native-callee descriptor into the stable display
// name used as the native registry key.
type NameResolver interface {
	ResolveName(ref NativeRef) (string, error)
}

type NameResolverFunc func(ref NativeRef) (string, error)

func (f NameResolverFunc) ResolveName(ref NativeRef) (string, error) {
	return f(ref)
}

// QualifiedNameResolver formats native callables as "module.name".
func QualifiedNameResolver() NameResolver {
	return NameResolverFunc(func(ref NativeRef) (string, error) {
		if ref.Name == "" {
			return "", fmt.Errorf("native callable has no name (module %q)", ref.Module)
		}
		if ref.Module == "" {
			return ref.Name, nil
		}
		return ref.Module + "." + ref.Name, nil
	})
}
