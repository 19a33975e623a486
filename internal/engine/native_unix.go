//go:build darwin || linux

package engine

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"

	pierrors "github.com/Aman-CERP/postindex/internal/errors"
)

type nativeLib struct {
	handle     uintptr
	freeString func(*byte)
}

func openNativeLib(path string) (*nativeLib, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, pierrors.ConfigError(fmt.Sprintf("failed to load engine library %s", path), err).
			WithSuggestion("check engine.library_path or use engine.provider: builtin")
	}
	lib := &nativeLib{handle: handle}
	if sym, err := purego.Dlsym(handle, "free_string"); err == nil {
		purego.RegisterFunc(&lib.freeString, sym)
	}
	return lib, nil
}

// take copies a C string returned by the library and releases it.
func (l *nativeLib) take(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	s := string(unsafe.Slice(p, n))
	if l.freeString != nil {
		l.freeString(p)
	}
	return s
}

func (l *nativeLib) bytesFunc(name string) func([]byte) string {
	sym, err := purego.Dlsym(l.handle, name)
	if err != nil {
		return nil
	}
	var fn func(unsafe.Pointer, uintptr) *byte
	purego.RegisterFunc(&fn, sym)
	return func(data []byte) string {
		if len(data) == 0 {
			return l.take(fn(nil, 0))
		}
		return l.take(fn(unsafe.Pointer(&data[0]), uintptr(len(data))))
	}
}

func (l *nativeLib) stringFunc(name string) func(string) string {
	sym, err := purego.Dlsym(l.handle, name)
	if err != nil {
		return nil
	}
	var fn func(string) *byte
	purego.RegisterFunc(&fn, sym)
	return func(s string) string { return l.take(fn(s)) }
}

func (l *nativeLib) voidFunc(name string) func() string {
	sym, err := purego.Dlsym(l.handle, name)
	if err != nil {
		return nil
	}
	var fn func() *byte
	purego.RegisterFunc(&fn, sym)
	return func() string { return l.take(fn()) }
}
