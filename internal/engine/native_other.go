//go:build !(darwin || linux)

package engine

import (
	"runtime"

	pierrors "github.com/Aman-CERP/postindex/internal/errors"
)

type nativeLib struct{}

func openNativeLib(path string) (*nativeLib, error) {
	return nil, pierrors.ConfigError("native engine libraries are not supported on "+runtime.GOOS, nil).
		WithSuggestion("use engine.provider: builtin")
}

func (l *nativeLib) bytesFunc(string) func([]byte) string { return nil }
func (l *nativeLib) stringFunc(string) func(string) string { return nil }
func (l *nativeLib) voidFunc(string) func() string         { return nil }
