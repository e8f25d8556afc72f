package linker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf16"
)

// MangleName returns the native symbol name for a method. The short form is
// Java_<class>_<method>; the long form appends __<argument descriptors> and
// is used to tell overloads apart.
func MangleName(class, method, descriptor string, long bool) string {
	var b strings.Builder
	b.WriteString("Java_")
	mangleInto(&b, class)
	b.WriteByte('_')
	mangleInto(&b, method)
	if long {
		b.WriteString("__")
		args := descriptor
		if i := strings.IndexByte(args, '('); i >= 0 {
			args = args[i+1:]
		}
		if i := strings.IndexByte(args, ')'); i >= 0 {
			args = args[:i]
		}
		mangleInto(&b, args)
	}
	return b.String()
}

func mangleInto(b *strings.Builder, s string) {
	for _, u := range utf16.Encode([]rune(s)) {
		switch {
		case u == '/':
			b.WriteByte('_')
		case u == '_':
			b.WriteString("_1")
		case u == ';':
			b.WriteString("_2")
		case u == '[':
			b.WriteString("_3")
		case u < 0x80 && isAlnum(byte(u)):
			b.WriteByte(byte(u))
		default:
			fmt.Fprintf(b, "_0%04x", u)
		}
	}
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// MapLibraryName maps a library name to its platform file name.
func MapLibraryName(name string) string {
	return "lib" + name + ".so"
}

// FindLibrary returns the first file named MapLibraryName(name) in paths.
func FindLibrary(name string, paths []string) (string, bool) {
	file := MapLibraryName(name)
	for _, dir := range paths {
		p := filepath.Join(dir, file)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}
