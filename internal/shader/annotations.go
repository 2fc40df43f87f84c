package shader

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/gogpu/rendertoy/internal/param"
)

var (
	// declNameRe finds the declared name in "name: type" or "var name: type".
	declNameRe = regexp.MustCompile(`(\w+)\s*:`)

	// annotationRe matches "@key" or "@key(value)" inside a line comment.
	annotationRe = regexp.MustCompile(`@(\w+)(?:\(([^)]*)\))?`)

	// storageDeclRe matches "var name: texture_storage_2d<format, access>".
	storageDeclRe = regexp.MustCompile(`var\s+(\w+)\s*:\s*texture_storage_2d\s*<\s*(\w+)\s*,\s*(\w+)\s*>`)
)

// ParseAnnotations collects annotations from declaration lines of WGSL
// source. A line such as
//
//	radius: f32, // @min(0) @max(32)
//
// yields {"radius": {"min": "0", "max": "32"}}. Flags without a value map to
// the empty string. Lines without a trailing comment or without annotations
// are ignored.
func ParseAnnotations(src string) map[string]param.Annotations {
	out := make(map[string]param.Annotations)

	sc := bufio.NewScanner(strings.NewReader(src))
	for sc.Scan() {
		code, comment, ok := strings.Cut(sc.Text(), "//")
		if !ok {
			continue
		}
		m := declNameRe.FindStringSubmatch(code)
		if m == nil {
			continue
		}
		found := annotationRe.FindAllStringSubmatch(comment, -1)
		if len(found) == 0 {
			continue
		}

		notes := out[m[1]]
		if notes == nil {
			notes = make(param.Annotations, len(found))
			out[m[1]] = notes
		}
		for _, a := range found {
			notes[a[1]] = strings.TrimSpace(a[2])
		}
	}
	return out
}
