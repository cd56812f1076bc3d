package record

import (
	"fmt"
	"strings"
)

// TagName is the struct tag key read by the introspector.
const TagName = "ar"

// CodecMsgpack stores an arbitrary Go value as a msgpack-encoded blob.
const CodecMsgpack = "msgpack"

// FieldTag is the parsed form of an `ar` struct tag.
type FieldTag struct {
	// Name overrides the column name.
	Name string
	// Deferred excludes the column from ordinary loads and partial saves.
	Deferred bool
	// Codec selects an encoding for values without a native column type.
	Codec string
	// Skip excludes the field from persistence.
	Skip bool
}

// ParseTag parses an `ar` tag such as "name", ",deferred", "meta,codec=msgpack"
// or "-".
func ParseTag(tag string) (FieldTag, error) {
	if tag == "" || tag == "-" {
		return FieldTag{Skip: tag == "-"}, nil
	}

	parts := strings.Split(tag, ",")
	ft := FieldTag{Name: strings.TrimSpace(parts[0])}
	if ft.Name == "-" {
		return FieldTag{}, fmt.Errorf("tag %q: \"-\" cannot be combined with options", tag)
	}

	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
		case part == "deferred":
			ft.Deferred = true
		case strings.HasPrefix(part, "codec="):
			ft.Codec = strings.TrimPrefix(part, "codec=")
			if ft.Codec != CodecMsgpack {
				return FieldTag{}, fmt.Errorf("unknown codec %q", ft.Codec)
			}
		default:
			return FieldTag{}, fmt.Errorf("unknown tag option: %q", part)
		}
	}
	return ft, nil
}
