package branchfs

import (
	"strings"
)

const (
	// WhiteoutPrefix is the prefix for whiteout files (AUFS style)
	WhiteoutPrefix = ".wh."
	// WhiteoutMetaPrefix marks whiteout-namespace files that do not hide a name
	WhiteoutMetaPrefix = WhiteoutPrefix + WhiteoutPrefix
	// OpaqueMarker marks a directory as opaque (hides all lower branch contents)
	OpaqueMarker = WhiteoutMetaPrefix + ".opq"

	// DefaultMaxNameLen is the name limit assumed for branch filesystems
	DefaultMaxNameLen = 255
)

// NameCodec maps logical names to whiteout names under a branch name limit.
type NameCodec struct {
	MaxNameLen int
}

// DefaultCodec uses DefaultMaxNameLen.
var DefaultCodec = NameCodec{MaxNameLen: DefaultMaxNameLen}

// EncodeWhiteoutName returns the whiteout file name for name using DefaultCodec.
func EncodeWhiteoutName(name string) (string, error) {
	return DefaultCodec.Encode(name)
}

// DecodeWhiteoutName returns the logical name hidden by a whiteout entry.
func DecodeWhiteoutName(entry string) (string, bool) {
	return DefaultCodec.Decode(entry)
}

// Validate checks that name can live in the merged namespace.
func (c NameCodec) Validate(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return ErrInvalidName
	case strings.ContainsRune(name, '/'):
		return ErrInvalidName
	case strings.HasPrefix(name, WhiteoutPrefix):
		// reserved: such a name could never be told apart from a marker
		return ErrInvalidName
	}
	if len(name) > c.limit() {
		return ErrNameTooLong
	}
	return nil
}

// Encode returns WhiteoutPrefix+name.
func (c NameCodec) Encode(name string) (string, error) {
	if err := c.Validate(name); err != nil {
		return "", err
	}
	wh := WhiteoutPrefix + name
	if len(wh) > c.limit() {
		return "", ErrNameTooLong
	}
	return wh, nil
}

// Decode is the inverse of Encode for names observed in a branch directory.
// Meta entries such as the opaque marker never decode.
func (c NameCodec) Decode(entry string) (string, bool) {
	if !strings.HasPrefix(entry, WhiteoutPrefix) || strings.HasPrefix(entry, WhiteoutMetaPrefix) {
		return "", false
	}
	name := entry[len(WhiteoutPrefix):]
	if name == "" || name == "." || name == ".." {
		return "", false
	}
	return name, true
}

func (c NameCodec) limit() int {
	if c.MaxNameLen <= 0 {
		return DefaultMaxNameLen
	}
	return c.MaxNameLen
}

// IsWhiteout reports whether a directory entry name belongs to the whiteout namespace.
func IsWhiteout(name string) bool {
	return strings.HasPrefix(name, WhiteoutPrefix)
}

// IsOpaqueMarker reports whether name is the opaque directory marker.
func IsOpaqueMarker(name string) bool {
	return name == OpaqueMarker
}
