// Package gitobject implements the git-compatible object header framing
// "<type> <size>\0<content>". It only builds and
// parses the in-memory framing; compression and storage are handled by the
// zlibcodec and cas packages respectively.
package gitobject

import (
	"bytes"
	"strconv"

	"actorfs/errs"
)

// Type is one of the four git object kinds.
type Type string

const (
	Blob   Type = "blob"
	Tree   Type = "tree"
	Commit Type = "commit"
	Tag    Type = "tag"
)

// Valid reports whether t is one of the recognized object types.
func (t Type) Valid() bool {
	switch t {
	case Blob, Tree, Commit, Tag:
		return true
	default:
		return false
	}
}

// Object is a parsed, framed git object: a type tag, its declared size and
// a zero-copy view of the content slice (no copy is made on Parse; callers
// that need to retain content beyond the lifetime of the source buffer
// should copy it themselves).
type Object struct {
	Type    Type
	Size    int64
	Content []byte
}

// BuildHeader returns "<type> <size>\0" for the given type and content
// length.
func BuildHeader(t Type, size int64) []byte {
	var b bytes.Buffer
	b.WriteString(string(t))
	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(size, 10))
	b.WriteByte(0)
	return b.Bytes()
}

// Frame builds the full "<header><content>" byte sequence for content under
// type t. Fails with INVALID_TYPE if t is not one of the four valid kinds.
func Frame(t Type, content []byte) ([]byte, error) {
	if !t.Valid() {
		return nil, errs.New(errs.InvalidType, "", "invalid object type "+string(t))
	}
	header := BuildHeader(t, int64(len(content)))
	out := make([]byte, 0, len(header)+len(content))
	out = append(out, header...)
	out = append(out, content...)
	return out, nil
}

// Parse splits a framed byte sequence back into type/size/content.
//
// Parsing locates the first 0x20 (MISSING_SPACE if absent), then the first
// 0x00 after it (MISSING_NULL_BYTE if absent), rejects a non-integer or
// negative declared size (INVALID_SIZE), and rejects a declared size that
// disagrees with the observed content length (SIZE_MISMATCH).
func Parse(framed []byte) (*Object, error) {
	if len(framed) == 0 {
		return nil, errs.New(errs.EmptyData, "", "empty object data")
	}

	spaceIdx := bytes.IndexByte(framed, ' ')
	if spaceIdx < 0 {
		return nil, errs.New(errs.MissingSpace, "", "no space separator in object header")
	}

	nullIdx := bytes.IndexByte(framed[spaceIdx+1:], 0)
	if nullIdx < 0 {
		return nil, errs.New(errs.MissingNull, "", "no null byte terminating object header")
	}
	nullIdx += spaceIdx + 1

	t := Type(framed[:spaceIdx])
	if !t.Valid() {
		return nil, errs.New(errs.InvalidType, "", "invalid object type "+string(t))
	}

	sizeStr := string(framed[spaceIdx+1 : nullIdx])
	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil || size < 0 {
		return nil, errs.New(errs.InvalidSize, "", "invalid declared size "+sizeStr)
	}

	content := framed[nullIdx+1:]
	if int64(len(content)) != size {
		return nil, errs.Wrapf(errs.SizeMismatch, "", "declared size %d, observed %d", size, len(content))
	}

	return &Object{Type: t, Size: size, Content: content}, nil
}
