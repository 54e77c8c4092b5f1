// Package sanitize validates caller-supplied paths, filenames and
// payloads. It is the sole gate against path traversal and resource
// exhaustion and must run before any network or store call.
package sanitize

import (
	"encoding/base64"
	"path"
	"strings"

	"github.com/staticsnack/server/internal/snackerr"
)

const (
	// MaxContentBytes is the decoded payload ceiling.
	MaxContentBytes = 10 << 20 // 10 MiB

	// MaxFileNameBytes caps a single path segment.
	MaxFileNameBytes = 255
)

// reservedNameChars are rejected in filenames regardless of origin.
const reservedNameChars = `<>:"|?*` + "`"

// CleanPath normalizes a repository-relative path: leading slashes are
// stripped, empty and "." segments dropped. Any ".." segment, backslash
// or control character fails the whole path.
func CleanPath(p string) (string, error) {
	if strings.ContainsRune(p, '\\') {
		return "", snackerr.Newf(snackerr.KindInvalidPath, "path %q contains a backslash", p)
	}
	for _, r := range p {
		if r < 0x20 || r == 0x7f {
			return "", snackerr.Newf(snackerr.KindInvalidPath, "path %q contains control characters", p)
		}
	}
	trimmed := strings.TrimLeft(p, "/")
	var segs []string
	for _, seg := range strings.Split(trimmed, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", snackerr.Newf(snackerr.KindInvalidPath, "path %q escapes the repository root", p)
		}
		segs = append(segs, seg)
	}
	if len(segs) == 0 {
		return "", snackerr.New(snackerr.KindInvalidPath, "path is empty")
	}
	out := strings.Join(segs, "/")
	if path.IsAbs(out) {
		return "", snackerr.Newf(snackerr.KindInvalidPath, "path %q is absolute", p)
	}
	return out, nil
}

// DecodeContent decodes a strict base64 payload and enforces the size
// ceiling on the decoded length.
func DecodeContent(b64 string) ([]byte, error) {
	// Cheap upper bound before decoding: 4 base64 chars per 3 bytes.
	if len(b64)/4*3 > MaxContentBytes+3 {
		return nil, snackerr.Newf(snackerr.KindFileTooLarge, "content exceeds %d bytes", MaxContentBytes)
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, snackerr.Wrap(snackerr.KindInvalidEncoding, "content is not valid base64", err)
	}
	if len(raw) > MaxContentBytes {
		return nil, snackerr.Newf(snackerr.KindFileTooLarge, "content exceeds %d bytes", MaxContentBytes)
	}
	return raw, nil
}

// CheckFileName validates a single filename. Guest-originated uploads
// additionally reject hidden (dot-prefixed) names.
func CheckFileName(name string, guest bool) error {
	if name == "" {
		return snackerr.New(snackerr.KindInvalidFileName, "filename is empty")
	}
	if len(name) > MaxFileNameBytes {
		return snackerr.Newf(snackerr.KindInvalidFileName, "filename exceeds %d bytes", MaxFileNameBytes)
	}
	if strings.ContainsAny(name, reservedNameChars) || strings.ContainsAny(name, "/\\") {
		return snackerr.Newf(snackerr.KindInvalidFileName, "filename %q contains reserved characters", name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return snackerr.Newf(snackerr.KindInvalidFileName, "filename %q contains control characters", name)
		}
	}
	if guest && strings.HasPrefix(name, ".") {
		return snackerr.Newf(snackerr.KindInvalidFileName, "hidden files are not accepted from guest uploads")
	}
	return nil
}

// ExtAllowed reports whether name's extension is in the allowlist.
// An empty allowlist permits everything.
func ExtAllowed(name string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == ext {
			return true
		}
	}
	return false
}
