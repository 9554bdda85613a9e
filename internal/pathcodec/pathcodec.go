package pathcodec

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// The indexing pipeline keys every chunk with a base64 encoding of the
// storage path it was produced from. That key is the only field populated
// reliably across pipeline configurations, so folder and document identity
// are recovered from it at query time. The path layout below is therefore a
// contract: a `folder_<id>` segment followed by `<docID>_<filename>`. If the
// pipeline's key derivation ever changes, this package is the single point
// of adjustment.

var folderSegmentRe = regexp.MustCompile(`(?:^|/)folder_(\d+)/`)
var docSegmentRe = regexp.MustCompile(`(?:^|/)folder_\d+/(\d+)_`)

// Ref is the identity recovered from an opaque chunk key.
type Ref struct {
	FolderID   int64
	DocumentID int64
}

// Encode builds the storage path for a document. The folder id lands in a
// fixed, parseable segment so it survives the pipeline's key transformation.
func Encode(folderID, docID int64, filename string) string {
	return fmt.Sprintf("folder_%d/%d_%s", folderID, docID, SanitizeFilename(filename))
}

// Decode recovers folder and document identity from an opaque chunk key.
// Returns false on any decode or pattern failure; callers must treat that as
// "exclude", never "include".
func Decode(opaqueKey string) (Ref, bool) {
	path, ok := decodeKey(opaqueKey)
	if !ok {
		return Ref{}, false
	}
	m := folderSegmentRe.FindStringSubmatch(path)
	if m == nil {
		return Ref{}, false
	}
	folderID, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Ref{}, false
	}
	ref := Ref{FolderID: folderID}
	if dm := docSegmentRe.FindStringSubmatch(path); dm != nil {
		if docID, err := strconv.ParseInt(dm[1], 10, 64); err == nil {
			ref.DocumentID = docID
		}
	}
	return ref, true
}

// OpaqueKey applies the pipeline's key transformation to a storage path.
// Used when addressing chunks by parent key (metadata merge) and as the
// reference transform in round-trip checks.
func OpaqueKey(storagePath string) string {
	return base64.StdEncoding.EncodeToString([]byte(storagePath))
}

// DecodeFolderID is the fail-closed folder extraction used by every
// tenant-scoped retrieval path.
func DecodeFolderID(opaqueKey string) (int64, bool) {
	ref, ok := Decode(opaqueKey)
	if !ok {
		return 0, false
	}
	return ref.FolderID, true
}

func decodeKey(key string) (string, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false
	}
	// The pipeline emits unpadded url-safe base64; older runs used the
	// standard alphabet with padding. Try both.
	if decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(key, "=")); err == nil {
		return string(decoded), true
	}
	padded := key
	if n := len(padded) % 4; n != 0 {
		padded += strings.Repeat("=", 4-n)
	}
	if decoded, err := base64.StdEncoding.DecodeString(padded); err == nil {
		return string(decoded), true
	}
	return "", false
}

// SanitizeFilename strips path separators so a user-supplied name cannot
// introduce extra segments into the storage path.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "" {
		name = "document.pdf"
	}
	return name
}
