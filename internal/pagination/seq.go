package pagination

import (
	"encoding/base64"
	"strconv"
)

// EncodeSeqCursor creates a base64-encoded cursor from a sequence number.
// Used for streams ordered by a monotonically increasing sequence, such as
// conversation turns.
func EncodeSeqCursor(lastSeq int64) string {
	if lastSeq <= 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(strconv.FormatInt(lastSeq, 10)))
}

// DecodeSeqCursor decodes a base64-encoded sequence cursor.
func DecodeSeqCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, ErrInvalidCursor
	}

	seq, err := strconv.ParseInt(string(decoded), 10, 64)
	if err != nil || seq <= 0 {
		return 0, ErrInvalidCursor
	}

	return seq, nil
}
