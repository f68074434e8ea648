package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// SignAuditChainHash returns the hex SHA-256 of the event's canonical chain
// record. Keys are written in sorted order.
func SignAuditChainHash(event SignAuditEvent) (string, error) {
	if event.Backend == "" || event.KeyID == "" || event.Result == "" {
		return "", errors.New("audit event missing backend, key_id or result")
	}
	if event.PayloadHash == "" || event.PrevEventHash == "" {
		return "", errors.New("audit event missing payload_hash or prev_event_hash")
	}
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	writeKV(buf, "backend", string(event.Backend), false)
	writeKV(buf, "created_at", event.CreatedAt.UTC().Format(time.RFC3339Nano), false)
	writeKV(buf, "curve", string(event.Curve), false)
	writeKV(buf, "error_code", event.ErrorCode, false)
	writeKV(buf, "key_id", event.KeyID, false)
	writeKV(buf, "payload_hash", event.PayloadHash, false)
	writeKV(buf, "prev_event_hash", event.PrevEventHash, false)
	writeKV(buf, "principal_hash", event.PrincipalHash, false)
	writeKV(buf, "result", string(event.Result), false)
	writeKVNumber(buf, "seq", event.Seq, false)
	writeKV(buf, "signature_hash", event.SignatureHash, false)
	writeKV(buf, "v", AuditChainVersion, true)
	buf.WriteByte('}')
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

func writeKV(buf *bytes.Buffer, key, value string, last bool) {
	writeJSONString(buf, key)
	buf.WriteByte(':')
	writeJSONString(buf, value)
	if !last {
		buf.WriteByte(',')
	}
}

func writeKVNumber(buf *bytes.Buffer, key string, value int64, last bool) {
	writeJSONString(buf, key)
	buf.WriteByte(':')
	buf.WriteString(strconv.FormatInt(value, 10))
	if !last {
		buf.WriteByte(',')
	}
}

func writeJSONString(buf *bytes.Buffer, value string) {
	buf.WriteByte('"')
	for _, r := range value {
		switch r {
		case '"', '\\':
			buf.WriteByte('\\')
			buf.WriteRune(r)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexLower[r>>4])
				buf.WriteByte(hexLower[r&0x0f])
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

var hexLower = []byte("0123456789abcdef")
