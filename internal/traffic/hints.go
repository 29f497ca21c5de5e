package traffic

import "bytes"

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// contentHint guesses a payload format from the four fingerprint bytes. It
// is a display aid with no correctness guarantee; callers must never treat
// it as authoritative.
func contentHint(fp []byte) string {
	if len(fp) == 0 {
		return "-"
	}
	if bytes.HasPrefix(fp, gzipMagic) {
		return "Gzip"
	}
	if bytes.Equal(fp, zstdMagic) {
		return "Zstd"
	}
	if bytes.Equal(fp, []byte("ping")) {
		return "Ping"
	}
	if bytes.Equal(fp, []byte("pong")) {
		return "Pong"
	}
	switch fp[0] {
	case '{', '[':
		return "JSON"
	}
	if isMsgPackLead(fp[0]) {
		return "MsgPack"
	}
	if isProtobufTag(fp[0]) {
		return "Protobuf"
	}
	return "-"
}

// isMsgPackLead matches the MessagePack fixmap (0x80-0x8f), fixarray
// (0x90-0x9f), and fixstr (0xa0-0xbf) lead bytes.
func isMsgPackLead(b byte) bool {
	return b >= 0x80 && b <= 0xbf
}

// isProtobufTag matches single-byte field tags with wire type varint (0) or
// length-delimited (2) for field numbers 1-15, the common shape of the first
// byte of an encoded protobuf message.
func isProtobufTag(b byte) bool {
	if b >= 0x80 {
		return false
	}
	field := b >> 3
	wire := b & 0x07
	return field >= 1 && field <= 15 && (wire == 0 || wire == 2)
}
