// Package traffic groups captured WebSocket frames into reviewable clusters
// without any protocol schema knowledge. The grouping key is deliberately
// coarse: direction, the hex of the first four payload bytes, and a size
// bucket. It is a heuristic for "probably the same message type", never an
// exact match.
package traffic

import (
	"encoding/base64"
	"encoding/hex"
	"sort"

	"github.com/dgnsrekt/netlens/internal/observe"
)

// Size bucket boundaries in payload bytes. Fixed constants, not tunable.
const (
	bucketTinyMax   = 32
	bucketSmallMax  = 128
	bucketMediumMax = 512
	bucketLargeMax  = 2048
)

const fingerprintLen = 4

// sampleFrames is how many member frame indices a group carries inline.
const sampleFrames = 3

// Group is one cluster of frames sharing (direction, fingerprint, bucket).
type Group struct {
	ID          string                 `json:"id"`
	Direction   observe.FrameDirection `json:"direction"`
	Fingerprint string                 `json:"fingerprint"`
	SizeBucket  string                 `json:"size_bucket"`
	Count       int                    `json:"count"`
	MinSize     int                    `json:"min_size"`
	MaxSize     int                    `json:"max_size"`
	Hint        string                 `json:"hint"`
	Samples     []int                  `json:"sample_frames"`
}

// Summary is the full analysis result for one connection's frame list.
// Members maps group ID to every member frame index for drill-down.
type Summary struct {
	ConnectionID int64            `json:"connection_id"`
	URL          string           `json:"url"`
	TotalFrames  int              `json:"total_frames"`
	Sent         int              `json:"sent"`
	Received     int              `json:"received"`
	DurationMS   float64          `json:"duration_ms"`
	Groups       []Group          `json:"groups"`
	Members      map[string][]int `json:"members"`
}

type groupKey struct {
	direction   observe.FrameDirection
	fingerprint string
	bucket      string
}

type groupAccum struct {
	key     groupKey
	first   int // index of first member frame, breaks count ties
	count   int
	minSize int
	maxSize int
	hint    string
	members []int
}

// Analyze is pure and re-entrant: the same frame list always yields the same
// groups, IDs, and hints. Sorting is by descending count with ties broken by
// first appearance.
func Analyze(frames []observe.Frame, connectionID int64, url string) Summary {
	summary := Summary{
		ConnectionID: connectionID,
		URL:          url,
		TotalFrames:  len(frames),
		Groups:       []Group{},
		Members:      map[string][]int{},
	}

	accums := make(map[groupKey]*groupAccum)
	var order []*groupAccum

	for i := range frames {
		f := &frames[i]
		switch f.Direction {
		case observe.FrameSent:
			summary.Sent++
		case observe.FrameReceived:
			summary.Received++
		}

		fp := fingerprint(f)
		size := payloadSize(f)
		key := groupKey{direction: f.Direction, fingerprint: hex.EncodeToString(fp), bucket: sizeBucket(size)}

		acc, ok := accums[key]
		if !ok {
			acc = &groupAccum{key: key, first: i, minSize: size, maxSize: size, hint: contentHint(fp)}
			accums[key] = acc
			order = append(order, acc)
		}
		acc.count++
		if size < acc.minSize {
			acc.minSize = size
		}
		if size > acc.maxSize {
			acc.maxSize = size
		}
		acc.members = append(acc.members, i)
	}

	if len(frames) > 0 {
		summary.DurationMS = frames[len(frames)-1].TimestampMS - frames[0].TimestampMS
	}

	// order is already in first-appearance order, so a stable sort by count
	// gives the documented tie-break.
	sort.SliceStable(order, func(a, b int) bool { return order[a].count > order[b].count })

	for i, acc := range order {
		id := letterID(i)
		g := Group{
			ID:          id,
			Direction:   acc.key.direction,
			Fingerprint: acc.key.fingerprint,
			SizeBucket:  acc.key.bucket,
			Count:       acc.count,
			MinSize:     acc.minSize,
			MaxSize:     acc.maxSize,
			Hint:        acc.hint,
			Samples:     acc.members[:min(sampleFrames, len(acc.members))],
		}
		summary.Groups = append(summary.Groups, g)
		summary.Members[id] = acc.members
	}

	return summary
}

// fingerprint returns the first four bytes of the decoded payload. Binary
// frames are stored decoded already; text payloads that look base64-encoded
// are decoded first, otherwise the leading character bytes are used as-is.
func fingerprint(f *observe.Frame) []byte {
	data := f.Payload
	if f.Opcode == observe.OpcodeText && looksBase64(data) {
		if decoded, err := base64.StdEncoding.DecodeString(string(data)); err == nil {
			data = decoded
		}
	}
	if len(data) > fingerprintLen {
		data = data[:fingerprintLen]
	}
	return data
}

func payloadSize(f *observe.Frame) int {
	if f.Truncated {
		return f.OriginalSize
	}
	return len(f.Payload)
}

func sizeBucket(n int) string {
	switch {
	case n < bucketTinyMax:
		return "tiny"
	case n < bucketSmallMax:
		return "small"
	case n < bucketMediumMax:
		return "medium"
	case n < bucketLargeMax:
		return "large"
	default:
		return "xlarge"
	}
}

// looksBase64 is a conservative check: long enough to matter, padded to a
// multiple of four, and drawn entirely from the base64 alphabet.
func looksBase64(data []byte) bool {
	if len(data) < 8 || len(data)%4 != 0 {
		return false
	}
	for i, b := range data {
		switch {
		case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b >= '0' && b <= '9', b == '+', b == '/':
		case b == '=' && i >= len(data)-2:
		default:
			return false
		}
	}
	return true
}

// letterID converts a zero-based index to a bijective base-26 letter code:
// 0=A, 25=Z, 26=AA, 27=AB, ...
func letterID(i int) string {
	n := i + 1
	var out []byte
	for n > 0 {
		n--
		out = append([]byte{byte('A' + n%26)}, out...)
		n /= 26
	}
	return string(out)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
