package sourcemap

import (
	"fmt"
	"strings"
)

const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var base64Index = func() [128]int8 {
	var idx [128]int8
	for i := range idx {
		idx[i] = -1
	}
	for i, c := range base64Chars {
		idx[c] = int8(i)
	}
	return idx
}()

// encodeVLQ appends the base64 VLQ encoding of value to sb.
func encodeVLQ(sb *strings.Builder, value int) {
	vlq := value << 1
	if value < 0 {
		vlq = (-value << 1) | 1
	}
	for {
		digit := vlq & 0x1f
		vlq >>= 5
		if vlq != 0 {
			digit |= 0x20
		}
		sb.WriteByte(base64Chars[digit])
		if vlq == 0 {
			return
		}
	}
}

// decodeVLQ reads one VLQ value from s, returning the value and the number
// of bytes consumed.
func decodeVLQ(s string) (int, int, error) {
	var value, shift, n int
	for {
		if n >= len(s) {
			return 0, 0, fmt.Errorf("truncated VLQ sequence")
		}
		c := s[n]
		if c >= 128 || base64Index[c] < 0 {
			return 0, 0, fmt.Errorf("invalid VLQ character %q", c)
		}
		digit := int(base64Index[c])
		n++
		value |= (digit & 0x1f) << shift
		if digit&0x20 == 0 {
			break
		}
		shift += 5
	}
	if value&1 != 0 {
		return -(value >> 1), n, nil
	}
	return value >> 1, n, nil
}

// encodeMappings encodes per-line segments into the delta-encoded mappings
// string. Segments within a line must already be in generated-column order.
func encodeMappings(lines [][]segment) string {
	var sb strings.Builder
	var prevSrcIndex, prevSrcLine, prevSrcCol int

	for lineNo, segs := range lines {
		if lineNo > 0 {
			sb.WriteByte(';')
		}
		prevGenCol := 0
		for i, seg := range segs {
			if i > 0 {
				sb.WriteByte(',')
			}
			encodeVLQ(&sb, seg.genCol-prevGenCol)
			prevGenCol = seg.genCol
			if !seg.hasSource {
				continue
			}
			encodeVLQ(&sb, seg.srcIndex-prevSrcIndex)
			encodeVLQ(&sb, seg.srcLine-prevSrcLine)
			encodeVLQ(&sb, seg.srcCol-prevSrcCol)
			prevSrcIndex = seg.srcIndex
			prevSrcLine = seg.srcLine
			prevSrcCol = seg.srcCol
		}
	}
	return sb.String()
}

// decodeMappings parses a mappings string into per-line segments. Name
// indexes are accepted on the wire but discarded.
func decodeMappings(mappings string) ([][]segment, error) {
	var (
		lines      [][]segment
		srcIndex   int
		srcLine    int
		srcCol     int
	)
	for _, line := range strings.Split(mappings, ";") {
		var segs []segment
		genCol := 0
		for _, raw := range strings.Split(line, ",") {
			if raw == "" {
				continue
			}
			fields := make([]int, 0, 5)
			for pos := 0; pos < len(raw); {
				v, n, err := decodeVLQ(raw[pos:])
				if err != nil {
					return nil, err
				}
				fields = append(fields, v)
				pos += n
			}
			switch len(fields) {
			case 1, 4, 5:
			default:
				return nil, fmt.Errorf("mapping segment has %d fields", len(fields))
			}
			genCol += fields[0]
			seg := segment{genCol: genCol}
			if len(fields) >= 4 {
				srcIndex += fields[1]
				srcLine += fields[2]
				srcCol += fields[3]
				seg.srcIndex = srcIndex
				seg.srcLine = srcLine
				seg.srcCol = srcCol
				seg.hasSource = true
			}
			segs = append(segs, seg)
		}
		lines = append(lines, segs)
	}
	return lines, nil
}
