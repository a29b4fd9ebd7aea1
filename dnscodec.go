package sentryd

import "encoding/binary"

// dnsHeaderLen is the fixed size of a DNS message header; the question
// section, if any, starts immediately after it.
const dnsHeaderLen = 12

// sinkSynthesizedTTL is the TTL, in seconds, placed in every synthesized
// block response's answer record.
const sinkSynthesizedTTL = 60

// defaultSinkAddr is the IPv4 address returned in a synthesized block
// answer when the caller doesn't override it.
var defaultSinkAddr = [4]byte{127, 0, 0, 1}

// ParseQName extracts the QNAME of a DNS query from its raw wire bytes,
// without using a general-purpose DNS library: buf must be at least
// dnsHeaderLen bytes, and the name starts at offset 12 as a sequence of
// length-prefixed labels terminated by a zero-length label. Name
// compression pointers are not expected in questions and are not followed;
// encountering one (a length byte with its top two bits set) is treated as
// a parse failure, same as a label that would read past the buffer end.
func ParseQName(buf []byte) (string, bool) {
	if len(buf) < dnsHeaderLen {
		return "", false
	}

	var name []byte
	i := dnsHeaderLen
	for {
		if i >= len(buf) {
			return "", false
		}
		length := int(buf[i])
		if length&0xC0 != 0 {
			return "", false // compression pointer, not valid in a question we emit ourselves
		}
		if length > 63 {
			return "", false
		}
		i++
		if length == 0 {
			break
		}
		if i+length > len(buf) {
			return "", false
		}
		if len(name) > 0 {
			name = append(name, '.')
		}
		name = append(name, buf[i:i+length]...)
		i += length
	}
	return string(name), true
}

// BuildQuery assembles a minimal, well-formed DNS query for name with the
// given transaction id, an A question, and the recursion-desired flag set. It exists to support round-trip tests of
// ParseQName and is otherwise unused by the interceptor, which only ever
// parses queries it did not construct.
func BuildQuery(id uint16, name string) []byte {
	buf := make([]byte, dnsHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], id)
	binary.BigEndian.PutUint16(buf[2:4], 0x0100) // RD=1
	binary.BigEndian.PutUint16(buf[4:6], 1)       // QDCOUNT=1

	for _, label := range splitLabels(name) {
		buf = append(buf, byte(len(label)))
		buf = append(buf, label...)
	}
	buf = append(buf, 0) // root label

	buf = append(buf, 0, 1) // QTYPE A
	buf = append(buf, 0, 1) // QCLASS IN
	return buf
}

func splitLabels(name string) []string {
	if name == "" {
		return nil
	}
	var labels []string
	start := 0
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == '.' {
			if i > start {
				labels = append(labels, name[start:i])
			}
			start = i + 1
		}
	}
	return labels
}

// SynthesizeBlockResponse builds a DNS response for req that resolves the
// query to sink: the request bytes are copied verbatim, the flags field is
// set to 0x8180 (QR=1, RA=1, RCODE=0), ANCOUNT becomes 1,
// and a single A answer record is appended pointing at the question name
// (via a compression pointer to offset 12) with a 60-second TTL. The
// response is always exactly len(req)+16 bytes. sink defaults to
// 127.0.0.1 when the zero value is passed.
func SynthesizeBlockResponse(req []byte, sink [4]byte) []byte {
	if sink == ([4]byte{}) {
		sink = defaultSinkAddr
	}

	resp := make([]byte, len(req), len(req)+16)
	copy(resp, req)

	binary.BigEndian.PutUint16(resp[2:4], 0x8180)
	binary.BigEndian.PutUint16(resp[6:8], 1) // ANCOUNT=1

	answer := []byte{
		0xC0, 0x0C, // name pointer to offset 12
		0x00, 0x01, // TYPE A
		0x00, 0x01, // CLASS IN
		0x00, 0x00, 0x00, sinkSynthesizedTTL, // TTL
		0x00, 0x04, // RDLENGTH
		sink[0], sink[1], sink[2], sink[3],
	}
	return append(resp, answer...)
}
