package sentryd

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildClientHello assembles a minimal, well-formed TLS ClientHello record
// carrying a single server_name extension with the given host name, for
// the ParseClientHelloSNI tests and the stream interceptor's SNI test.
func buildClientHello(sni string) []byte {
	var handshake []byte
	handshake = append(handshake, 0x03, 0x03)      // legacy_version
	handshake = append(handshake, make([]byte, 32)...) // random
	handshake = append(handshake, 0x00)            // session_id length = 0
	handshake = append(handshake, 0x00, 0x02)      // cipher_suites length = 2
	handshake = append(handshake, 0x00, 0x00)      // one cipher suite
	handshake = append(handshake, 0x01)            // compression_methods length = 1
	handshake = append(handshake, 0x00)            // null compression

	var serverName []byte
	serverName = append(serverName, 0x00)                                  // name_type = host_name
	nameLenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(nameLenBuf, uint16(len(sni)))
	serverName = append(serverName, nameLenBuf...)
	serverName = append(serverName, sni...)

	serverNameListLenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(serverNameListLenBuf, uint16(len(serverName)))
	var sniExt []byte
	sniExt = append(sniExt, serverNameListLenBuf...)
	sniExt = append(sniExt, serverName...)

	var extensions []byte
	extensions = append(extensions, 0x00, 0x00) // extension type = server_name
	extLenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(extLenBuf, uint16(len(sniExt)))
	extensions = append(extensions, extLenBuf...)
	extensions = append(extensions, sniExt...)

	extsLenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(extsLenBuf, uint16(len(extensions)))
	handshake = append(handshake, extsLenBuf...)
	handshake = append(handshake, extensions...)

	var hs []byte
	hs = append(hs, 0x01) // ClientHello
	lenBuf := make([]byte, 3)
	hsLen := len(handshake)
	lenBuf[0] = byte(hsLen >> 16)
	lenBuf[1] = byte(hsLen >> 8)
	lenBuf[2] = byte(hsLen)
	hs = append(hs, lenBuf...)
	hs = append(hs, handshake...)

	var record []byte
	record = append(record, 0x16)       // handshake record
	record = append(record, 0x03, 0x01) // legacy_record_version
	recLenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(recLenBuf, uint16(len(hs)))
	record = append(record, recLenBuf...)
	record = append(record, hs...)

	return record
}

func TestParseClientHelloSNIRoundTrip(t *testing.T) {
	hello := buildClientHello("ads.example.com")
	got, err := ParseClientHelloSNI(hello)
	require.NoError(t, err)
	require.Equal(t, "ads.example.com", got)
}

func TestParseClientHelloSNINotHandshake(t *testing.T) {
	_, err := ParseClientHelloSNI([]byte{0x17, 0x03, 0x01, 0x00, 0x00})
	require.ErrorIs(t, err, ErrNoSNI)
}

func TestParseClientHelloSNITruncated(t *testing.T) {
	hello := buildClientHello("ads.example.com")
	_, err := ParseClientHelloSNI(hello[:20])
	require.ErrorIs(t, err, ErrNoSNI)
}

func TestParseClientHelloSNIEmptyInput(t *testing.T) {
	_, err := ParseClientHelloSNI(nil)
	require.ErrorIs(t, err, ErrNoSNI)
}
