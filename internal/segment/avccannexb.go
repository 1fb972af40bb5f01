package segment

// avccToAnnexB rewrites a sample payload of [lengthSize-byte
// length][NAL]... pairs into Annex B, replacing each length prefix with a
// four-byte 00 00 00 01 start code. mediacommon's h264.AVCC assumes a
// fixed 4-byte length field, but avcC's lengthSizeMinusOne allows 1, 2, or
// 4, so the conversion is hand-rolled here the same way
// internal/sampleaes hand-rolls its own length-prefix parsing.
func avccToAnnexB(payload []byte, lengthSize int) []byte {
	out := make([]byte, 0, len(payload)+len(payload)/8+4)
	pos := 0
	for pos+lengthSize <= len(payload) {
		n := 0
		for i := 0; i < lengthSize; i++ {
			n = n<<8 | int(payload[pos+i])
		}
		pos += lengthSize
		if n < 0 || pos+n > len(payload) {
			break
		}
		out = append(out, 0x00, 0x00, 0x00, 0x01)
		out = append(out, payload[pos:pos+n]...)
		pos += n
	}
	return out
}
