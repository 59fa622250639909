package mssmt

// bitIndex returns the bit of key at index idx, where idx 0 is the MSB of
// the first byte. The returned bit selects the branch child taken at
// depth idx: 0 for left, 1 for right.
func bitIndex(idx uint8, key *[HashSize]byte) uint8 {
	return (key[idx/8] >> (7 - (idx % 8))) & 1
}

// flipBit inverts the bit of key at index idx in place.
func flipBit(key *[HashSize]byte, idx uint8) {
	key[idx/8] ^= 1 << (7 - (idx % 8))
}
