package cluster

import "strings"

// SlotCount is the number of hash slots of a cluster.
const SlotCount = 16384

var crc16tab [256]uint16

func init() {
	// CRC16-CCITT (XMODEM), polynomial 0x1021
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		crc16tab[i] = crc
	}
}

func crc16(s string) uint16 {
	var crc uint16
	for i := 0; i < len(s); i++ {
		crc = crc<<8 ^ crc16tab[byte(crc>>8)^s[i]]
	}
	return crc
}

// HashTag returns the part of key that is hashed: the bytes between the
// first { and the next }, or the whole key when that section is missing or
// empty.
func HashTag(key string) string {
	start := strings.IndexByte(key, '{')
	if start < 0 {
		return key
	}
	end := strings.IndexByte(key[start+1:], '}')
	if end <= 0 {
		return key
	}
	return key[start+1 : start+1+end]
}

// Slot maps a key to its hash slot.
func Slot(key string) int {
	return int(crc16(HashTag(key)) % SlotCount)
}
