package nfc

import "encoding/binary"

// TLV types for NDEF
const (
	TLVNull        = 0x00 // Null TLV
	TLVLockCtrl    = 0x01 // Lock Control TLV
	TLVMemCtrl     = 0x02 // Memory Control TLV
	TLVNDEF        = 0x03 // NDEF Message TLV
	TLVProprietary = 0xFD // Proprietary TLV
	TLVTerminator  = 0xFE // Terminator TLV
)

// TLVEncode wraps data in a TLV of tlvType followed by a terminator TLV.
// Lengths of 0xFF and above use the three byte format.
func TLVEncode(data []byte, tlvType byte) []byte {
	out := make([]byte, 0, len(data)+5)
	out = append(out, tlvType)
	if len(data) < 0xFF {
		out = append(out, byte(len(data)))
	} else {
		out = append(out, 0xFF)
		out = binary.BigEndian.AppendUint16(out, uint16(len(data)))
	}
	out = append(out, data...)
	return append(out, TLVTerminator)
}

// FindNDEF scans a TLV area and returns the value of the first NDEF message
// TLV. found is false when the area ends or hits a terminator first. A TLV
// that runs past the end of data is an error.
func FindNDEF(data []byte) (msg []byte, found bool, err error) {
	offset := 0
	for offset < len(data) {
		tlvType := data[offset]
		switch tlvType {
		case TLVNull:
			offset++
			continue
		case TLVTerminator:
			return nil, false, nil
		}

		lenStart := offset + 1
		if lenStart >= len(data) {
			return nil, false, NewInvalidDataError("FindNDEF", "TLV 0x%02X at offset %d: length missing", tlvType, offset)
		}

		length := int(data[lenStart])
		valueStart := lenStart + 1
		if data[lenStart] == 0xFF {
			if lenStart+3 > len(data) {
				return nil, false, NewInvalidDataError("FindNDEF", "TLV 0x%02X at offset %d: long length truncated", tlvType, offset)
			}
			length = int(binary.BigEndian.Uint16(data[lenStart+1 : lenStart+3]))
			valueStart = lenStart + 3
		}

		if valueStart+length > len(data) {
			return nil, false, NewInvalidDataError("FindNDEF", "TLV 0x%02X at offset %d: value of %d bytes exceeds area", tlvType, offset, length)
		}
		if tlvType == TLVNDEF {
			return data[valueStart : valueStart+length], true, nil
		}
		offset = valueStart + length
	}
	return nil, false, nil
}
