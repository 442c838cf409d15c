package nfc

// NDEFState describes how a tag relates to NDEF.
type NDEFState int

const (
	// NDEFUnsupported tags expose no NDEF mapping this package can read.
	NDEFUnsupported NDEFState = iota
	// NDEFFormatable tags can hold NDEF data but have not been formatted.
	NDEFFormatable
	// NDEFFormatted tags carry an NDEF structure, possibly with an empty message.
	NDEFFormatted
)

func (s NDEFState) String() string {
	switch s {
	case NDEFFormatable:
		return "formatable"
	case NDEFFormatted:
		return "formatted"
	}
	return "unsupported"
}

// NDEFContent is the result of reading a tag's NDEF area.
type NDEFContent struct {
	State   NDEFState
	Message []byte // raw NDEF message, nil when none was found
}

// Tag represents an NFC tag at the hardware protocol level.
//
// Example:
//
//	tags, _ := device.GetTags()
//	for _, tag := range tags {
//	    content, err := tag.ReadNDEF()
//	    if err == nil && content.State == nfc.NDEFFormatted {
//	        records, _ := nfc.ParseMessage(content.Message)
//	    }
//	}
type Tag interface {
	UID() string
	Type() string
	Technology() string
	ReadNDEF() (NDEFContent, error)
}

// passiveTag is a tag detected in the field whose memory is not read.
type passiveTag struct {
	uid        string
	tagType    string
	technology string
}

func newPassiveTag(uid, tagType, technology string) *passiveTag {
	return &passiveTag{uid: uid, tagType: tagType, technology: technology}
}

func (t *passiveTag) UID() string        { return t.uid }
func (t *passiveTag) Type() string       { return t.tagType }
func (t *passiveTag) Technology() string { return t.technology }

func (t *passiveTag) ReadNDEF() (NDEFContent, error) {
	return NDEFContent{State: NDEFUnsupported}, nil
}
