package nfc

import (
	"fmt"
	"strings"

	"github.com/clausecker/freefare"
)

// ultralightTag reads NFC Forum Type 2 data from MIFARE Ultralight tags.
type ultralightTag struct {
	tag freefare.UltralightTag
}

func newUltralightTag(tag freefare.UltralightTag) *ultralightTag {
	return &ultralightTag{tag: tag}
}

func (u *ultralightTag) UID() string {
	return strings.ToUpper(u.tag.UID())
}

func (u *ultralightTag) Type() string {
	if u.tag.Type() == freefare.UltralightC {
		return TagTypeMifareUltralightC
	}
	return TagTypeMifareUltralight
}

func (u *ultralightTag) Technology() string {
	return TechnologyMifareUltralight
}

// ReadNDEF checks the capability container and reads the data pages.
func (u *ultralightTag) ReadNDEF() (NDEFContent, error) {
	if err := u.tag.Connect(); err != nil {
		return NDEFContent{}, NewReadError("ReadNDEF", u.UID(), fmt.Errorf("connect: %w", err))
	}
	defer u.tag.Disconnect()

	cc, err := u.tag.ReadPage(ultralightCCPage)
	if err != nil {
		return NDEFContent{}, NewReadError("ReadNDEF", u.UID(), fmt.Errorf("capability container: %w", err))
	}
	if cc[0] != ndefCCMagic {
		return NDEFContent{State: NDEFFormatable}, nil
	}

	maxPages := byte(ultralightPages)
	if u.tag.Type() == freefare.UltralightC {
		maxPages = ultralightCPages
	}

	var data []byte
	for page := byte(ultralightFirstDataPage); page < maxPages; page++ {
		p, err := u.tag.ReadPage(page)
		if err != nil {
			if len(data) == 0 {
				return NDEFContent{}, NewReadError("ReadNDEF", u.UID(), fmt.Errorf("page %d: %w", page, err))
			}
			break
		}
		data = append(data, p[:]...)
	}

	msg, _, err := FindNDEF(data)
	if err != nil {
		return NDEFContent{}, err
	}
	return NDEFContent{State: NDEFFormatted, Message: msg}, nil
}
