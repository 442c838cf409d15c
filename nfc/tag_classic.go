package nfc

import (
	"fmt"
	"strings"

	"github.com/clausecker/freefare"
)

// classicTag reads NDEF data from MIFARE Classic tags through the MIFARE
// Application Directory.
type classicTag struct {
	tag freefare.ClassicTag
}

func newClassicTag(tag freefare.ClassicTag) *classicTag {
	return &classicTag{tag: tag}
}

func (c *classicTag) UID() string {
	return strings.ToUpper(c.tag.UID())
}

func (c *classicTag) Type() string {
	if c.tag.Type() == freefare.Classic4k {
		return TagTypeMifareClassic4K
	}
	return TagTypeMifareClassic1K
}

func (c *classicTag) Technology() string {
	return TechnologyMifareClassic
}

// ReadNDEF reads the NFC Forum application. A tag without a MAD that still
// accepts the factory key is reported as formatable.
func (c *classicTag) ReadNDEF() (NDEFContent, error) {
	if err := c.tag.Connect(); err != nil {
		return NDEFContent{}, NewReadError("ReadNDEF", c.UID(), fmt.Errorf("connect: %w", err))
	}
	defer c.tag.Disconnect()

	mad, madErr := c.tag.ReadMad()
	if madErr != nil {
		madSector := byte(0x00)
		if c.tag.Type() == freefare.Classic4k {
			madSector = 0x10
		}
		trailer := freefare.ClassicSectorLastBlock(madSector)
		if err := c.tag.Authenticate(trailer, FactoryKey, int(freefare.KeyA)); err == nil {
			return NDEFContent{State: NDEFFormatable}, nil
		}
		return NDEFContent{}, NewAuthError("ReadNDEF", c.UID(), madErr)
	}

	buf := make([]byte, classicAppBufferSize)
	n, err := c.tag.ReadApplication(mad, freefare.MadNFCForumAid, buf, PublicKey, int(freefare.KeyA))
	if err != nil {
		return NDEFContent{}, NewReadError("ReadNDEF", c.UID(), err)
	}
	if n <= 0 {
		return NDEFContent{State: NDEFFormatted}, nil
	}

	msg, _, err := FindNDEF(buf[:n])
	if err != nil {
		return NDEFContent{}, err
	}
	return NDEFContent{State: NDEFFormatted, Message: msg}, nil
}
