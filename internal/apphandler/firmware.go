package apphandler

import (
	"context"
	"fmt"

	"github.com/bgrzesik/programatorus-server/internal/message"
)

// FirmwareCatalog answers GetFirmware with the images registered for
// a board, grounded on the original config_repository's board ->
// firmware list mapping.
type FirmwareCatalog struct {
	byBoard map[string][]message.Firmware
}

func NewFirmwareCatalog() *FirmwareCatalog {
	return &FirmwareCatalog{byBoard: make(map[string][]message.Firmware)}
}

func (*FirmwareCatalog) RequestTag() string { return message.TagGetFirmware }

// Add registers a firmware image as available for fw.BoardID.
func (c *FirmwareCatalog) Add(fw message.Firmware) {
	c.byBoard[fw.BoardID] = append(c.byBoard[fw.BoardID], fw)
}

func (c *FirmwareCatalog) UnpackRequest(req message.Payload) (any, error) {
	get, ok := req.(*message.GetFirmware)
	if !ok {
		return nil, fmt.Errorf("apphandler: firmware catalog got unexpected payload %T", req)
	}
	return get, nil
}

func (c *FirmwareCatalog) OnRequest(ctx context.Context, req any) (any, error) {
	get := req.(*message.GetFirmware)
	return &message.FirmwareData{Firmware: c.byBoard[get.BoardID]}, nil
}

func (c *FirmwareCatalog) PrepareResponse(resp any) message.Payload {
	return resp.(*message.FirmwareData)
}

// Lookup finds one firmware image by id, reporting whether it exists.
func (c *FirmwareCatalog) Lookup(id string) (message.Firmware, bool) {
	for _, list := range c.byBoard {
		for _, fw := range list {
			if fw.ID == id {
				return fw, true
			}
		}
	}
	return message.Firmware{}, false
}
