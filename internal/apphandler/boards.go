// Package apphandler implements the application-level Responders that
// sit behind the router: board/firmware catalogs, chunked file
// uploads, flashing, and debugger sessions. These are the gateway's
// actual external-facing features -- everything below them (frame,
// codec, transport, messenger, session, router) exists to carry these
// requests reliably.
package apphandler

import (
	"context"
	"fmt"

	"github.com/bgrzesik/programatorus-server/internal/message"
)

// BoardCatalog answers GetBoards from a fixed, in-memory set of known
// boards. A real deployment would likely back this with
// config_repository's board list; this keeps the same shape without
// pulling in a config file format the spec doesn't name.
type BoardCatalog struct {
	boards []message.Board
}

// NewBoardCatalog builds a BoardCatalog from the boards the gateway
// was configured with.
func NewBoardCatalog(boards []message.Board) *BoardCatalog {
	return &BoardCatalog{boards: boards}
}

func (*BoardCatalog) RequestTag() string { return message.TagGetBoards }

func (c *BoardCatalog) UnpackRequest(req message.Payload) (any, error) {
	get, ok := req.(*message.GetBoards)
	if !ok {
		return nil, fmt.Errorf("apphandler: boards catalog got unexpected payload %T", req)
	}
	return get, nil
}

func (c *BoardCatalog) OnRequest(ctx context.Context, req any) (any, error) {
	return &message.BoardsData{Boards: c.boards}, nil
}

func (c *BoardCatalog) PrepareResponse(resp any) message.Payload {
	return resp.(*message.BoardsData)
}

// Board looks up a single board by id, reporting whether it exists.
func (c *BoardCatalog) Board(id string) (message.Board, bool) {
	for _, b := range c.boards {
		if b.ID == id {
			return b, true
		}
	}
	return message.Board{}, false
}
