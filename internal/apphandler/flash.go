package apphandler

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"go.uber.org/zap"

	"github.com/bgrzesik/programatorus-server/internal/message"
)

// FlashResponder answers FlashRequest by invoking openocd against a
// known board/firmware pair, grounded on the original FlashService's
// subprocess.Popen(["openocd", ...]) call. BoardID/FirmwareID are
// resolved against the catalogs -- never interpolated into the
// command line directly -- so a malicious request can't smuggle
// arbitrary flags or paths into the openocd invocation.
type FlashResponder struct {
	boards    *BoardCatalog
	firmware  *FirmwareCatalog
	openocd   string
	configDir string
	log       *zap.Logger
}

func NewFlashResponder(boards *BoardCatalog, firmware *FirmwareCatalog, openocdPath, configDir string, log *zap.Logger) *FlashResponder {
	if log == nil {
		log = zap.NewNop()
	}
	if openocdPath == "" {
		openocdPath = "openocd"
	}
	return &FlashResponder{boards: boards, firmware: firmware, openocd: openocdPath, configDir: configDir, log: log.Named("flash")}
}

func (*FlashResponder) RequestTag() string { return message.TagFlashRequest }

func (r *FlashResponder) UnpackRequest(req message.Payload) (any, error) {
	flashReq, ok := req.(*message.FlashRequest)
	if !ok {
		return nil, fmt.Errorf("apphandler: expected FlashRequest, got %T", req)
	}
	return flashReq, nil
}

func (r *FlashResponder) PrepareResponse(resp any) message.Payload {
	return resp.(*message.FlashResult)
}

func (r *FlashResponder) OnRequest(ctx context.Context, reqAny any) (any, error) {
	flashReq := reqAny.(*message.FlashRequest)

	board, ok := r.boards.Board(flashReq.BoardID)
	if !ok {
		return &message.FlashResult{Success: false, Log: fmt.Sprintf("unknown board %q", flashReq.BoardID)}, nil
	}
	fw, ok := r.firmware.Lookup(flashReq.FirmwareID)
	if !ok || fw.BoardID != board.ID {
		return &message.FlashResult{Success: false, Log: fmt.Sprintf("unknown firmware %q for board %q", flashReq.FirmwareID, board.ID)}, nil
	}

	args := []string{
		"-f", r.configDir + "/interface.cfg",
		"-c", "transport select swd",
		"-f", fmt.Sprintf("%s/target/%s.cfg", r.configDir, board.Chip),
		"-c", "targets",
		"-c", fmt.Sprintf("program %s verify reset exit", fw.Path),
	}

	cmd := exec.CommandContext(ctx, r.openocd, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err != nil {
		r.log.Warn("flash failed", zap.Error(err), zap.String("board", board.ID), zap.String("firmware", fw.ID))
		return &message.FlashResult{Success: false, Log: out.String()}, nil
	}
	return &message.FlashResult{Success: true, Log: out.String()}, nil
}
