package message

// Application payload tags. These ride the same Envelope as the
// control payloads in envelope.go, but are dispatched by the request router to
// a registered Responder instead of being handled inline by the
// session.
const (
	TagGetBoards    = "app.get_boards"
	TagBoardsData   = "app.boards_data"
	TagGetFirmware  = "app.get_firmware"
	TagFirmwareData = "app.firmware_data"

	TagFileUploadStart  = "app.file_upload.start"
	TagFileUploadPart   = "app.file_upload.part"
	TagFileUploadFinish = "app.file_upload.finish"
	TagFileUploadStatus = "app.file_upload.status"

	TagFlashRequest = "app.flash.request"
	TagFlashResult  = "app.flash.result"

	TagDebuggerStart   = "app.debugger.start"
	TagDebuggerStarted = "app.debugger.started"
	TagDebuggerStop    = "app.debugger.stop"
	TagDebuggerLine    = "app.debugger.line"
)

// Board describes one target board the gateway knows how to flash or
// debug.
type Board struct {
	ID          string
	DisplayName string
	Chip        string
}

// GetBoards requests the catalog of known boards.
type GetBoards struct{}

func (GetBoards) Tag() string { return TagGetBoards }

// BoardsData answers GetBoards.
type BoardsData struct {
	Boards []Board
}

func (BoardsData) Tag() string { return TagBoardsData }

// Firmware describes one firmware image available for a board.
type Firmware struct {
	ID      string
	BoardID string
	Version string
	Path    string
}

// GetFirmware requests the firmware catalog for a board.
type GetFirmware struct {
	BoardID string
}

func (GetFirmware) Tag() string { return TagGetFirmware }

// FirmwareData answers GetFirmware.
type FirmwareData struct {
	Firmware []Firmware
}

func (FirmwareData) Tag() string { return TagFirmwareData }

// FileUploadStart opens a new chunked upload. Subsequent
// FileUploadPart messages are correlated by UploadID.
type FileUploadStart struct {
	UploadID string
	Name     string
	Size     int64
}

func (FileUploadStart) Tag() string { return TagFileUploadStart }

// FileUploadPart carries one chunk of a previously started upload.
type FileUploadPart struct {
	UploadID string
	Offset   int64
	Data     []byte
}

func (FileUploadPart) Tag() string { return TagFileUploadPart }

// FileUploadFinish closes an upload. The receiver does not compare the
// total byte count against FileUploadStart.Size.
type FileUploadFinish struct {
	UploadID string
}

func (FileUploadFinish) Tag() string { return TagFileUploadFinish }

// FileUploadStatus answers any of the three FileUpload* messages.
type FileUploadStatus struct {
	UploadID string
	Received int64
	Done     bool
}

func (FileUploadStatus) Tag() string { return TagFileUploadStatus }

// FlashRequest asks the gateway to flash Firmware onto Board.
type FlashRequest struct {
	BoardID    string
	FirmwareID string
}

func (FlashRequest) Tag() string { return TagFlashRequest }

// FlashResult answers FlashRequest once the flashing process exits.
type FlashResult struct {
	Success bool
	Log     string
}

func (FlashResult) Tag() string { return TagFlashResult }

// DebuggerStart asks the gateway to launch a debug session against a
// board.
type DebuggerStart struct {
	BoardID string
}

func (DebuggerStart) Tag() string { return TagDebuggerStart }

// DebuggerStarted answers DebuggerStart once the debugger process is
// up and listening.
type DebuggerStarted struct {
	Port int
}

func (DebuggerStarted) Tag() string { return TagDebuggerStarted }

// DebuggerStop tears down a running debug session.
type DebuggerStop struct{}

func (DebuggerStop) Tag() string { return TagDebuggerStop }

// DebuggerLine streams one line of the debugger process's output. It
// is a one-way notification, never a response: it rides an Envelope
// with neither RequestID nor ResponseID set, scoped purely by
// SessionID.
type DebuggerLine struct {
	Line string
}

func (DebuggerLine) Tag() string { return TagDebuggerLine }
