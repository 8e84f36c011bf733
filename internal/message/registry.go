package message

// registry maps a payload's wire tag back to a constructor for its
// zero value, so a codec can allocate the right concrete type before
// unmarshaling into it.
var registry = map[string]func() Payload{
	TagHeartbeat:    func() Payload { return &Heartbeat{} },
	TagOk:           func() Payload { return &Ok{} },
	TagSetSessionID: func() Payload { return &SetSessionID{} },
	TagError:        func() Payload { return &Error{} },

	TagGetBoards:    func() Payload { return &GetBoards{} },
	TagBoardsData:   func() Payload { return &BoardsData{} },
	TagGetFirmware:  func() Payload { return &GetFirmware{} },
	TagFirmwareData: func() Payload { return &FirmwareData{} },

	TagFileUploadStart:  func() Payload { return &FileUploadStart{} },
	TagFileUploadPart:   func() Payload { return &FileUploadPart{} },
	TagFileUploadFinish: func() Payload { return &FileUploadFinish{} },
	TagFileUploadStatus: func() Payload { return &FileUploadStatus{} },

	TagFlashRequest: func() Payload { return &FlashRequest{} },
	TagFlashResult:  func() Payload { return &FlashResult{} },

	TagDebuggerStart:   func() Payload { return &DebuggerStart{} },
	TagDebuggerStarted: func() Payload { return &DebuggerStarted{} },
	TagDebuggerStop:    func() Payload { return &DebuggerStop{} },
	TagDebuggerLine:    func() Payload { return &DebuggerLine{} },
}

// NewByTag allocates the zero value of the Payload type registered
// under tag, as a pointer so a codec can unmarshal into it. The
// second return is false for an unrecognized tag.
func NewByTag(tag string) (Payload, bool) {
	ctor, ok := registry[tag]
	if !ok {
		return nil, false
	}
	return ctor(), true
}
