package message

import "testing"

func TestEnvelopeRequestResponsePredicates(t *testing.T) {
	id := uint64(7)

	req := Envelope{SessionID: 1, RequestID: &id, Payload: GetBoards{}}
	if !req.IsRequest() || req.IsResponse() {
		t.Fatalf("expected request envelope to report IsRequest=true IsResponse=false")
	}

	resp := Envelope{SessionID: 1, ResponseID: &id, Payload: BoardsData{}}
	if resp.IsRequest() || !resp.IsResponse() {
		t.Fatalf("expected response envelope to report IsRequest=false IsResponse=true")
	}

	oneWay := Envelope{SessionID: 1, Payload: DebuggerLine{Line: "hi"}}
	if oneWay.IsRequest() || oneWay.IsResponse() {
		t.Fatalf("expected a notification envelope to be neither request nor response")
	}
}

func TestPayloadTagsAreDistinct(t *testing.T) {
	payloads := []Payload{
		Heartbeat{}, Ok{}, SetSessionID{}, Error{},
		GetBoards{}, BoardsData{}, GetFirmware{}, FirmwareData{},
		FileUploadStart{}, FileUploadPart{}, FileUploadFinish{}, FileUploadStatus{},
		FlashRequest{}, FlashResult{},
		DebuggerStart{}, DebuggerStarted{}, DebuggerStop{}, DebuggerLine{},
	}

	seen := make(map[string]bool, len(payloads))
	for _, p := range payloads {
		tag := p.Tag()
		if tag == "" {
			t.Fatalf("payload %T has an empty tag", p)
		}
		if seen[tag] {
			t.Fatalf("duplicate tag %q used by %T", tag, p)
		}
		seen[tag] = true
	}
}
