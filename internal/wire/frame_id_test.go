package wire

import "testing"

func TestComposeRawID_S1(t *testing.T) {
	raw := ComposeRawID(Serial, SubId(4587))
	want := uint32(4587)<<13 | 8000
	if raw != want {
		t.Fatalf("ComposeRawID = 0x%X, want 0x%X", raw, want)
	}
	if raw != 0x023D7F40 {
		t.Fatalf("ComposeRawID = 0x%X, want 0x023D7F40", raw)
	}
	fid, sub, ok := DecomposeRawID(raw)
	if !ok {
		t.Fatalf("DecomposeRawID: not ok")
	}
	if fid != Serial || sub != SubId(4587) {
		t.Fatalf("DecomposeRawID = (%v, %v), want (Serial, 4587)", fid, sub)
	}
}

func TestComposeDecompose_AllIDsAllSubIDs(t *testing.T) {
	ids := []FrameID{
		Serial, DynID, HardwareVersion, FirmwareVersion, PendingFirmwareVersion,
		FirmwareUploadPartChangePos, FirmwareUploadPause, FirmwareUploadPart,
		FirmwareUploadFinished, FirmwareStartUpdate,
	}
	subs := []uint32{0, 1, 55, 4587, 0xFFFF}
	for _, fid := range ids {
		for _, s := range subs {
			sub := SubId(s)
			raw := ComposeRawID(fid, sub)
			gotFid, gotSub, ok := DecomposeRawID(raw)
			if !ok {
				t.Fatalf("DecomposeRawID(%d,%d): not ok", fid, sub)
			}
			if gotFid != fid || gotSub != sub {
				t.Fatalf("DecomposeRawID(ComposeRawID(%v,%v)) = (%v,%v)", fid, sub, gotFid, gotSub)
			}
		}
	}
}

func TestLookupFrameID_Unknown(t *testing.T) {
	if _, ok := LookupFrameID(1234); ok {
		t.Fatalf("expected unknown id 1234 to be rejected")
	}
}

func TestSubId_SplitAndFromParts(t *testing.T) {
	sub := SubIDFromParts(0xAB, 10)
	if !sub.IsValid() {
		t.Fatalf("expected valid SubId")
	}
	parts := sub.Split()
	if parts != [2]byte{0xAB, 10} {
		t.Fatalf("Split = %v, want [0xAB, 10]", parts)
	}
	if SubId(0).IsValid() {
		t.Fatalf("SubId(0) must be invalid (unassigned/broadcast)")
	}
}
