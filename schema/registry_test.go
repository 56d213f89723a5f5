package schema

import "testing"

func TestGroupMaskWordSelection(t *testing.T) {
	reg := NewRegistry([]Major{
		{Name: "A", Flag: 0x00000001}, // word 0
		{Name: "B", Flag: 0x00000001 | (1 << 29)}, // word 1
		{Name: NoSysConfigName, Flag: NoSysConfigFlag},
	})
	es := NewEnableState(reg)
	if err := es.ToggleMajor(1, true); err != nil {
		t.Fatal(err)
	}

	masks := reg.GroupMask(es)
	if masks[1] != 1 {
		t.Errorf("masks[1] = %#x, want 1", masks[1])
	}
	if masks[7]&1 == 0 {
		t.Errorf("NoSysConfig bit not set in masks[7]: %#x", masks[7])
	}
}

func TestClassicEventIDsExactlyEnabled(t *testing.T) {
	reg := DefaultRegistry
	es := NewEnableState(reg)
	pi, _ := reg.MajorIndex("Process")
	si, _ := reg.MinorIndex(pi, "Start")
	ei, _ := reg.MinorIndex(pi, "End")
	if err := es.ToggleMajor(pi, true); err != nil {
		t.Fatal(err)
	}
	if err := es.ToggleMinor(pi, si, true); err != nil {
		t.Fatal(err)
	}
	if err := es.ToggleMinor(pi, ei, true); err != nil {
		t.Fatal(err)
	}

	ids := reg.ClassicEventIDs(es)
	if len(ids) != 2 {
		t.Fatalf("got %d classic event ids, want 2", len(ids))
	}
	for _, id := range ids {
		if id.ProviderGUID != reg.Majors[pi].GUID {
			t.Errorf("wrong provider guid for id %+v", id)
		}
	}
}

func TestSetRejectsMismatchedShape(t *testing.T) {
	reg := DefaultRegistry
	es := NewEnableState(reg)
	if err := es.Set(make([]bool, len(reg.Majors)+1), nil); err == nil {
		t.Fatal("expected error on mismatched major length")
	}
}
