package main

import "testing"

func TestSenseFieldExtraction(t *testing.T) {
	if got := ErrorInvAddr.additionalSenseCode(); got != 0x21 {
		t.Errorf("additionalSenseCode() = %#x, want 0x21", got)
	}
	if got := ErrorInvAddr.additionalSenseQualifier(); got != 0x00 {
		t.Errorf("additionalSenseQualifier() = %#x, want 0x00", got)
	}
	if got := ErrorInvAddr.senseKey(); got != 0x0d {
		t.Errorf("senseKey() = %#x, want 0x0d", got)
	}
}

func TestErrorOKIsZero(t *testing.T) {
	if ErrorOK.additionalSenseCode() != 0 || ErrorOK.senseKey() != 0 {
		t.Error("ErrorOK should decode to all-zero fields")
	}
}
