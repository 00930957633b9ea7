package flowcontrol_test

import "testing"

import "github.com/channelaccess/catcp/flowcontrol"

func TestBusyLatchesAfterThreshold(t *testing.T) {
	d := flowcontrol.New(2)
	if d.Busy() {
		t.Fatal("must not start busy")
	}
	d.RecordFull()
	if d.Busy() {
		t.Fatal("must not be busy after a single full receive with threshold 2")
	}
	d.RecordFull()
	if !d.Busy() {
		t.Fatal("must be busy after two contiguous full receives")
	}
}

func TestPartialReceiveClearsBusy(t *testing.T) {
	d := flowcontrol.New(2)
	d.RecordFull()
	d.RecordFull()
	if !d.Busy() {
		t.Fatal("precondition: should be busy")
	}
	d.RecordPartial()
	if d.Busy() {
		t.Fatal("a non-full receive must clear busy immediately")
	}
}

func TestNoDuplicateLatchBeforeNewBurst(t *testing.T) {
	d := flowcontrol.New(2)
	d.RecordFull()
	d.RecordFull()
	d.RecordFull() // still busy, should not panic or misbehave
	if !d.Busy() {
		t.Fatal("should remain busy across further full receives")
	}
}

func TestDefaultThresholdUsedWhenNonPositive(t *testing.T) {
	d := flowcontrol.New(0)
	d.RecordFull()
	if d.Busy() {
		t.Fatal("default threshold is 2; one full receive must not latch busy")
	}
	d.RecordFull()
	if !d.Busy() {
		t.Fatal("default threshold is 2; two full receives must latch busy")
	}
}
