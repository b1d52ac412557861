package service

import (
	"context"
	"fmt"
	"net/url"
	"testing"
)

func TestPermanent(t *testing.T) {
	err := fmt.Errorf("Permanent error")
	if Temporary(err) {
		t.Fail()
	}
	err = &url.Error{Err: err}
	if Temporary(err) {
		t.Fail()
	}
}

func TestTemporary(t *testing.T) {
	err := MakeTemporary(fmt.Errorf("Temporary error"))
	if !Temporary(err) {
		t.Fail()
	}
	err = fmt.Errorf("Warp: %w", err)
	if !Temporary(err) {
		t.Fail()
	}
	if !Temporary(context.Canceled) {
		t.Fail()
	}
	if !Temporary(context.DeadlineExceeded) {
		t.Fail()
	}
	err = fmt.Errorf("Warp: %w", &url.Error{Err: err})
	if !Temporary(err) {
		t.Fail()
	}
}

func TestMergeErrors(t *testing.T) {
	tmp := MakeTemporary(fmt.Errorf("temporary"))
	perm := fmt.Errorf("permanent")
	if err := MergeErrors(false, perm, nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if err := MergeErrors(false, tmp, perm); !Temporary(err) {
		t.Errorf("expected temporary, got %v", err)
	}
	if err := MergeErrors(true, nil, perm); err == nil {
		t.Errorf("expected error")
	}
}
