// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"strings"
	"testing"
)

func TestReadResponse(t *testing.T) {
	data, err := ReadResponse(strings.NewReader(`{"ok":true}`))
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("ReadResponse = %q", data)
	}
}

func TestDecodeResponse(t *testing.T) {
	var decoded struct {
		NextBatch string `json:"next_batch"`
	}
	if err := DecodeResponse(strings.NewReader(`{"next_batch":"s72594_4483"}`), &decoded); err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if decoded.NextBatch != "s72594_4483" {
		t.Errorf("NextBatch = %q", decoded.NextBatch)
	}

	if err := DecodeResponse(strings.NewReader("not json"), &decoded); err == nil {
		t.Error("DecodeResponse of invalid JSON succeeded, want error")
	}
}
