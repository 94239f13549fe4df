// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wire

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestValidateKey(t *testing.T) {
	for _, tc := range []struct {
		key     string
		wantErr bool
	}{
		{"foobar", false},
		{"", false},
		{"has\nlf", true},
		{"has\rcr", true},
	} {
		err := ValidateKey([]byte(tc.key))
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateKey(%q) = %v, want err=%v", tc.key, err, tc.wantErr)
		}
	}
}

func TestEncodeRequest(t *testing.T) {
	got, err := EncodeRequest([]byte("foobar"))
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	if want := "foobar\n"; string(got) != want {
		t.Errorf("EncodeRequest = %q, want %q", got, want)
	}

	if _, err := EncodeRequest([]byte("bad\nkey")); err != ErrInvalidKey {
		t.Errorf("EncodeRequest with embedded LF: got %v, want ErrInvalidKey", err)
	}
}

func TestReadRequest(t *testing.T) {
	for _, tc := range []struct {
		name    string
		input   string
		wantKey string
		wantErr bool
	}{
		{"simple", "foobar\n", "foobar", false},
		{"crlf", "foobar\r\n", "foobar", false},
		{"health probe", "\n", "", false},
		{"no newline", "partial", "", true},
		{"empty stream", "", "", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := bufio.NewReader(strings.NewReader(tc.input))
			key, err := ReadRequest(r)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ReadRequest(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
			if err == nil && string(key) != tc.wantKey {
				t.Errorf("ReadRequest(%q) = %q, want %q", tc.input, key, tc.wantKey)
			}
		})
	}
}

func TestReplyRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Reply{ExitCode: 123, PID: 4567}
	if err := WriteReply(&buf, want); err != nil {
		t.Fatalf("WriteReply: %v", err)
	}
	if strings.HasSuffix(buf.String(), "\n") {
		t.Errorf("WriteReply wrote a trailing newline: %q", buf.String())
	}

	got, err := ReadReply(&buf)
	if err != nil {
		t.Fatalf("ReadReply: %v", err)
	}
	if got != want {
		t.Errorf("ReadReply = %+v, want %+v", got, want)
	}
	if !got.Failed() {
		t.Errorf("Reply{ExitCode: 123}.Failed() = false, want true")
	}
}

func TestReplyZeroExitNotFailed(t *testing.T) {
	if (Reply{ExitCode: 0}).Failed() {
		t.Errorf("Reply{ExitCode: 0}.Failed() = true, want false")
	}
}

func TestReadRequestTooLong(t *testing.T) {
	huge := strings.Repeat("x", MaxKeyLen+10) + "\n"
	r := bufio.NewReaderSize(strings.NewReader(huge), MaxKeyLen+64)
	_, err := ReadRequest(r)
	if err != ErrKeyTooLong {
		t.Errorf("ReadRequest with oversized key: got %v, want ErrKeyTooLong", err)
	}
}
