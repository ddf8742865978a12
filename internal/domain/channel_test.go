package domain

import (
	"errors"
	"testing"
)

func TestParseChannelFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    Channel
		wantErr bool
	}{
		{input: " sms ", want: ChannelSMS},
		{input: "email", want: ChannelEmail},
		{input: "in-app", want: ChannelInApp},
		{input: "inapp", want: ChannelInApp},
		{input: "IN_APP", want: ChannelInApp},
		{input: "fax", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseChannelFromString(tt.input)
		if tt.wantErr {
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("ParseChannelFromString(%q) error = %v, want ErrValidation", tt.input, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseChannelFromString(%q) unexpected error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Fatalf("ParseChannelFromString(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestContactAddress(t *testing.T) {
	t.Parallel()

	contact := Contact{Email: "tenant@example.com", Phone: " ", InAppUser: "user-9"}

	if got := contact.Address(ChannelEmail); got != "tenant@example.com" {
		t.Fatalf("Address(EMAIL) = %q", got)
	}
	if got := contact.Address(ChannelSMS); got != "" {
		t.Fatalf("Address(SMS) = %q, want empty for blank phone", got)
	}
	if got := contact.Address(ChannelInApp); got != "user-9" {
		t.Fatalf("Address(IN_APP) = %q", got)
	}
}

func TestChannelFeature(t *testing.T) {
	t.Parallel()

	for _, ch := range DispatchChannels {
		if !ch.Feature().IsValid() {
			t.Fatalf("%s.Feature() = %q, want a valid feature", ch, ch.Feature())
		}
	}
}

func TestSendResult(t *testing.T) {
	t.Parallel()

	ok := SendOk(" msg-1 ")
	if !ok.IsOk() {
		t.Fatal("SendOk should be ok")
	}
	if id, isOk := ok.ID(); !isOk || id != "msg-1" {
		t.Fatalf("ID() = %q,%v, want msg-1,true", id, isOk)
	}
	if _, isErr := ok.Error(); isErr {
		t.Fatal("Ok result should not report an error")
	}

	failed := SendErr("")
	if failed.IsOk() {
		t.Fatal("SendErr should not be ok")
	}
	if msg, isErr := failed.Error(); !isErr || msg != "unknown provider error" {
		t.Fatalf("Error() = %q,%v", msg, isErr)
	}
	if failed.Detail() != "unknown provider error" {
		t.Fatalf("Detail() = %q", failed.Detail())
	}
}

func TestScopeLevel(t *testing.T) {
	t.Parallel()

	if got := (Scope{PropertyID: "p1", PlanID: "plan"}).Level(); got != ScopeLevelProperty {
		t.Fatalf("Level() = %s, want property", got)
	}
	if got := (Scope{PlanID: "plan"}).Level(); got != ScopeLevelPlan {
		t.Fatalf("Level() = %s, want plan", got)
	}
	if got := (Scope{}).Level(); got != ScopeLevelGlobal {
		t.Fatalf("Level() = %s, want global", got)
	}
}

func TestParseOverrideModeFromString(t *testing.T) {
	t.Parallel()

	got, err := ParseOverrideModeFromString("")
	if err != nil || got != OverrideInherit {
		t.Fatalf("ParseOverrideModeFromString(\"\") = %s, %v", got, err)
	}
	got, err = ParseOverrideModeFromString("force-off")
	if err != nil || got != OverrideForceOff {
		t.Fatalf("ParseOverrideModeFromString(force-off) = %s, %v", got, err)
	}
	if _, err := ParseOverrideModeFromString("maybe"); !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseOverrideModeFromString(maybe) error = %v, want ErrValidation", err)
	}
}
