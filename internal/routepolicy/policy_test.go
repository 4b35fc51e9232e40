package routepolicy

import "testing"

func eligible() Signals {
	return Signals{
		PushSupported:                    true,
		PushPermission:                   PermissionGranted,
		SWRegistered:                     true,
		PushSubscriptionActive:           true,
		PushSyncEnabled:                  true,
		ServiceWorkerRegistrationEnabled: true,
		MasterSoundEnabled:               true,
		PlaySoundsWhenFocused:            true,
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Signals)
		wantMode   string
		wantPush   bool
		wantSound  bool
		wantReason string
	}{
		{
			name:       "unfocused eligible goes os_push only",
			mutate:     func(s *Signals) {},
			wantMode:   RouteOsPush,
			wantPush:   true,
			wantSound:  false,
			wantReason: ReasonOsPushPreferred,
		},
		{
			name:       "focused never os_push",
			mutate:     func(s *Signals) { s.HasFocus = true },
			wantMode:   RouteInAppSound,
			wantPush:   false,
			wantSound:  true,
			wantReason: ReasonInAppSound,
		},
		{
			name:       "permission denied falls back to sound",
			mutate:     func(s *Signals) { s.PushPermission = PermissionDenied },
			wantMode:   RouteInAppSound,
			wantPush:   false,
			wantSound:  true,
			wantReason: ReasonInAppSound,
		},
		{
			name:       "push unsupported falls back to sound",
			mutate:     func(s *Signals) { s.PushSupported = false },
			wantMode:   RouteInAppSound,
			wantPush:   false,
			wantSound:  true,
			wantReason: ReasonInAppSound,
		},
		{
			name:       "sync disabled suppresses push",
			mutate:     func(s *Signals) { s.PushSyncEnabled = false },
			wantMode:   RouteInAppSound,
			wantPush:   false,
			wantSound:  true,
			wantReason: ReasonInAppSound,
		},
		{
			name:       "inactive subscription suppresses push",
			mutate:     func(s *Signals) { s.PushSubscriptionActive = false },
			wantMode:   RouteInAppSound,
			wantPush:   false,
			wantSound:  true,
			wantReason: ReasonInAppSound,
		},
		{
			name: "master sound off goes inbox only",
			mutate: func(s *Signals) {
				s.PushPermission = PermissionDenied
				s.MasterSoundEnabled = false
			},
			wantMode:   RouteInboxOnly,
			wantPush:   false,
			wantSound:  false,
			wantReason: ReasonAlertSuppressedToInbox,
		},
		{
			name: "focused with focused-sounds off goes inbox only",
			mutate: func(s *Signals) {
				s.HasFocus = true
				s.PlaySoundsWhenFocused = false
			},
			wantMode:   RouteInboxOnly,
			wantPush:   false,
			wantSound:  false,
			wantReason: ReasonAlertSuppressedToInbox,
		},
		{
			name: "unfocused sound follows master even when focused-sounds off",
			mutate: func(s *Signals) {
				s.PushPermission = PermissionDefault
				s.PlaySoundsWhenFocused = false
			},
			wantMode:   RouteInAppSound,
			wantPush:   false,
			wantSound:  true,
			wantReason: ReasonInAppSound,
		},
		{
			name: "everything off goes inbox only",
			mutate: func(s *Signals) {
				*s = Signals{HasFocus: true, PushPermission: PermissionUnsupported}
			},
			wantMode:   RouteInboxOnly,
			wantPush:   false,
			wantSound:  false,
			wantReason: ReasonAlertSuppressedToInbox,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := eligible()
			tt.mutate(&s)
			got := Evaluate(s)
			if got.RouteMode != tt.wantMode {
				t.Fatalf("mode=%q want=%q", got.RouteMode, tt.wantMode)
			}
			if got.AllowOsPushDisplay != tt.wantPush || got.AllowInAppSound != tt.wantSound {
				t.Fatalf("push=%v sound=%v want push=%v sound=%v",
					got.AllowOsPushDisplay, got.AllowInAppSound, tt.wantPush, tt.wantSound)
			}
			if len(got.ReasonCodes) == 0 || got.ReasonCodes[0] != tt.wantReason {
				t.Fatalf("reasons=%v want first=%q", got.ReasonCodes, tt.wantReason)
			}
		})
	}
}

func TestEvaluateNeverDoubleAlerts(t *testing.T) {
	// Exhaustive sweep over the boolean signal space: os push display and
	// in-app sound must never both be allowed.
	perms := []PushPermission{PermissionGranted, PermissionDenied, PermissionDefault, PermissionUnsupported}
	for mask := 0; mask < 1<<8; mask++ {
		for _, perm := range perms {
			s := Signals{
				HasFocus:                         mask&1 != 0,
				PushSupported:                    mask&2 != 0,
				SWRegistered:                     mask&4 != 0,
				PushSubscriptionActive:           mask&8 != 0,
				PushSyncEnabled:                  mask&16 != 0,
				ServiceWorkerRegistrationEnabled: mask&32 != 0,
				MasterSoundEnabled:               mask&64 != 0,
				PlaySoundsWhenFocused:            mask&128 != 0,
				PushPermission:                   perm,
			}
			d := Evaluate(s)
			if d.AllowOsPushDisplay && d.AllowInAppSound {
				t.Fatalf("double alert for %+v", s)
			}
			if d.AllowOsPushDisplay && s.HasFocus {
				t.Fatalf("os push while focused for %+v", s)
			}
			if len(d.ReasonCodes) == 0 {
				t.Fatalf("no reasons for %+v", s)
			}
		}
	}
}

func TestAlertDecision(t *testing.T) {
	if got := (Decision{AllowOsPushDisplay: true}).AlertDecision(); got != "send" {
		t.Fatalf("got=%q want=send", got)
	}
	if got := (Decision{AllowInAppSound: true}).AlertDecision(); got != "send" {
		t.Fatalf("got=%q want=send", got)
	}
	if got := (Decision{}).AlertDecision(); got != "skip" {
		t.Fatalf("got=%q want=skip", got)
	}
}
