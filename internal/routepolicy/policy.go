package routepolicy

// Package routepolicy decides, from a device's local signals alone, which
// alert channels (OS push, in-app sound) may fire for an event. Evaluation is
// a pure function so the policy table is testable without any mocking. The
// decision suppresses alerting only; the notification record itself always
// reaches the in-app inbox.

// PushPermission mirrors the browser Notification permission states.
type PushPermission string

const (
	PermissionGranted     PushPermission = "granted"
	PermissionDenied      PushPermission = "denied"
	PermissionDefault     PushPermission = "default"
	PermissionUnsupported PushPermission = "unsupported"
)

// Route modes summarizing which channels are eligible.
const (
	RouteOsPush     = "os_push"
	RouteInAppSound = "in_app_sound"
	RouteInboxOnly  = "inbox_only"
)

// Reason codes, ordered most-specific first when several apply.
const (
	ReasonOsPushPreferred        = "os_push_preferred"
	ReasonWindowFocused          = "window_focused"
	ReasonInAppSound             = "in_app_sound"
	ReasonPushUnsupported        = "push_unsupported"
	ReasonPushPermissionDenied   = "push_permission_denied"
	ReasonPushPermissionPending  = "push_permission_not_granted"
	ReasonPushSyncDisabled       = "push_sync_disabled"
	ReasonServiceWorkerDisabled  = "service_worker_unavailable"
	ReasonSubscriptionInactive   = "push_subscription_inactive"
	ReasonMasterSoundDisabled    = "master_sound_disabled"
	ReasonFocusedSoundDisabled   = "focused_sound_disabled"
	ReasonAlertSuppressedToInbox = "alert_suppressed_inbox_only"
)

// Signals are the device-local inputs, sampled once at decision time. Focus
// changes mid-decision are deliberately ignored.
type Signals struct {
	HasFocus                         bool           `json:"hasFocus"`
	PushSupported                    bool           `json:"pushSupported"`
	PushPermission                   PushPermission `json:"pushPermission"`
	SWRegistered                     bool           `json:"swRegistered"`
	PushSubscriptionActive           bool           `json:"pushSubscriptionActive"`
	PushSyncEnabled                  bool           `json:"pushSyncEnabled"`
	ServiceWorkerRegistrationEnabled bool           `json:"serviceWorkerRegistrationEnabled"`
	MasterSoundEnabled               bool           `json:"masterSoundEnabled"`
	PlaySoundsWhenFocused            bool           `json:"playSoundsWhenFocused"`
}

// Decision is the policy output. ReasonCodes explains the decision, first
// code is primary.
type Decision struct {
	RouteMode          string   `json:"routeMode"`
	AllowOsPushDisplay bool     `json:"allowOsPushDisplay"`
	AllowInAppSound    bool     `json:"allowInAppSound"`
	ReasonCodes        []string `json:"reasonCodes"`
}

// Evaluate applies the routing rules: never double-alert a focused device,
// never silently lose an event.
func Evaluate(s Signals) Decision {
	pushReasons := pushIneligibility(s)
	pushEligible := len(pushReasons) == 0

	// An unfocused device holding an active, synced subscription is alerted
	// by the push provider alone.
	if pushEligible && !s.HasFocus {
		return Decision{
			RouteMode:          RouteOsPush,
			AllowOsPushDisplay: true,
			AllowInAppSound:    false,
			ReasonCodes:        []string{ReasonOsPushPreferred},
		}
	}

	// From here the OS push is suppressed, either because the window is
	// focused or because push is unavailable; the in-app path is the only
	// remaining alert channel.
	reasons := []string{}
	if s.HasFocus {
		reasons = append(reasons, ReasonWindowFocused)
	}
	reasons = append(reasons, pushReasons...)

	allowSound := s.MasterSoundEnabled
	if s.HasFocus && !s.PlaySoundsWhenFocused {
		allowSound = false
	}

	if allowSound {
		return Decision{
			RouteMode:          RouteInAppSound,
			AllowOsPushDisplay: false,
			AllowInAppSound:    true,
			ReasonCodes:        append([]string{ReasonInAppSound}, reasons...),
		}
	}

	if !s.MasterSoundEnabled {
		reasons = append(reasons, ReasonMasterSoundDisabled)
	} else if s.HasFocus && !s.PlaySoundsWhenFocused {
		reasons = append(reasons, ReasonFocusedSoundDisabled)
	}

	return Decision{
		RouteMode:          RouteInboxOnly,
		AllowOsPushDisplay: false,
		AllowInAppSound:    false,
		ReasonCodes:        append([]string{ReasonAlertSuppressedToInbox}, reasons...),
	}
}

// pushIneligibility returns the reasons OS push display is not allowed, empty
// when the device is fully push-eligible.
func pushIneligibility(s Signals) []string {
	reasons := []string{}
	if !s.PushSupported || s.PushPermission == PermissionUnsupported {
		reasons = append(reasons, ReasonPushUnsupported)
	}
	switch s.PushPermission {
	case PermissionDenied:
		reasons = append(reasons, ReasonPushPermissionDenied)
	case PermissionDefault:
		reasons = append(reasons, ReasonPushPermissionPending)
	}
	if !s.PushSyncEnabled {
		reasons = append(reasons, ReasonPushSyncDisabled)
	}
	if !s.SWRegistered || !s.ServiceWorkerRegistrationEnabled {
		reasons = append(reasons, ReasonServiceWorkerDisabled)
	}
	if !s.PushSubscriptionActive {
		reasons = append(reasons, ReasonSubscriptionInactive)
	}
	return reasons
}

// AlertDecision maps the channel outcome onto the trace decision vocabulary:
// send when any alert channel fires, skip when the event goes inbox-only.
func (d Decision) AlertDecision() string {
	if d.AllowOsPushDisplay || d.AllowInAppSound {
		return "send"
	}
	return "skip"
}
