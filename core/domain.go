package core

import (
	"strings"
	"time"
)

type FlowStatus string

const (
	FlowStatusIdle     FlowStatus = "idle"
	FlowStatusStarting FlowStatus = "starting"
	FlowStatusPending  FlowStatus = "pending"
	FlowStatusSuccess  FlowStatus = "success"
	FlowStatusError    FlowStatus = "error"
)

// Terminal reports whether no further automatic transitions follow.
func (s FlowStatus) Terminal() bool {
	return s == FlowStatusSuccess || s == FlowStatusError
}

type FlowMethod string

const (
	FlowMethodNone    FlowMethod = ""
	FlowMethodBrowser FlowMethod = "browser"
	FlowMethodDevice  FlowMethod = "device"
)

func (m FlowMethod) Valid() bool {
	return m == FlowMethodBrowser || m == FlowMethodDevice
}

// ParseFlowMethod normalizes user input. An empty value yields FlowMethodNone.
func ParseFlowMethod(value string) (FlowMethod, bool) {
	switch FlowMethod(strings.ToLower(strings.TrimSpace(value))) {
	case FlowMethodNone:
		return FlowMethodNone, true
	case FlowMethodBrowser:
		return FlowMethodBrowser, true
	case FlowMethodDevice:
		return FlowMethodDevice, true
	default:
		return FlowMethodNone, false
	}
}

// FlowState is the snapshot exposed to presentation code. Nil pointers stand
// for absent values.
type FlowState struct {
	Status           FlowStatus `json:"status"`
	Method           FlowMethod `json:"method,omitempty"`
	AuthorizationURL *string    `json:"authorizationUrl"`
	CallbackURL      *string    `json:"callbackUrl"`
	VerificationURL  *string    `json:"verificationUrl"`
	UserCode         *string    `json:"userCode"`
	DeviceAuthID     *string    `json:"deviceAuthId"`
	IntervalSeconds  *int       `json:"intervalSeconds"`
	ExpiresInSeconds *int       `json:"expiresInSeconds"`
	ErrorMessage     *string    `json:"errorMessage"`
}

func InitialFlowState() FlowState {
	return FlowState{Status: FlowStatusIdle}
}

func (s FlowState) Clone() FlowState {
	return FlowState{
		Status:           s.Status,
		Method:           s.Method,
		AuthorizationURL: cloneString(s.AuthorizationURL),
		CallbackURL:      cloneString(s.CallbackURL),
		VerificationURL:  cloneString(s.VerificationURL),
		UserCode:         cloneString(s.UserCode),
		DeviceAuthID:     cloneString(s.DeviceAuthID),
		IntervalSeconds:  cloneInt(s.IntervalSeconds),
		ExpiresInSeconds: cloneInt(s.ExpiresInSeconds),
		ErrorMessage:     cloneString(s.ErrorMessage),
	}
}

func (s FlowState) IsInitial() bool {
	return s.Status == FlowStatusIdle &&
		s.Method == FlowMethodNone &&
		s.AuthorizationURL == nil &&
		s.CallbackURL == nil &&
		s.VerificationURL == nil &&
		s.UserCode == nil &&
		s.DeviceAuthID == nil &&
		s.IntervalSeconds == nil &&
		s.ExpiresInSeconds == nil &&
		s.ErrorMessage == nil
}

type StartOptions struct {
	ForceMethod FlowMethod
}

// FlowDescriptor is the account API response to a start request.
type FlowDescriptor struct {
	Method           FlowMethod
	AuthorizationURL *string
	CallbackURL      *string
	VerificationURL  *string
	UserCode         *string
	DeviceAuthID     *string
	IntervalSeconds  *int
	ExpiresInSeconds *int
}

// FlowStatusReport is the account API response to a status check. Status is
// kept as the raw upstream value; anything other than success or error keeps
// the flow pending.
type FlowStatusReport struct {
	Status       string
	ErrorMessage *string
}

type CompleteParams struct {
	DeviceAuthID *string
	UserCode     *string
}

const (
	FlowActionStarted                 = "flow.started"
	FlowActionPending                 = "flow.pending"
	FlowActionSucceeded               = "flow.succeeded"
	FlowActionFailed                  = "flow.failed"
	FlowActionReset                   = "flow.reset"
	FlowActionDevicePrecompleteFailed = "flow.device_precomplete_failed"
)

type FlowActivityEntry struct {
	ID        string
	FlowID    string
	Action    string
	Method    FlowMethod
	Status    FlowStatus
	Message   string
	Metadata  map[string]any
	CreatedAt time.Time
}

type FlowActivityFilter struct {
	FlowID  string
	Action  string
	Status  FlowStatus
	From    *time.Time
	To      *time.Time
	Page    int
	PerPage int
}

type FlowActivityPage struct {
	Items      []FlowActivityEntry
	Page       int
	PerPage    int
	Total      int
	HasNext    bool
	NextCursor string
}

func StringPtr(value string) *string {
	return &value
}

func BoolPtr(value bool) *bool {
	return &value
}

func cloneBool(value *bool) *bool {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func IntPtr(value int) *int {
	return &value
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func cloneInt(value *int) *int {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
