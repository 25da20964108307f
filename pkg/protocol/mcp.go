package protocol

import (
	"encoding/json"
	"fmt"
)

// Protocol revisions understood by this package, newest first
const (
	ProtocolRevision       = "2025-06-18"
	ProtocolRevision202503 = "2025-03-26"
	ProtocolRevision202411 = "2024-11-05"
)

// SupportedProtocolVersions lists the revisions a session accepts by default
var SupportedProtocolVersions = []string{
	ProtocolRevision,
	ProtocolRevision202503,
	ProtocolRevision202411,
}

const (
	// Methods for lifecycle management
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodShutdown    = "shutdown"
	MethodPing        = "ping"

	// MethodInitializedLegacy is the bare acknowledgment name some clients send
	MethodInitializedLegacy = "initialized"

	// Methods for server features
	MethodListResources         = "resources/list"
	MethodReadResource          = "resources/read"
	MethodListResourceTemplates = "resources/templates/list"
	MethodSubscribeResource     = "resources/subscribe"
	MethodUnsubscribeResource   = "resources/unsubscribe"
	MethodListTools             = "tools/list"
	MethodCallTool              = "tools/call"
	MethodListPrompts           = "prompts/list"
	MethodGetPrompt             = "prompts/get"
	MethodListRoots             = "roots/list"
	MethodSetLogLevel           = "logging/setLevel"

	// Notifications
	MethodCancelled           = "notifications/cancelled"
	MethodProgress            = "notifications/progress"
	MethodResourceUpdated     = "notifications/resources/updated"
	MethodResourceListChanged = "notifications/resources/list_changed"
	MethodToolListChanged     = "notifications/tools/list_changed"
	MethodPromptListChanged   = "notifications/prompts/list_changed"
	MethodRootsListChanged    = "notifications/roots/list_changed"
	MethodLogMessage          = "notifications/message"
)

// Implementation identifies a client or server
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientCapabilities describes what the client is willing to accept
type ClientCapabilities struct {
	Experimental map[string]interface{} `json:"experimental,omitempty"`
	Roots        *RootsCapability       `json:"roots,omitempty"`
	Sampling     map[string]interface{} `json:"sampling,omitempty"`
}

// ServerCapabilities is the wire form of the capabilities a server advertises.
// A nil group means the subsystem is disabled.
type ServerCapabilities struct {
	Experimental map[string]interface{} `json:"experimental,omitempty"`
	Logging      *LoggingCapability     `json:"logging,omitempty"`
	Prompts      *PromptsCapability     `json:"prompts,omitempty"`
	Resources    *ResourcesCapability   `json:"resources,omitempty"`
	Tools        *ToolsCapability       `json:"tools,omitempty"`
	Roots        *RootsCapability       `json:"roots,omitempty"`
}

// LoggingCapability has no sub-flags
type LoggingCapability struct{}

// PromptsCapability describes prompt support
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability describes resource support
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// ToolsCapability describes tool support
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// RootsCapability describes roots support
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// InitializeParams defines the parameters for the initialize request
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult defines the response for the initialize request
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// Meta is the reserved _meta object carried by request params
type Meta struct {
	ProgressToken *ProgressToken `json:"progressToken,omitempty"`
}

// ProgressToken correlates progress notifications with a request. Like
// request ids it is either a string or an integer.
type ProgressToken = RequestID

// RequestMeta extracts params._meta from raw request params. Missing or
// non-object params yield an empty Meta.
func RequestMeta(params json.RawMessage) Meta {
	var holder struct {
		Meta Meta `json:"_meta"`
	}
	if len(params) == 0 {
		return Meta{}
	}
	if err := json.Unmarshal(params, &holder); err != nil {
		return Meta{}
	}
	return holder.Meta
}

// ProgressParams defines parameters for the progress notification
type ProgressParams struct {
	ProgressToken ProgressToken `json:"progressToken"`
	Progress      float64       `json:"progress"`
	Total         *float64      `json:"total,omitempty"`
	Message       string        `json:"message,omitempty"`
}

// CancelledParams defines parameters for the cancelled notification
type CancelledParams struct {
	RequestID RequestID `json:"requestId"`
	Reason    string    `json:"reason,omitempty"`
}

// LoggingLevel is an RFC 5424 syslog severity as used on the wire
type LoggingLevel string

const (
	LoggingLevelDebug     LoggingLevel = "debug"
	LoggingLevelInfo      LoggingLevel = "info"
	LoggingLevelNotice    LoggingLevel = "notice"
	LoggingLevelWarning   LoggingLevel = "warning"
	LoggingLevelError     LoggingLevel = "error"
	LoggingLevelCritical  LoggingLevel = "critical"
	LoggingLevelAlert     LoggingLevel = "alert"
	LoggingLevelEmergency LoggingLevel = "emergency"
)

var loggingLevelSeverity = map[LoggingLevel]int{
	LoggingLevelDebug:     0,
	LoggingLevelInfo:      1,
	LoggingLevelNotice:    2,
	LoggingLevelWarning:   3,
	LoggingLevelError:     4,
	LoggingLevelCritical:  5,
	LoggingLevelAlert:     6,
	LoggingLevelEmergency: 7,
}

// Severity orders levels from debug (0) to emergency (7). Unknown levels
// return -1.
func (l LoggingLevel) Severity() int {
	if s, ok := loggingLevelSeverity[l]; ok {
		return s
	}
	return -1
}

// Valid reports whether l is one of the eight RFC 5424 levels
func (l LoggingLevel) Valid() bool {
	return l.Severity() >= 0
}

// UnmarshalJSON rejects levels outside RFC 5424
func (l *LoggingLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	level := LoggingLevel(s)
	if !level.Valid() {
		return fmt.Errorf("unknown logging level %q", s)
	}
	*l = level
	return nil
}

// SetLevelParams defines parameters for the logging/setLevel request
type SetLevelParams struct {
	Level LoggingLevel `json:"level"`
}

// LoggingMessageParams defines parameters for the notifications/message notification
type LoggingMessageParams struct {
	Level  LoggingLevel `json:"level"`
	Logger string       `json:"logger,omitempty"`
	Data   interface{}  `json:"data"`
}

// PaginatedParams is embedded by list requests
type PaginatedParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// PaginatedResult is embedded by list responses
type PaginatedResult struct {
	NextCursor string `json:"nextCursor,omitempty"`
}

// EmptyResult is the result of requests that carry no data
type EmptyResult struct{}
