package protocol

import "strconv"

// Message type identifiers. Values and names follow the wire taxonomy;
// 32-35 and 50 are additions the original taxonomy's purpose statement
// and CLI surface imply but never assign wire values to: the CLI's
// `git {checkout-commit,pull,log,branches}` subcommands and buffered
// stdout streaming need a message type of their own to round-trip.
// gitmgr.Manager.Fetch has no wire opcode: the CLI surface has no
// standalone `fetch` subcommand, so it stays Go-API-only.
const (
	MsgStartService       uint16 = 1
	MsgStopService        uint16 = 2
	MsgRestartService     uint16 = 3
	MsgGetServiceStatus   uint16 = 4
	MsgAddService         uint16 = 5
	MsgRemoveService      uint16 = 6
	MsgListServices       uint16 = 7
	MsgUpdateConfig       uint16 = 10
	MsgGetConfig          uint16 = 11
	MsgAddDependency      uint16 = 20
	MsgRemoveDependency   uint16 = 21
	MsgListDependencies   uint16 = 22
	MsgCheckoutBranch     uint16 = 30
	MsgGetRepoStatus      uint16 = 31
	MsgCheckoutCommit     uint16 = 32
	MsgGitPull            uint16 = 33
	MsgGitLog             uint16 = 34
	MsgGitListBranches    uint16 = 35
	MsgShutdown           uint16 = 40
	MsgGetSystemStatus    uint16 = 41
	MsgGetStdout          uint16 = 50
	MsgSuccess            uint16 = 0xFFF0
	MsgError              uint16 = 0xFFFF
)

// ServiceRef identifies a service by id, by name, or both. Id takes
// precedence over name when both are present.
type ServiceRef struct {
	ID   *int64  `json:"id,omitempty"`
	Name *string `json:"name,omitempty"`
}

// RefByID builds a ServiceRef that identifies a service by numeric id.
func RefByID(id int64) ServiceRef {
	return ServiceRef{ID: &id}
}

// RefByName builds a ServiceRef that identifies a service by name.
func RefByName(name string) ServiceRef {
	return ServiceRef{Name: &name}
}

// String renders whichever identifier is present, id first.
func (r ServiceRef) String() string {
	if r.ID != nil {
		return strconv.FormatInt(*r.ID, 10)
	}
	if r.Name != nil {
		return *r.Name
	}
	return "<empty ref>"
}

// Empty is the zero-length payload used by requests and responses
// that carry no data.
type Empty struct{}

// StartServicePayload is the request body for StartService and
// RestartService.
type StartServicePayload struct {
	ServiceRef ServiceRef        `json:"service_ref"`
	Env        map[string]string `json:"env"`
}

// ConfigFormat names how a service's config file on disk is formatted.
type ConfigFormat uint8

const (
	ConfigFormatEnv ConfigFormat = iota
	ConfigFormatProperties
)

func (f ConfigFormat) String() string {
	if f == ConfigFormatProperties {
		return "Properties"
	}
	return "Env"
}

// ParseConfigFormat parses the CHECK-constrained string form stored in
// service_config.format.
func ParseConfigFormat(s string) (ConfigFormat, bool) {
	switch s {
	case "Env":
		return ConfigFormatEnv, true
	case "Properties":
		return ConfigFormatProperties, true
	default:
		return 0, false
	}
}

// ServiceConfigPayload is both the UpdateConfig request and the
// GetConfig response.
type ServiceConfigPayload struct {
	ServiceRef ServiceRef   `json:"service_ref"`
	Filename   string       `json:"filename"`
	Format     ConfigFormat `json:"format"`
	RunCommand string       `json:"run_command"`
}

// AddServicePayload is the AddService request body.
type AddServicePayload struct {
	Name        string                `json:"name"`
	RepoURL     string                `json:"repo_url"`
	RepoPath    string                `json:"repo_path"`
	Port        int64                 `json:"port"`
	Config      *ServiceConfigPayload `json:"config,omitempty"`
	GitBranch   string                `json:"git_branch,omitempty"`
	GitAuthType GitAuthType           `json:"git_auth_type,omitempty"`
}

// GitAuthType enumerates how the git manager authenticates against a
// service's remote.
type GitAuthType string

const (
	GitAuthNone     GitAuthType = "none"
	GitAuthSSHAgent GitAuthType = "ssh_agent"
	GitAuthSSHKey   GitAuthType = "ssh_key"
	GitAuthToken    GitAuthType = "token"
	GitAuthUserPass GitAuthType = "user_pass"
)

// ServiceState is the supervisor state machine's authoritative value
// for a service, mirrored onto the persisted (advisory) status column.
type ServiceState string

const (
	StateStarting ServiceState = "Starting"
	StateRunning  ServiceState = "Running"
	StateStopping ServiceState = "Stopping"
	StateStopped  ServiceState = "Stopped"
	StateFailed   ServiceState = "Failed"
)

// DependencyInfo describes one outgoing dependency edge joined with
// the target service's identity and its persisted (advisory) status.
type DependencyInfo struct {
	DependentServiceID int64        `json:"dependent_service_id"`
	DependentName      string       `json:"dependent_name"`
	TunnelEnabled      bool         `json:"tunnel_enabled"`
	State              ServiceState `json:"state"`
}

// ServiceStatus is the GetServiceStatus response.
type ServiceStatus struct {
	ID           int64                 `json:"id"`
	Name         string                `json:"name"`
	State        ServiceState          `json:"state"`
	Config       *ServiceConfigPayload `json:"config,omitempty"`
	Port         int64                 `json:"port"`
	RepoURL      string                `json:"repo_url"`
	RepoPath     string                `json:"repo_path"`
	Dependencies []DependencyInfo      `json:"dependencies"`
}

// ServiceSummary is one entry in the ListServices response.
type ServiceSummary struct {
	ID              int64        `json:"id"`
	Name            string       `json:"name"`
	State           ServiceState `json:"state"`
	Port            int64        `json:"port"`
	HasDependencies bool         `json:"has_dependencies"`
}

// ListServicesResponse is the ListServices response body.
type ListServicesResponse struct {
	Services []ServiceSummary `json:"services"`
}

// ListDependenciesResponse is the ListDependencies response body.
type ListDependenciesResponse struct {
	Dependencies []DependencyInfo `json:"dependencies"`
}

// CheckoutPayload is the CheckoutBranch request body.
type CheckoutPayload struct {
	ServiceRef ServiceRef `json:"service_ref"`
	Branch     string     `json:"branch"`
}

// CheckoutCommitPayload is the CheckoutCommit request body.
type CheckoutCommitPayload struct {
	ServiceRef ServiceRef `json:"service_ref"`
	Hash       string     `json:"hash"`
}

// GitLogPayload is the Log request body.
type GitLogPayload struct {
	ServiceRef ServiceRef `json:"service_ref"`
	MaxCount   int        `json:"max_count"`
	Branch     string     `json:"branch,omitempty"`
}

// GitLogResponse is the Log response body.
type GitLogResponse struct {
	Commits []Commit `json:"commits"`
}

// ListBranchesPayload is the ListBranches request body.
type ListBranchesPayload struct {
	ServiceRef    ServiceRef `json:"service_ref"`
	IncludeRemote bool       `json:"include_remote"`
}

// ListBranchesResponse is the ListBranches response body.
type ListBranchesResponse struct {
	Branches []string `json:"branches"`
}

// RepoStatus is the GetRepoStatus response and the return value of
// every mutating git-manager operation.
type RepoStatus struct {
	CurrentBranch  string   `json:"current_branch"`
	CurrentCommit  string   `json:"current_commit"`
	RemoteURL      string   `json:"remote_url"`
	IsDirty        bool     `json:"is_dirty"`
	Branches       []string `json:"branches"`
	Ahead          *int     `json:"ahead,omitempty"`
	Behind         *int     `json:"behind,omitempty"`
	PendingChanges []string `json:"pending_changes"`
}

// Commit is one entry of a git log listing.
type Commit struct {
	Hash        string `json:"hash"`
	ShortHash   string `json:"short_hash"`
	AuthorName  string `json:"author_name"`
	AuthorEmail string `json:"author_email"`
	Timestamp   string `json:"timestamp"`
	Message     string `json:"message"`
	FullMessage string `json:"full_message"`
}

// LogEntry is one line captured by a running service's stdout tap.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Line      string `json:"line"`
}

// StdoutSnapshot is the GetStdout response body.
type StdoutSnapshot struct {
	Lines []LogEntry `json:"lines"`
}

// AddDependencyPayload is the AddDependency request body.
type AddDependencyPayload struct {
	ServiceRef    ServiceRef `json:"service_ref"`
	DependentRef  ServiceRef `json:"dependent_ref"`
	TunnelEnabled bool       `json:"tunnel_enabled"`
}

// RemoveDependencyPayload is the RemoveDependency request body.
type RemoveDependencyPayload struct {
	ServiceRef   ServiceRef `json:"service_ref"`
	DependentRef ServiceRef `json:"dependent_ref"`
}

// ErrorPayload is the body of an Error-typed response frame.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// ExtraCommandPayload is an in-process plugin call shape. It is never a
// wire message type, and no code in this module constructs or consumes
// it; the hook bus passes hooks the message type and start payload
// instead.
type ExtraCommandPayload struct {
	PluginName string
	PluginPath string
	Data       []byte
}
