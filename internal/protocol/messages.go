// Package protocol implements the sync fabric's wire protocol: a closed,
// discriminated set of message types carried inside a top-level frame that
// is either plaintext or an AEAD envelope. Unknown variants are rejected on
// ingress rather than dispatched dynamically.
package protocol

// MessageType discriminates the payload carried by a Frame.
type MessageType string

const (
	TypeHello         MessageType = "hello"
	TypeHelloAck      MessageType = "hello-ack"
	TypeIndexRequest  MessageType = "index-request"
	TypeIndexResponse MessageType = "index-response"
	TypeDeltaPush     MessageType = "delta-push"
	TypeDeltaAck      MessageType = "delta-ack"
	TypeFileRequest   MessageType = "file-request"
	TypeFileResponse  MessageType = "file-response"
	TypePairRequest   MessageType = "pair-request"
	TypePairConfirm   MessageType = "pair-confirm"
	TypeDeviceList    MessageType = "device-list"
	TypePing          MessageType = "ping"
	TypePong          MessageType = "pong"
	TypeError         MessageType = "error"
)

// plaintextTypes is the whitelist of message types that must never be
// sealed in an envelope, because they are needed before an E2E key (or any
// key at all, for pairing) is established.
var plaintextTypes = map[MessageType]bool{
	TypeHello:       true,
	TypeHelloAck:    true,
	TypePing:        true,
	TypePong:        true,
	TypeError:       true,
	TypePairRequest: true,
	TypePairConfirm: true,
}

// MustBePlaintext reports whether t is on the plaintext whitelist.
func MustBePlaintext(t MessageType) bool {
	return plaintextTypes[t]
}

// WireChange is the over-the-wire shape of a change entry, carried inside
// delta-push and index-response. It mirrors model.ChangeEntry's fields
// except the id, which the wire form carries as ChangeID.
type WireChange struct {
	ChangeID    int64  `json:"changeId"`
	Path        string `json:"path"`
	OldPath     string `json:"oldPath,omitempty"`
	Kind        string `json:"kind"`
	ContentHash string `json:"contentHash,omitempty"`
	Size        *int64 `json:"size,omitempty"`
	MTime       *int64 `json:"mtime,omitempty"`
	DeviceID    string `json:"deviceId"`
}

// Hello is the handshake message a client sends on connect.
type Hello struct {
	Type          MessageType `json:"type"`
	DeviceID      string      `json:"deviceId"`
	VaultID       string      `json:"vaultId"`
	DeviceToken   string      `json:"deviceToken,omitempty"`
	DeviceName    string      `json:"deviceName"`
	ClientVersion string      `json:"clientVersion"`
}

// HelloAck is the relay's response to a successful hello.
type HelloAck struct {
	Type             MessageType `json:"type"`
	AssignedToken    string      `json:"assignedToken"`
	ConnectedDevices int         `json:"connectedDevices"`
	ServerVersion    string      `json:"serverVersion"`
}

// IndexRequest asks a peer for every change since sinceChangeId.
type IndexRequest struct {
	Type          MessageType `json:"type"`
	SinceChangeID int64       `json:"sinceChangeId"`
}

// IndexResponse is one page of a catchup response.
type IndexResponse struct {
	Type           MessageType  `json:"type"`
	Changes        []WireChange `json:"changes"`
	LatestChangeID int64        `json:"latestChangeId"`
	HasMore        bool         `json:"hasMore"`
}

// DeltaPush announces a single realtime change.
type DeltaPush struct {
	Type   MessageType `json:"type"`
	Change WireChange  `json:"change"`
}

// DeltaAck acknowledges receipt of a delta-push.
type DeltaAck struct {
	Type     MessageType `json:"type"`
	ChangeID int64       `json:"changeId"`
}

// FileRequest asks targetDeviceId for file content matching contentHash.
type FileRequest struct {
	Type           MessageType `json:"type"`
	Path           string      `json:"path"`
	ContentHash    string      `json:"contentHash"`
	TargetDeviceID string      `json:"targetDeviceId"`
}

// FileResponse carries file content, base64-encoded. When an E2E key is
// active the whole message is sealed like any other non-whitelisted type
// (see syncengine's Engine.sendMaybeSealed); Content itself is plain bytes.
type FileResponse struct {
	Type        MessageType `json:"type"`
	Path        string      `json:"path"`
	ContentHash string      `json:"contentHash"`
	Content     string      `json:"content"`
}

// PairRequest starts device pairing using a hashed pairing code. It is sent
// by the new, not-yet-trusted device after it has already joined the vault's
// room via an ordinary hello. DeviceID lets the confirming device address its pair-confirm
// reply without the relay needing any pairing-specific state of its own.
type PairRequest struct {
	Type            MessageType `json:"type"`
	DeviceID        string      `json:"deviceId"`
	PairingCodeHash string      `json:"pairingCodeHash"`
	DeviceName      string      `json:"deviceName"`
}

// PairConfirm is the already-paired device's approval of a pending
// pair-request, addressed back to the requester by DeviceID.
// The new device's actual device token still comes from the relay's own
// hello-ack, minted the same way for every connection; approval here is a
// human-identity confirmation, not a token grant.
type PairConfirm struct {
	Type     MessageType `json:"type"`
	DeviceID string      `json:"deviceId"`
	VaultID  string      `json:"vaultId"`
	Approved bool        `json:"approved"`
}

// DeviceListEntry is one row of a device-list broadcast.
type DeviceListEntry struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	Online     bool   `json:"online"`
}

// DeviceList is broadcast whenever a room's membership changes.
type DeviceList struct {
	Type    MessageType       `json:"type"`
	Devices []DeviceListEntry `json:"devices"`
}

// Ping/Pong are the liveness pair.
type Ping struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
}

type Pong struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
}

// ErrorCode enumerates the closed set of error codes the relay emits.
type ErrorCode string

const (
	ErrCodeParseError       ErrorCode = "PARSE_ERROR"
	ErrCodeAuthFailed       ErrorCode = "AUTH_FAILED"
	ErrCodeVaultFull        ErrorCode = "VAULT_FULL"
	ErrCodeDeviceOffline    ErrorCode = "DEVICE_OFFLINE"
	ErrCodeNotAuthenticated ErrorCode = "NOT_AUTHENTICATED"
)

// ErrorMessage is the wire error type.
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
}
