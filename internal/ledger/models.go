package ledger

import "time"

// Transaction correlates one inbound EPP command with its response. Client
// fields are written by Begin; server fields only by Complete.
type Transaction struct {
	ID                int64
	RegistrarID       int64
	ClientTRID        string
	ClientFrame       []byte
	ClientDate        time.Time
	ClientMicrosecond string

	Command           string
	ObjectType        string
	ObjectID          string
	Code              int
	Message           string
	ServerTRID        string
	ServerFrame       []byte
	ServerDate        time.Time
	ServerMicrosecond string
}

// Completed reports whether the server side has been recorded.
func (t *Transaction) Completed() bool {
	return t.ServerTRID != ""
}

// Outcome is the server side of an exchange. Empty Command, ObjectType and
// ObjectID are stored as NULL.
type Outcome struct {
	Command     string
	ObjectType  string
	ObjectID    string
	Code        int
	Message     string
	ServerTRID  string
	ServerFrame []byte
}

// Event is the published summary of a completed transaction. Frames are
// omitted; consumers that need them read the ledger.
type Event struct {
	TransactionID int64     `json:"transaction_id"`
	RegistrarID   int64     `json:"registrar_id"`
	ClientTRID    string    `json:"cl_trid"`
	ServerTRID    string    `json:"sv_trid"`
	Command       string    `json:"cmd,omitempty"`
	ObjectType    string    `json:"obj_type,omitempty"`
	ObjectID      string    `json:"obj_id,omitempty"`
	Code          int       `json:"code"`
	Message       string    `json:"msg"`
	ClientDate    time.Time `json:"cl_date"`
	ServerDate    time.Time `json:"sv_date"`
}

func eventFrom(t *Transaction) Event {
	return Event{
		TransactionID: t.ID,
		RegistrarID:   t.RegistrarID,
		ClientTRID:    t.ClientTRID,
		ServerTRID:    t.ServerTRID,
		Command:       t.Command,
		ObjectType:    t.ObjectType,
		ObjectID:      t.ObjectID,
		Code:          t.Code,
		Message:       t.Message,
		ClientDate:    t.ClientDate,
		ServerDate:    t.ServerDate,
	}
}
