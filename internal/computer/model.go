package computer

import (
	"fmt"
	"strings"
	"time"
)

// Computer is a tracked lab machine (Testrechner).
type Computer struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	IPAddress        string    `json:"ip_address"`
	Status           string    `json:"status"`
	StatusNote       string    `json:"status_note"`
	InstalledVersion string    `json:"installed_version"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// StatusChange is one entry of a computer's status history.
type StatusChange struct {
	OldStatus  string    `json:"old_status"`
	NewStatus  string    `json:"new_status"`
	ChangedBy  string    `json:"changed_by"`
	ChangeNote string    `json:"change_note"`
	ChangedAt  time.Time `json:"changed_at"`
}

// SystemInfo is simulated monitoring data; the lab machines are not
// actually polled.
type SystemInfo struct {
	OS            string `json:"os"`
	CPU           string `json:"cpu"`
	RAM           string `json:"ram"`
	Storage       string `json:"storage"`
	Uptime        string `json:"uptime"`
	LastSeen      string `json:"last_seen"`
	NetworkStatus string `json:"network_status"`
}

// Details is the response of the computer detail endpoint.
type Details struct {
	Computer      Computer       `json:"computer"`
	StatusHistory []StatusChange `json:"status_history"`
	SystemInfo    SystemInfo     `json:"system_info"`
	PingStatus    string         `json:"ping_status"`
}

const (
	StatusReady       = "Testbereit"
	StatusReserved    = "Reserviert"
	StatusOutOfOrder  = "Ausser Betrieb"
	StatusMaintenance = "Installation/Wartung"
	StatusAIS         = "AIS"
)

var validStatuses = map[string]bool{
	StatusReady:       true,
	StatusReserved:    true,
	StatusOutOfOrder:  true,
	StatusMaintenance: true,
	StatusAIS:         true,
}

func IsValidStatus(status string) bool {
	return validStatuses[status]
}

const noteTimeLayout = "2006-01-02 15:04:05"

// The note strings are displayed verbatim by the German-language
// frontend and must keep their wording.

func statusChangeNote(oldStatus, newStatus string, at time.Time) string {
	return fmt.Sprintf("Von ***%s*** auf ***%s*** geändert am %s", oldStatus, newStatus, at.Format(noteTimeLayout))
}

func versionChangeNote(oldVersion, newVersion string, at time.Time) string {
	return fmt.Sprintf("Installierte Version geändert von '%s' auf '%s' am %s", oldVersion, newVersion, at.Format(noteTimeLayout))
}

func rebootNote(at time.Time) string {
	return fmt.Sprintf("Systemreboot eingeleitet am %s", at.Format(noteTimeLayout))
}

// appendNote chains history entries onto an existing status note.
func appendNote(existing, entry string) string {
	if strings.TrimSpace(existing) == "" {
		return entry
	}
	return existing + " | " + entry
}
