package shared

import (
	"fmt"
	"time"
)

const (
	NotificationExchange = "filiup.notifications" // topic exchange carrying per-student pushes

	SessionExchange = "filiup.session.events" // topic exchange for presence announcements

	SessionJoinedKey    = "session.joined"    // routing key for the "student joined" announcement
	SessionLeavingKey   = "session.leaving"   // routing key for the "student leaving" announcement
	SessionHeartbeatKey = "session.heartbeat" // routing key for liveness pings

	// StudentNotificationKey is the routing-key pattern for student pushes.
	// * stands for the student id.
	StudentNotificationKey = "notify.student.*"
)

// StudentRoutingKey returns the routing key the server publishes a given
// student's notifications under.
func StudentRoutingKey(studentID string) string {
	return fmt.Sprintf("notify.student.%s", studentID)
}

// StudentQueueName returns the name of the per-student notification queue.
func StudentQueueName(studentID string) string {
	return fmt.Sprintf("student.%s.notifications", studentID)
}

// PresenceAnnouncement is the body of joined/leaving/heartbeat messages.
type PresenceAnnouncement struct {
	StudentID string    `json:"studentId"`
	Timestamp time.Time `json:"timestamp"`
}
