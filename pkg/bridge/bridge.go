// Package bridge publishes queue notifications for channel activity.
//
// The bridge is best-effort by contract: a send whose message landed in
// the channel has succeeded, whatever happens to its notifications. No
// error escapes this package; failures are logged at debug level and
// swallowed.
package bridge

import (
	"os"
	"path/filepath"

	"github.com/filebus-org/go-filebus/pkg/bus"
	"github.com/filebus-org/go-filebus/pkg/types"
	"github.com/filebus-org/go-filebus/util"
)

// bridgeSource identifies the chat side as the publisher of bridge
// events, distinct from the handles named inside the payload.
const bridgeSource = "chat"

// maxPayload bounds the payload copied into an event. The full message
// is already in the channel; the event is just a signal.
const maxPayload = 2048

// maxWalkDepth bounds the upward search for an events directory.
// Project roots sit two or three levels above the channel file; the
// limit prevents walking to /.
const maxWalkDepth = 10

// FindEventsDir locates the queue directory serving a channel file by
// walking up from the channel's parent, probing for a sibling events/
// directory and for .filebus/events at each level. Returns "" when no
// directory is found within the walk depth.
func FindEventsDir(channelPath string) string {
	abs, err := filepath.Abs(channelPath)
	if err != nil {
		return ""
	}
	dir := filepath.Dir(abs)

	for depth := 0; depth < maxWalkDepth; depth++ {
		for _, candidate := range []string{
			filepath.Join(dir, "..", "events"),
			filepath.Join(dir, ".filebus", "events"),
		} {
			resolved := filepath.Clean(candidate)
			if info, err := os.Stat(resolved); err == nil && info.IsDir() {
				return resolved
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// AfterSend publishes the notification events for one delivered
// message: a chat-message event, then one chat-mention (high) or
// chat-interrupt (critical) event per distinct @handle in the text.
// Absent events directory means no queue is in use and the bridge does
// nothing. Always returns without error.
func AfterSend(channelPath, handle, message string) {
	eventsDir := FindEventsDir(channelPath)
	if eventsDir == "" {
		return
	}

	publish(eventsDir, "chat-message", types.PriorityNormal, handle+": "+message)

	for _, m := range ExtractMentions(message) {
		payload := "@" + m.Handle + " from " + handle + ": " + message
		if m.Interrupt {
			publish(eventsDir, "chat-interrupt", types.PriorityCritical, payload)
		} else {
			publish(eventsDir, "chat-mention", types.PriorityHigh, payload)
		}
	}
}

// HumanInput publishes a high-priority event for text typed by a human
// operator, so agents watching the queue can prioritise it.
func HumanInput(channelPath, handle, message string) {
	eventsDir := FindEventsDir(channelPath)
	if eventsDir == "" {
		return
	}
	publish(eventsDir, "human-input", types.PriorityHigh, handle+": "+message)
}

func publish(eventsDir, eventType string, priority types.Priority, payload string) {
	if len(payload) > maxPayload {
		payload = payload[:maxPayload]
	}
	if _, err := bus.Publish(eventsDir, bridgeSource, eventType, priority, payload); err != nil {
		util.Debug("bridge: publish %s: %v", eventType, err)
	}
}
