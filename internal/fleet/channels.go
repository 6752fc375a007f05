package fleet

import "strings"

// Realtime channel names. Per-aircraft channels append ":<id>".
const (
	positionChannelPrefix = "aircraft:position:"
	statusChannelPrefix   = "aircraft:status:"
	trackingChannelPrefix = "aircraft:tracking:"

	// TrackingControlChannel carries start/stop commands from clients to the server
	TrackingControlChannel = "aircraft:tracking"
)

// PositionChannel is the channel carrying position samples for one aircraft
func PositionChannel(id string) string { return positionChannelPrefix + id }

// StatusChannel is the channel carrying status changes for one aircraft
func StatusChannel(id string) string { return statusChannelPrefix + id }

// TrackingChannel is the channel carrying tracking start/stop events for one aircraft
func TrackingChannel(id string) string { return trackingChannelPrefix + id }

// AircraftChannels returns the three per-aircraft channels
func AircraftChannels(id string) []string {
	return []string{PositionChannel(id), StatusChannel(id), TrackingChannel(id)}
}

// ChannelAircraftID extracts the aircraft id from a per-aircraft channel name
func ChannelAircraftID(channel string) (string, bool) {
	for _, prefix := range []string{positionChannelPrefix, statusChannelPrefix, trackingChannelPrefix} {
		if id, ok := strings.CutPrefix(channel, prefix); ok && id != "" {
			return id, true
		}
	}
	return "", false
}
