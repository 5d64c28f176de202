package radio

import "fmt"

// Command kinds acknowledged by the node firmware.
const (
	KindChannel = "channel"
	KindPower   = "power"
	KindSend    = "send"
	KindShow    = "show"
	KindClear   = "clear"
)

// ChannelCommand sets the radio channel on a node.
func ChannelCommand(channel int) string {
	return fmt.Sprintf("channel %d\n", channel)
}

// PowerCommand sets the transmit power on a node.
func PowerCommand(power int) string {
	return fmt.Sprintf("power %d\n", power)
}

// SendCommand asks one node to emit nbPacket packets of packetSize bytes,
// delayMs apart, tagged with its own numeric id.
func SendCommand(nodeID, packetSize, nbPacket, delayMs int) string {
	return fmt.Sprintf("send %d %d %d %d\n", nodeID, packetSize, nbPacket, delayMs)
}

// ShowCommand asks every node to print its reception report.
func ShowCommand() string { return "show\n" }

// ClearCommand resets the reception counters of a node.
func ClearCommand() string { return "clear\n" }
