// internal/model/channel.go
package model

// Channel is a message delivery mode with its own hourly rate limit.
type Channel string

const (
	ChannelSMS      Channel = "SMS"
	ChannelWhatsApp Channel = "WhatsApp"
	ChannelOTP      Channel = "OTP"
)

func (c Channel) String() string {
	return string(c)
}

func (c Channel) Valid() bool {
	return c == ChannelSMS || c == ChannelWhatsApp || c == ChannelOTP
}

// MessageStatus tracks a message log row through its lifecycle. Outbound rows
// start at Sent or Failed; webhooks move Sent forward to Delivered/Read.
type MessageStatus string

const (
	StatusSent      MessageStatus = "Sent"
	StatusDelivered MessageStatus = "Delivered"
	StatusRead      MessageStatus = "Read"
	StatusFailed    MessageStatus = "Failed"
	StatusReceived  MessageStatus = "Received"
)

func (s MessageStatus) String() string {
	return string(s)
}

func (s MessageStatus) Valid() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusRead, StatusFailed, StatusReceived:
		return true
	}
	return false
}

// Direction separates messages we sent from messages the provider relayed in.
type Direction string

const (
	DirectionOutbound Direction = "Outbound"
	DirectionInbound  Direction = "Inbound"
)
