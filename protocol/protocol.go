// Package protocol implements the host-link line protocol: byte FIFOs
// between the transport and the main loop, line assembly with line number
// and checksum validation, and the ok/Resend replies.
package protocol

// Version represents the firmware version reported to the host
const Version = "0.1.0"

// Protocol constants
const (
	MessageMax = 512 // Output scratch size, enough for one main loop pass

	LineOverhead = 16 // Room for an "N<line> " prefix and "*<checksum>" suffix

	ChecksumMarker = '*'
	CommentMarker  = ';'
)

// Replies sent to the host
const (
	ReplyOK     = "ok"
	ReplyResend = "Resend: "
	ReplyError  = "Error:"
	ReplyEcho   = "echo:"
)
