package pn532

import (
	"bytes"
	"fmt"
)

// Command codes for the PN532 host interface.
const (
	CmdGetFirmwareVersion  byte = 0x02
	CmdSAMConfiguration    byte = 0x14
	CmdRFConfiguration     byte = 0x32
	CmdInDataExchange      byte = 0x40
	CmdInListPassiveTarget byte = 0x4A
	CmdInRelease           byte = 0x52

	HostToPN532 byte = 0xD4
	PN532ToHost byte = 0xD5

	SAMModeNormal byte = 0x01

	// BaudISO14443A selects 106 kbps type A targets.
	BaudISO14443A byte = 0x00

	rfItemMaxRetries byte = 0x05
	errorFrameCode   byte = 0x7F
)

// MIFARE Classic commands carried in InDataExchange.
const (
	MifareAuthA byte = 0x60
	MifareAuthB byte = 0x61
	MifareRead  byte = 0x30
	MifareWrite byte = 0xA0
)

// ACKFrame acknowledges a received command frame.
var ACKFrame = []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}

// WakeUp is sent ahead of the first command on the HSU link so the chip
// leaves power down.
var WakeUp = []byte{0x55, 0x55, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

var startCode = []byte{0x00, 0x00, 0xFF}

// Frame is one decoded information frame or an ACK.
type Frame struct {
	ACK     bool
	TFI     byte
	Command byte
	Data    []byte
	Raw     []byte
}

// ErrorFrame reports a PN532 application-level error frame.
func (f Frame) ErrorFrame() bool {
	return !f.ACK && f.TFI == errorFrameCode
}

// BuildCommand builds one normal information frame.
// Layout: 00 00 FF LEN LCS D4 CMD DATA... DCS 00
func BuildCommand(command byte, payload []byte) []byte {
	return buildFrame(HostToPN532, command, payload)
}

// BuildResponse builds the frame the chip sends back for command. Used by
// serial simulators.
func BuildResponse(command byte, payload []byte) []byte {
	return buildFrame(PN532ToHost, ResponseCode(command), payload)
}

func buildFrame(tfi, code byte, payload []byte) []byte {
	length := len(payload) + 2
	packet := make([]byte, 0, length+7)
	packet = append(packet, 0x00, 0x00, 0xFF, byte(length), byte(-length))
	packet = append(packet, tfi, code)
	packet = append(packet, payload...)

	sum := tfi + code
	for _, b := range payload {
		sum += b
	}
	packet = append(packet, -sum, 0x00)
	return packet
}

// VerifyPacket checks length and data checksums for a full information
// frame starting at the start code.
func VerifyPacket(packet []byte) bool {
	if len(packet) < 7 || !bytes.HasPrefix(packet, startCode) {
		return false
	}
	length := int(packet[3])
	if byte(length)+packet[4] != 0 {
		return false
	}
	if len(packet) < 5+length+1 {
		return false
	}
	sum := byte(0)
	for _, b := range packet[5 : 5+length+1] {
		sum += b
	}
	return sum == 0
}

// ParseFrames decodes as many frames as possible from stream data, skipping
// noise before each start code. It returns the frames and the bytes that
// did not yet form a complete frame.
func ParseFrames(stream []byte) (frames []Frame, remaining []byte) {
	if len(stream) == 0 {
		return nil, nil
	}

	buf := stream
	frames = make([]Frame, 0, 2)

	for len(buf) > 0 {
		idx := bytes.Index(buf, startCode)
		if idx < 0 {
			// keep a possible partial start code
			keep := min(len(buf), 2)
			buf = buf[len(buf)-keep:]
			break
		}
		buf = buf[idx:]
		if len(buf) < 6 {
			break
		}

		if buf[3] == 0x00 && buf[4] == 0xFF {
			frames = append(frames, Frame{ACK: true, Raw: append([]byte(nil), buf[:6]...)})
			buf = buf[6:]
			continue
		}

		length := int(buf[3])
		if byte(length)+buf[4] != 0 || length == 0 {
			buf = buf[1:]
			continue
		}
		total := 5 + length + 2
		if total > len(buf) {
			break
		}

		raw := buf[:total]
		if !VerifyPacket(raw) {
			buf = buf[1:]
			continue
		}

		body := raw[5 : 5+length]
		f := Frame{TFI: body[0], Raw: append([]byte(nil), raw...)}
		if len(body) > 1 {
			f.Command = body[1]
		}
		if len(body) > 2 {
			f.Data = append([]byte(nil), body[2:]...)
		}
		frames = append(frames, f)
		buf = buf[total:]
	}

	remaining = make([]byte, len(buf))
	copy(remaining, buf)
	return frames, remaining
}

// ResponseCode is the command code a response frame carries for command.
func ResponseCode(command byte) byte {
	return command + 1
}

// GetFirmwareVersionCommand queries IC and firmware revision.
func GetFirmwareVersionCommand() []byte {
	return BuildCommand(CmdGetFirmwareVersion, nil)
}

// SAMConfigurationCommand puts the SAM in normal mode with no timeout.
func SAMConfigurationCommand() []byte {
	return BuildCommand(CmdSAMConfiguration, []byte{SAMModeNormal, 0x00, 0x01})
}

// MaxRetriesCommand bounds passive activation retries so InListPassiveTarget
// returns promptly when no card is present.
func MaxRetriesCommand(passive byte) []byte {
	return BuildCommand(CmdRFConfiguration, []byte{rfItemMaxRetries, 0xFF, 0x01, passive})
}

// InListPassiveTargetCommand polls for up to maxTargets type A targets.
func InListPassiveTargetCommand(maxTargets byte) []byte {
	return BuildCommand(CmdInListPassiveTarget, []byte{maxTargets, BaudISO14443A})
}

// InReleaseCommand releases target tg, or all targets when tg is 0.
func InReleaseCommand(tg byte) []byte {
	return BuildCommand(CmdInRelease, []byte{tg})
}

// InDataExchangeCommand sends data to target tg.
func InDataExchangeCommand(tg byte, data []byte) []byte {
	payload := make([]byte, 0, len(data)+1)
	payload = append(payload, tg)
	payload = append(payload, data...)
	return BuildCommand(CmdInDataExchange, payload)
}

// MifareAuthCommand authenticates block with key in slot (MifareAuthA or
// MifareAuthB). uid holds the four UID bytes used by the handshake.
func MifareAuthCommand(tg, slot, block byte, key [6]byte, uid []byte) []byte {
	data := make([]byte, 0, 2+len(key)+len(uid))
	data = append(data, slot, block)
	data = append(data, key[:]...)
	data = append(data, uid...)
	return InDataExchangeCommand(tg, data)
}

func MifareReadCommand(tg, block byte) []byte {
	return InDataExchangeCommand(tg, []byte{MifareRead, block})
}

func MifareWriteCommand(tg, block byte, data [16]byte) []byte {
	out := make([]byte, 0, 18)
	out = append(out, MifareWrite, block)
	out = append(out, data[:]...)
	return InDataExchangeCommand(tg, out)
}

// FirmwareVersion is decoded from a GetFirmwareVersion response.
type FirmwareVersion struct {
	IC       byte
	Version  byte
	Revision byte
	Support  byte
}

func (v FirmwareVersion) String() string {
	return fmt.Sprintf("PN5%02X v%d.%d", v.IC, v.Version, v.Revision)
}

func ParseFirmwareVersion(frame Frame) (FirmwareVersion, error) {
	if frame.Command != ResponseCode(CmdGetFirmwareVersion) {
		return FirmwareVersion{}, fmt.Errorf("not firmware frame")
	}
	if len(frame.Data) < 4 {
		return FirmwareVersion{}, fmt.Errorf("firmware payload too short")
	}
	return FirmwareVersion{
		IC:       frame.Data[0],
		Version:  frame.Data[1],
		Revision: frame.Data[2],
		Support:  frame.Data[3],
	}, nil
}

// Target is one ISO14443A target from InListPassiveTarget.
type Target struct {
	Number byte
	ATQA   [2]byte
	SAK    byte
	UID    []byte
}

// ParseTargetList decodes an InListPassiveTarget response. A response with
// zero targets returns ok=false and no error.
// Payload: NbTg Tg SENS_RES(2) SEL_RES NFCIDLen NFCID... [ATS]
func ParseTargetList(frame Frame) (Target, bool, error) {
	if frame.Command != ResponseCode(CmdInListPassiveTarget) {
		return Target{}, false, fmt.Errorf("not passive-target frame")
	}
	if len(frame.Data) == 0 {
		return Target{}, false, fmt.Errorf("passive-target payload too short")
	}
	if frame.Data[0] == 0 {
		return Target{}, false, nil
	}
	if len(frame.Data) < 6 {
		return Target{}, false, fmt.Errorf("passive-target payload too short")
	}
	uidLen := int(frame.Data[5])
	if len(frame.Data) < 6+uidLen {
		return Target{}, false, fmt.Errorf("passive-target invalid uid len")
	}
	t := Target{
		Number: frame.Data[1],
		ATQA:   [2]byte{frame.Data[2], frame.Data[3]},
		SAK:    frame.Data[4],
		UID:    append([]byte(nil), frame.Data[6:6+uidLen]...),
	}
	return t, true, nil
}

// ParseDataExchange splits an InDataExchange response into status and
// card data. Status 0x00 means success.
func ParseDataExchange(frame Frame) (status byte, data []byte, err error) {
	if frame.Command != ResponseCode(CmdInDataExchange) {
		return 0, nil, fmt.Errorf("not data-exchange frame")
	}
	if len(frame.Data) == 0 {
		return 0, nil, fmt.Errorf("data-exchange payload too short")
	}
	return frame.Data[0] & 0x3F, append([]byte(nil), frame.Data[1:]...), nil
}
