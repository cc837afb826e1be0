package rtltcp

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/roman-kulish/beacon-surveillance/internal/sdr"
)

// dongleMagic opens every rtl_tcp-family handshake.
const dongleMagic = "RTL0"

// dongleInfo mirrors the 12-byte header the server sends on connect.
type dongleInfo struct {
	Magic     [4]byte
	Tuner     uint32
	GainCount uint32
}

var tunerNames = map[uint32]string{
	1: "E4000",
	2: "FC0012",
	3: "FC0013",
	4: "FC2580",
	5: "R820T",
	6: "R828D",
}

func tunerName(tuner uint32) string {
	if name, ok := tunerNames[tuner]; ok {
		return name
	}
	return fmt.Sprintf("type %d", tuner)
}

// Probe dials an rtl_tcp-family server, validates its handshake and reports
// the front end behind it. The probe connection is closed again; Open
// establishes the long-lived session.
func Probe(address, kind string, timeout time.Duration) (sdr.Frontend, error) {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return sdr.Frontend{}, fmt.Errorf("probing %s: %w", address, err)
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return sdr.Frontend{}, fmt.Errorf("probing %s: %w", address, err)
	}

	var info dongleInfo
	if err := binary.Read(conn, binary.BigEndian, &info); err != nil {
		return sdr.Frontend{}, fmt.Errorf("reading dongle info from %s: %w", address, err)
	}
	if string(info.Magic[:]) != dongleMagic {
		return sdr.Frontend{}, fmt.Errorf("%s: unexpected handshake magic %q", address, info.Magic)
	}

	return sdr.Frontend{
		Kind:    kind,
		Address: address,
		Tuner:   tunerName(info.Tuner),
	}, nil
}
